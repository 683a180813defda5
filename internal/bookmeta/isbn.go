package bookmeta

import (
	"fmt"
	"strings"
)

// ScannedISBN is a validated ISBN decoded from a barcode or typed in by hand.
type ScannedISBN struct {
	// Raw is the input with everything but digits and X removed.
	Raw string
	// ISBN13 is the 13-digit form; ISBN-10 input is converted.
	ISBN13 string
	// ISBN10 is set when the input was an ISBN-10 or a 978-prefixed ISBN-13.
	ISBN10 string
}

// All returns the known forms, ISBN-13 first.
func (s ScannedISBN) All() []string {
	return uniqueNonEmpty([]string{s.ISBN13, s.ISBN10})
}

// ParseScannedISBN validates a decoded barcode value. Separators, prefixes
// such as "ISBN:" and a trailing price add-on are ignored.
func ParseScannedISBN(code string) (ScannedISBN, error) {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if (r >= '0' && r <= '9') || r == 'X' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	// EAN-13 with a 2 or 5 digit add-on (price code on the back cover).
	if (len(digits) == 15 || len(digits) == 18) && strings.HasPrefix(digits, "97") {
		digits = digits[:13]
	}

	switch len(digits) {
	case 10:
		if !ValidISBN10(digits) {
			return ScannedISBN{}, fmt.Errorf("%w: %s", ErrInvalidChecksum, digits)
		}
		return ScannedISBN{Raw: digits, ISBN10: digits, ISBN13: ISBN10To13(digits)}, nil
	case 13:
		if strings.Contains(digits, "X") || !ValidISBN13(digits) {
			return ScannedISBN{}, fmt.Errorf("%w: %s", ErrInvalidChecksum, digits)
		}
		if !strings.HasPrefix(digits, "978") && !strings.HasPrefix(digits, "979") {
			return ScannedISBN{}, fmt.Errorf("%w: %s is not a Bookland EAN", ErrInvalidISBN, digits)
		}
		return ScannedISBN{Raw: digits, ISBN13: digits, ISBN10: ISBN13To10(digits)}, nil
	}
	return ScannedISBN{}, fmt.Errorf("%w: %q", ErrInvalidISBN, code)
}

// ValidISBN10 checks the mod-11 check digit of a 10 character ISBN.
func ValidISBN10(isbn string) bool {
	if len(isbn) != 10 {
		return false
	}
	sum := 0
	for i, r := range isbn {
		var v int
		switch {
		case r >= '0' && r <= '9':
			v = int(r - '0')
		case r == 'X' && i == 9:
			v = 10
		default:
			return false
		}
		sum += v * (10 - i)
	}
	return sum%11 == 0
}

// ValidISBN13 checks the EAN-13 check digit.
func ValidISBN13(isbn string) bool {
	if len(isbn) != 13 {
		return false
	}
	sum := 0
	for i, r := range isbn {
		if r < '0' || r > '9' {
			return false
		}
		v := int(r - '0')
		if i%2 == 1 {
			v *= 3
		}
		sum += v
	}
	return sum%10 == 0
}

// ISBN10To13 converts a valid ISBN-10 to its 978-prefixed ISBN-13.
func ISBN10To13(isbn10 string) string {
	if len(isbn10) != 10 {
		return ""
	}
	body := "978" + isbn10[:9]
	sum := 0
	for i, r := range body {
		v := int(r - '0')
		if i%2 == 1 {
			v *= 3
		}
		sum += v
	}
	check := (10 - sum%10) % 10
	return body + string(rune('0'+check))
}

// ISBN13To10 converts a 978-prefixed ISBN-13 to ISBN-10. Other prefixes have
// no ISBN-10 form and yield "".
func ISBN13To10(isbn13 string) string {
	if len(isbn13) != 13 || !strings.HasPrefix(isbn13, "978") {
		return ""
	}
	body := isbn13[3:12]
	sum := 0
	for i, r := range body {
		sum += int(r-'0') * (10 - i)
	}
	check := (11 - sum%11) % 11
	if check == 10 {
		return body + "X"
	}
	return body + string(rune('0'+check))
}
