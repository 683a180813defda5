package bookmeta

import "errors"

var (
	// ErrInvalidISBN is returned when the provided ISBN is empty or malformed.
	ErrInvalidISBN = errors.New("invalid ISBN")

	// ErrInvalidChecksum is returned when a scanned ISBN fails its check digit.
	ErrInvalidChecksum = errors.New("invalid ISBN checksum")
)
