package bookmeta

import (
	"strings"

	"golang.org/x/text/language"
)

// marcBibliographicCodes maps the ISO 639-2/B codes used by library catalogs
// to their terminology form.
var marcBibliographicCodes = map[string]string{
	"alb": "sqi", "arm": "hye", "baq": "eus", "bur": "mya", "chi": "zho",
	"cze": "ces", "dut": "nld", "fre": "fra", "geo": "kat", "ger": "deu",
	"gre": "ell", "ice": "isl", "mac": "mkd", "mao": "mri", "may": "msa",
	"per": "fas", "rum": "ron", "slo": "slk", "tib": "bod", "wel": "cym",
}

// NormalizeLanguage converts a language code ("ger", "deu", "de-DE", "/languages/eng")
// to its shortest BCP 47 base ("de", "en"). Unrecognised values are returned
// trimmed and lower-cased.
func NormalizeLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.LastIndex(code, "/"); i >= 0 {
		code = code[i+1:]
	}
	if code == "" {
		return ""
	}
	if alias, ok := marcBibliographicCodes[code]; ok {
		code = alias
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return code
	}
	return base.String()
}
