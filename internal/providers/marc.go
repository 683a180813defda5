package providers

import (
	"strings"

	"github.com/lepinkainen/shelf/internal/bookmeta"
)

// marcRecord is a MARC21-xml (MARC 21 slim) bibliographic record.
type marcRecord struct {
	Leader        string             `xml:"leader"`
	ControlFields []marcControlField `xml:"controlfield"`
	DataFields    []marcDataField    `xml:"datafield"`
}

type marcControlField struct {
	Tag   string `xml:"tag,attr"`
	Value string `xml:",chardata"`
}

type marcDataField struct {
	Tag       string         `xml:"tag,attr"`
	Ind1      string         `xml:"ind1,attr"`
	Ind2      string         `xml:"ind2,attr"`
	Subfields []marcSubfield `xml:"subfield"`
}

type marcSubfield struct {
	Code  string `xml:"code,attr"`
	Value string `xml:",chardata"`
}

func (r *marcRecord) fields(tag string) []marcDataField {
	var out []marcDataField
	for _, f := range r.DataFields {
		if f.Tag == tag {
			out = append(out, f)
		}
	}
	return out
}

// first returns the first non-empty subfield code of the first field tag
// that carries it.
func (r *marcRecord) first(tag, code string) string {
	for _, f := range r.fields(tag) {
		if v := f.sub(code); v != "" {
			return v
		}
	}
	return ""
}

func (f marcDataField) sub(code string) string {
	for _, s := range f.Subfields {
		if s.Code == code {
			if v := cleanMARC(s.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

func (f marcDataField) subs(code string) []string {
	var out []string
	for _, s := range f.Subfields {
		if s.Code == code {
			if v := cleanMARC(s.Value); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// typeOfRecord returns leader position 06.
func (r *marcRecord) typeOfRecord() byte {
	if len(r.Leader) > 6 {
		return r.Leader[6]
	}
	return 0
}

var nonSortMarkers = strings.NewReplacer("\u0098", "", "\u009c", "", "¬", "")

// cleanMARC strips non-sorting markers and trailing ISBD punctuation.
func cleanMARC(s string) string {
	s = nonSortMarkers.Replace(s)
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimRight(s, " /:;,="))
}

// invertName turns "Moers, Walter" into "Walter Moers".
func invertName(name string) string {
	last, first, ok := strings.Cut(name, ",")
	if !ok {
		return strings.TrimSpace(name)
	}
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	if first == "" {
		return last
	}
	return first + " " + last
}

func (r *marcRecord) authors() []string {
	var names []string
	for _, f := range r.fields("100") {
		if n := f.sub("a"); n != "" {
			names = append(names, invertName(n))
		}
	}
	for _, f := range r.fields("700") {
		relator := f.sub("4")
		role := strings.ToLower(f.sub("e"))
		isAuthor := relator == "aut" ||
			strings.Contains(role, "verfasser") ||
			strings.Contains(role, "author") ||
			(relator == "" && role == "")
		if !isAuthor {
			continue
		}
		if n := f.sub("a"); n != "" {
			names = append(names, invertName(n))
		}
	}
	return names
}

func (r *marcRecord) isbns() []string {
	var out []string
	for _, f := range r.fields("020") {
		for _, code := range []string{"a", "9"} {
			for _, v := range f.subs(code) {
				token, _, _ := strings.Cut(v, " ")
				isbn := bookmeta.NormalizeISBN(token)
				if len(isbn) == 10 || len(isbn) == 13 {
					out = append(out, isbn)
				}
			}
		}
	}
	return out
}

func (r *marcRecord) publication() (publisher, date string) {
	for _, f := range r.fields("264") {
		if f.Ind2 != "1" {
			continue
		}
		publisher, date = f.sub("b"), f.sub("c")
		break
	}
	if publisher == "" {
		publisher = r.first("260", "b")
	}
	if date == "" {
		date = r.first("260", "c")
	}
	return publisher, strings.Trim(date, "[]c©. ")
}

// series reads the series statement (490) or the series added entries
// (800/830).
func (r *marcRecord) series() (name, number string) {
	for _, tag := range []string{"490", "830", "800"} {
		for _, f := range r.fields(tag) {
			seriesName := f.sub("a")
			if tag == "800" {
				seriesName = f.sub("t")
			}
			if seriesName == "" {
				continue
			}
			if v := f.sub("v"); v != "" {
				return seriesName, bookmeta.ParseSeriesVolume(v)
			}
			return bookmeta.ParseSeriesField(seriesName)
		}
	}
	return "", ""
}

// isAudio reports a sound recording by leader type or RDA content type.
func (r *marcRecord) isAudio() bool {
	switch r.typeOfRecord() {
	case 'i', 'j':
		return true
	}
	for _, f := range r.fields("336") {
		content := strings.ToLower(f.sub("a"))
		if f.sub("b") == "spw" || strings.Contains(content, "gesprochenes wort") || strings.Contains(content, "spoken word") {
			return true
		}
	}
	for _, f := range r.fields("300") {
		if bookmeta.IsAudiobook(f.sub("a")) {
			return true
		}
	}
	return false
}

func (r *marcRecord) toResult() bookmeta.SearchResult {
	title := r.first("245", "a")
	publisher, date := r.publication()
	seriesName, seriesNumber := r.series()

	return bookmeta.SearchResult{
		Title:            title,
		Author:           bookmeta.JoinAuthors(r.authors()),
		Description:      r.first("520", "a"),
		Publisher:        publisher,
		PublishDate:      date,
		Language:         r.first("041", "a"),
		OriginalLanguage: r.first("041", "h"),
		Series:           seriesName,
		SeriesNumber:     seriesNumber,
		AllISBNs:         r.isbns(),
	}
}
