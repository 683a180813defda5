package epub

import (
	"regexp"
	"strings"

	"github.com/lepinkainen/shelf/internal/bookmeta"
)

// metadataNamespaces are the prefixes an EPUB 3 <metadata> element must
// declare for the target reader, in declaration order.
var metadataNamespaces = []struct {
	prefix string
	uri    string
}{
	{"opf", "http://www.idpf.org/2007/opf"},
	{"dc", "http://purl.org/dc/elements/1.1/"},
	{"dcterms", "http://purl.org/dc/terms/"},
	{"xsi", "http://www.w3.org/2001/XMLSchema-instance"},
	{"calibre", "http://calibre.kovidgoyal.net/2009/metadata"},
}

var (
	packageTagPattern  = regexp.MustCompile(`<package\b[^>]*>`)
	metadataTagPattern = regexp.MustCompile(`<metadata\b[^>]*>`)
	attrPattern        = regexp.MustCompile(`([\w:.-]+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	calibreNSPattern   = regexp.MustCompile(`\s+xmlns:calibre\s*=\s*(?:"[^"]*"|'[^']*')`)

	// metaElementPattern matches a whole bare <meta> element, self-closing or
	// with text content.
	metaElementPattern = regexp.MustCompile(`<meta\b[^>]*?(?:/>|>[\s\S]*?</meta>)`)

	// metaTokenPattern matches bare <meta> opening and closing tags.
	metaTokenPattern = regexp.MustCompile(`<meta\b[^>]*>|</meta\s*>`)

	titleElementPattern = regexp.MustCompile(`<dc:title\b([^>]*)>([\s\S]*?)</dc:title>`)

	// refinementPattern matches <meta> and <opf:meta> elements with content;
	// self-closing tags are excluded.
	refinementPattern = regexp.MustCompile(`<((?:opf:)?meta)((?:\s[^>]*[^/>])?)>([\s\S]*?)</(?:opf:)?meta>`)
)

// attr is one attribute of a start tag, with its byte span in the tag.
type attr struct {
	name       string
	value      string
	start, end int
}

func parseAttrs(tag string) []attr {
	var attrs []attr
	for _, m := range attrPattern.FindAllStringSubmatchIndex(tag, -1) {
		a := attr{name: tag[m[2]:m[3]], start: m[0], end: m[1]}
		switch {
		case m[4] >= 0:
			a.value = tag[m[4]:m[5]]
		case m[6] >= 0:
			a.value = tag[m[6]:m[7]]
		}
		attrs = append(attrs, a)
	}
	return attrs
}

func findAttr(attrs []attr, name string) (attr, bool) {
	for _, a := range attrs {
		if a.name == name {
			return a, true
		}
	}
	return attr{}, false
}

// Version returns the package version attribute, "2.0" when absent.
func Version(opf string) string {
	tag := packageTagPattern.FindString(opf)
	if a, ok := findAttr(parseAttrs(tag), "version"); ok && strings.TrimSpace(a.value) != "" {
		return strings.TrimSpace(a.value)
	}
	return "2.0"
}

// IsEPUB2 reports whether version denotes an EPUB 2 package.
func IsEPUB2(version string) bool {
	return strings.HasPrefix(version, "2")
}

// PatchOPF rewrites a package document for the target reader. A non-empty
// cleanTitle (in sort form, "letzte Fähre, Die") also rewrites the title
// metadata. Applying PatchOPF to its own output returns it unchanged.
func PatchOPF(opf, cleanTitle string) string {
	if IsEPUB2(Version(opf)) {
		opf = stripCalibreNamespace(opf)
		opf = reorderSeries(opf)
		opf = swapContentName(opf)
	} else {
		opf = ensureNamespaces(opf)
		opf = retagMeta(opf)
	}

	if cleanTitle = bookmeta.NormalizeText(cleanTitle); cleanTitle != "" {
		opf = applyTitle(opf, cleanTitle)
	}
	return opf
}

// stripCalibreNamespace removes the calibre namespace declaration from
// <metadata>; the reader ignores calibre series tags when it is declared.
func stripCalibreNamespace(opf string) string {
	loc := metadataTagPattern.FindStringIndex(opf)
	if loc == nil {
		return opf
	}
	tag := calibreNSPattern.ReplaceAllString(opf[loc[0]:loc[1]], "")
	return opf[:loc[0]] + tag + opf[loc[1]:]
}

// metaSpan locates the first bare <meta> element whose name attribute is
// name.
func metaSpan(opf, name string) (start, end int, ok bool) {
	for _, loc := range metaElementPattern.FindAllStringIndex(opf, -1) {
		open := opf[loc[0]:loc[1]]
		if i := strings.Index(open, ">"); i >= 0 {
			open = open[:i]
		}
		if a, found := findAttr(parseAttrs(open), "name"); found && a.value == name {
			return loc[0], loc[1], true
		}
	}
	return 0, 0, false
}

// leadingSpace returns the start of the whitespace run ending at i.
func leadingSpace(s string, i int) int {
	for i > 0 && strings.ContainsRune(" \t\r\n", rune(s[i-1])) {
		i--
	}
	return i
}

// reorderSeries moves calibre:series in front of calibre:series_index when
// the index comes first. Only the first tag of each name is considered.
func reorderSeries(opf string) string {
	seriesStart, seriesEnd, ok := metaSpan(opf, "calibre:series")
	if !ok {
		return opf
	}
	indexStart, indexEnd, ok := metaSpan(opf, "calibre:series_index")
	if !ok || indexStart > seriesStart {
		return opf
	}

	indent := opf[leadingSpace(opf, indexStart):indexStart]
	seriesWS := leadingSpace(opf, seriesStart)

	var b strings.Builder
	b.WriteString(opf[:indexStart])
	b.WriteString(opf[seriesStart:seriesEnd])
	b.WriteString(indent)
	b.WriteString(opf[indexStart:indexEnd])
	b.WriteString(opf[indexEnd:seriesWS])
	b.WriteString(opf[seriesEnd:])
	return b.String()
}

// swapContentName puts the name attribute before content in every bare
// <meta> start tag that has them the other way round.
func swapContentName(opf string) string {
	return metaTokenPattern.ReplaceAllStringFunc(opf, func(tag string) string {
		attrs := parseAttrs(tag)
		content, hasContent := findAttr(attrs, "content")
		name, hasName := findAttr(attrs, "name")
		if !hasContent || !hasName || content.start > name.start {
			return tag
		}
		return tag[:content.start] + tag[name.start:name.end] +
			tag[content.end:name.start] + tag[content.start:content.end] + tag[name.end:]
	})
}

// ensureNamespaces adds the missing namespace declarations to <metadata>,
// keeping those already present.
func ensureNamespaces(opf string) string {
	loc := metadataTagPattern.FindStringIndex(opf)
	if loc == nil {
		return opf
	}
	tag := opf[loc[0]:loc[1]]
	attrs := parseAttrs(tag)

	var missing strings.Builder
	for _, ns := range metadataNamespaces {
		if _, ok := findAttr(attrs, "xmlns:"+ns.prefix); !ok {
			missing.WriteString(` xmlns:` + ns.prefix + `="` + ns.uri + `"`)
		}
	}
	if missing.Len() == 0 {
		return opf
	}

	cut := len(tag) - 1
	if strings.HasSuffix(tag, "/>") {
		cut--
	}
	tag = strings.TrimRight(tag[:cut], " \t\r\n") + missing.String() + tag[cut:]
	return opf[:loc[0]] + tag + opf[loc[1]:]
}

// needsOPFPrefix reports whether a <meta> start tag must become <opf:meta>:
// it refines or declares a property, has no name attribute, and its property
// is not in the dcterms or calibre vocabularies.
func needsOPFPrefix(tag string) bool {
	attrs := parseAttrs(tag)
	if _, ok := findAttr(attrs, "name"); ok {
		return false
	}
	property, hasProperty := findAttr(attrs, "property")
	_, hasRefines := findAttr(attrs, "refines")
	if !hasProperty && !hasRefines {
		return false
	}
	if hasProperty && (strings.HasPrefix(property.value, "dcterms:") || strings.HasPrefix(property.value, "calibre:")) {
		return false
	}
	return true
}

// retagMeta renames qualifying <meta> elements to <opf:meta>. Each converted
// element's own closing tag is renamed with it; closings are matched by
// element nesting, so untouched metas keep their </meta>.
func retagMeta(opf string) string {
	var b strings.Builder
	var open []bool
	last := 0
	for _, loc := range metaTokenPattern.FindAllStringIndex(opf, -1) {
		token := opf[loc[0]:loc[1]]
		b.WriteString(opf[last:loc[0]])
		last = loc[1]

		if strings.HasPrefix(token, "</") {
			converted := false
			if n := len(open); n > 0 {
				converted = open[n-1]
				open = open[:n-1]
			}
			if converted {
				b.WriteString("</opf:meta>")
			} else {
				b.WriteString(token)
			}
			continue
		}

		converted := needsOPFPrefix(token)
		if !strings.HasSuffix(token, "/>") {
			open = append(open, converted)
		}
		if converted {
			b.WriteString("<opf:meta" + token[len("<meta"):])
		} else {
			b.WriteString(token)
		}
	}
	b.WriteString(opf[last:])
	return b.String()
}

var xmlTextEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
var xmlAttrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

// applyTitle writes the display form of cleanTitle into the first
// <dc:title>, records cleanTitle as calibre:title_sort and as the title's
// file-as refinement.
func applyTitle(opf, cleanTitle string) string {
	display := bookmeta.DisplayTitle(cleanTitle)

	titleID := ""
	if m := titleElementPattern.FindStringSubmatchIndex(opf); m != nil {
		if a, ok := findAttr(parseAttrs(opf[m[2]:m[3]]), "id"); ok {
			titleID = a.value
		}
		opf = opf[:m[4]] + xmlTextEscaper.Replace(display) + opf[m[5]:]
	}

	opf = upsertTitleSort(opf, cleanTitle)
	if titleID != "" {
		opf = rewriteFileAs(opf, titleID, cleanTitle)
	}
	return opf
}

// upsertTitleSort sets the content of the calibre:title_sort meta, adding
// the tag after calibre:series_index or at the end of <metadata>.
func upsertTitleSort(opf, sortTitle string) string {
	value := xmlAttrEscaper.Replace(sortTitle)

	if start, end, ok := metaSpan(opf, "calibre:title_sort"); ok {
		element := opf[start:end]
		openEnd := strings.Index(element, ">")
		if a, found := findAttr(parseAttrs(element[:openEnd]), "content"); found {
			quote := element[a.end-1 : a.end]
			element = element[:a.start] + `content=` + quote + value + quote + element[a.end:]
		} else {
			insertAt := openEnd
			if strings.HasSuffix(element[:openEnd+1], "/>") {
				insertAt--
			}
			element = element[:insertAt] + ` content="` + value + `"` + element[insertAt:]
		}
		return opf[:start] + element + opf[end:]
	}

	tag := `<meta name="calibre:title_sort" content="` + value + `"/>`
	if start, end, ok := metaSpan(opf, "calibre:series_index"); ok {
		indent := opf[leadingSpace(opf, start):start]
		return opf[:end] + indent + tag + opf[end:]
	}
	if i := strings.LastIndex(opf, "</metadata>"); i >= 0 {
		ws := leadingSpace(opf, i)
		if !strings.Contains(opf[ws:i], "\n") {
			return opf[:i] + tag + opf[i:]
		}
		return opf[:ws] + "\n" + lineIndent(opf, ws) + tag + opf[ws:]
	}
	return opf
}

// lineIndent returns the indentation of the line containing position i.
func lineIndent(s string, i int) string {
	start := strings.LastIndex(s[:i], "\n") + 1
	end := start
	for end < len(s) && (s[end] == ' ' || s[end] == '\t') {
		end++
	}
	return s[start:end]
}

// rewriteFileAs sets the text of every file-as refinement of the element
// with id titleID.
func rewriteFileAs(opf, titleID, sortTitle string) string {
	target := "#" + titleID
	return refinementPattern.ReplaceAllStringFunc(opf, func(element string) string {
		m := refinementPattern.FindStringSubmatchIndex(element)
		attrs := parseAttrs(element[m[4]:m[5]])
		property, _ := findAttr(attrs, "property")
		refines, _ := findAttr(attrs, "refines")
		if property.value != "file-as" || refines.value != target {
			return element
		}
		return element[:m[6]] + xmlTextEscaper.Replace(sortTitle) + element[m[7]:]
	})
}
