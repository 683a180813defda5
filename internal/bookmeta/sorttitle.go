package bookmeta

import (
	"strings"

	"golang.org/x/text/language"
)

// leadingArticles lists the articles moved to the end of a sort title, per
// base language.
var leadingArticles = map[language.Base][]string{
	mustBase("de"): {"Der", "Die", "Das", "Ein", "Eine"},
	mustBase("en"): {"The", "A", "An"},
}

// displayArticles are recognised at the end of a cleaned title
// ("letzte Fähre, Die") and moved back to the front.
var displayArticles = []string{"Der", "Die", "Das", "Ein", "Eine"}

func mustBase(tag string) language.Base {
	b, err := language.ParseBase(tag)
	if err != nil {
		panic(err)
	}
	return b
}

// articlesFor returns the articles for lang; unknown or empty languages use
// the German and English lists combined.
func articlesFor(lang string) []string {
	if lang != "" {
		if tag, err := language.Parse(lang); err == nil {
			base, _ := tag.Base()
			if articles, ok := leadingArticles[base]; ok {
				return articles
			}
		}
	}
	combined := make([]string, 0, 8)
	combined = append(combined, leadingArticles[mustBase("de")]...)
	combined = append(combined, leadingArticles[mustBase("en")]...)
	return combined
}

// SortTitle moves a leading article to the end of the title, separated by a
// comma: "Die letzte Fähre" becomes "letzte Fähre, Die". lang is a BCP 47 or
// ISO 639 code selecting the article list.
func SortTitle(title, lang string) string {
	title = NormalizeText(title)
	for _, article := range articlesFor(lang) {
		prefix := article + " "
		if len(title) > len(prefix) && strings.EqualFold(title[:len(prefix)], prefix) {
			rest := strings.TrimSpace(title[len(prefix):])
			if rest == "" {
				return title
			}
			return rest + ", " + title[:len(article)]
		}
	}
	return title
}

// DisplayTitle reverses SortTitle for German articles: a trailing
// ", Der/Die/Das/Ein/Eine" is moved to the front. Titles without a trailing
// article are returned unchanged.
func DisplayTitle(sortTitle string) string {
	sortTitle = NormalizeText(sortTitle)
	idx := strings.LastIndex(sortTitle, ",")
	if idx <= 0 {
		return sortTitle
	}
	tail := strings.TrimSpace(sortTitle[idx+1:])
	for _, article := range displayArticles {
		if strings.EqualFold(tail, article) {
			head := strings.TrimSpace(sortTitle[:idx])
			if head == "" {
				return sortTitle
			}
			return tail + " " + head
		}
	}
	return sortTitle
}
