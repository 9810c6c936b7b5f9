package audit

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DocumentSummary counts a few structural features of the main document.
type DocumentSummary struct {
	Lang             string `json:"lang"`
	Scripts          int    `json:"scripts"`
	Stylesheets      int    `json:"stylesheets"`
	Images           int    `json:"images"`
	ImagesMissingAlt int    `json:"imagesMissingAlt"`
	Links            int    `json:"links"`
	Iframes          int    `json:"iframes"`
	HasViewportMeta  bool   `json:"hasViewportMeta"`
}

// SummarizeDocument parses html and counts its resources.
func SummarizeDocument(html string) (DocumentSummary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return DocumentSummary{}, err
	}

	lang, _ := doc.Find("html").Attr("lang")
	summary := DocumentSummary{
		Lang:            strings.TrimSpace(lang),
		Scripts:         doc.Find("script").Length(),
		Stylesheets:     doc.Find(`link[rel="stylesheet"]`).Length(),
		Images:          doc.Find("img").Length(),
		Links:           doc.Find("a[href]").Length(),
		Iframes:         doc.Find("iframe").Length(),
		HasViewportMeta: doc.Find(`meta[name="viewport"]`).Length() > 0,
	}
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("alt"); !ok {
			summary.ImagesMissingAlt++
		}
	})
	return summary, nil
}
