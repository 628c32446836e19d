// SPDX-License-Identifier: GPL-3.0-or-later
package classify

import (
	"strings"

	"github.com/halverson/go-imap-mirror/domain"

	"golang.org/x/net/html"
)

const (
	TypePlainText  = "plain_text"
	TypeSimpleHTML = "simple_html"
	TypeRichHTML   = "rich_html"
	TypeDesigned   = "designed"
	TypeNewsletter = "newsletter"
)

// Heuristics for recognizing intentionally designed mail. Scores are additive
// and capped; the exact weights come from observing real newsletters against
// plain correspondence.
var (
	designIndicators = []string{
		"newsletter", "marketing", "campaign", "template",
		"table", "layout", "grid", "column", "responsive",
	}
	designCSSProperties = []string{
		"background-color", "background-image", "border-radius",
		"box-shadow", "gradient", "flex", "grid", "float",
		"position: absolute", "position: fixed", "z-index",
	}
	designAttributes = []string{
		"bgcolor", "background", "cellpadding", "cellspacing",
		"valign", `align="center"`, "width=", "height=",
	}
)

// Analyzer derives a display strategy from the mail body: heavily designed
// mail keeps its layout, simple mail is forced into left-aligned reading flow
// with a cleaned copy of its markup.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Classify(htmlContent, textContent string) domain.Classification {
	if strings.TrimSpace(htmlContent) == "" {
		return domain.Classification{Type: TypePlainText, ForceLeftAlign: true}
	}

	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return domain.Classification{Type: TypePlainText, ForceLeftAlign: true}
	}

	s := &stats{counts: map[string]int{}}
	collect(doc, s)

	design := designScore(s, htmlContent)
	complexity := complexityScore(s)
	table := tableScore(s)
	styling := stylingScore(s, htmlContent)
	structure := structureScore(s)

	emailType := determineType(design, complexity, table, styling, structure)

	classification := domain.Classification{
		Type:           emailType,
		PreserveLayout: emailType == TypeDesigned || emailType == TypeNewsletter,
		ForceLeftAlign: emailType == TypePlainText || emailType == TypeSimpleHTML,
	}
	if classification.ForceLeftAlign {
		classification.CleanedHTML = renderCleaned(doc)
	}

	return classification
}

type stats struct {
	elements int
	counts   map[string]int

	inlineStyles int
	classed      int

	divsWithNestedDivs int
	nestedTables       int
	tablesWithLayout   int
	tablesWithColor    int
}

func collect(n *html.Node, s *stats) {
	if n.Type == html.ElementNode {
		s.elements++
		s.counts[n.Data]++

		for _, attr := range n.Attr {
			switch attr.Key {
			case "style":
				s.inlineStyles++
			case "class":
				s.classed++
			}
		}

		switch n.Data {
		case "div":
			if countDescendants(n, "div") > 2 {
				s.divsWithNestedDivs++
			}
		case "table":
			s.nestedTables += countDescendants(n, "table")
			if hasAttr(n, "width") || hasAttr(n, "cellpadding") || hasAttr(n, "cellspacing") {
				s.tablesWithLayout++
			}
			if hasAttr(n, "bgcolor") || hasAttr(n, "background") {
				s.tablesWithColor++
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, s)
	}
}

func countDescendants(n *html.Node, tag string) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			count++
		}
		count += countDescendants(c, tag)
	}
	return count
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

func designScore(s *stats, htmlContent string) float64 {
	score := 0.0
	lower := strings.ToLower(htmlContent)

	for _, indicator := range designIndicators {
		if strings.Contains(lower, indicator) {
			score += 1.0
		}
	}
	for _, prop := range designCSSProperties {
		if strings.Contains(lower, prop) {
			score += 0.5
		}
	}
	for _, attr := range designAttributes {
		if strings.Contains(lower, attr) {
			score += 0.3
		}
	}

	if images := s.counts["img"]; images > 0 {
		score += capped(float64(images)*0.5, 3.0)
	}
	if links := s.counts["a"]; links > 2 {
		score += capped(float64(links)*0.2, 2.0)
	}

	return capped(score, 10.0)
}

func complexityScore(s *stats) float64 {
	score := capped(float64(s.elements)*0.1, 5.0)
	score += float64(s.divsWithNestedDivs)

	if s.counts["table"] > 0 {
		score += 1.0
	}
	if s.counts["td"] > 0 {
		score += 0.5
	}
	if s.counts["span"] > 0 {
		score += 0.3
	}

	return capped(score, 10.0)
}

func tableScore(s *stats) float64 {
	score := float64(s.counts["table"])
	score += float64(s.nestedTables) * 2.0
	score += float64(s.tablesWithLayout)
	score += float64(s.tablesWithColor)
	return capped(score, 10.0)
}

func stylingScore(s *stats, htmlContent string) float64 {
	score := float64(s.counts["style"]) * 2.0
	score += capped(float64(s.inlineStyles)*0.2, 3.0)

	if s.classed > 5 {
		score += 1.0
	}
	if strings.Contains(htmlContent, "color:") || strings.Contains(htmlContent, "background:") {
		score += 1.0
	}

	return capped(score, 10.0)
}

func structureScore(s *stats) float64 {
	score := 0.0

	headers := s.counts["h1"] + s.counts["h2"] + s.counts["h3"] + s.counts["h4"] + s.counts["h5"] + s.counts["h6"]
	if headers > 0 {
		score += capped(float64(headers)*0.5, 2.0)
	}

	lists := s.counts["ul"] + s.counts["ol"] + s.counts["li"]
	if lists > 0 {
		score += capped(float64(lists)*0.3, 1.5)
	}

	paragraphs := s.counts["p"]
	divs := s.counts["div"]
	if paragraphs > divs {
		score += 1.0
	} else if divs > paragraphs*2 && divs > 0 {
		score += 2.0
	}

	return capped(score, 10.0)
}

func determineType(design, complexity, table, styling, structure float64) string {
	total := design + complexity + table + styling + structure

	if design >= 3.0 || table >= 3.0 || styling >= 3.0 {
		if total >= 10.0 {
			return TypeNewsletter
		}
		return TypeDesigned
	}

	if complexity >= 2.0 || total >= 5.0 {
		return TypeRichHTML
	}

	if total <= 2.0 {
		return TypeSimpleHTML
	}

	return TypePlainText
}

func capped(value, limit float64) float64 {
	if value > limit {
		return limit
	}
	return value
}
