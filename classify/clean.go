// SPDX-License-Identifier: GPL-3.0-or-later
package classify

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	textAlignPattern  = regexp.MustCompile(`(?i)text-align\s*:\s*(center|right)`)
	marginAutoPattern = regexp.MustCompile(`(?i)margin\s*:\s*[^;]*auto[^;]*`)
	marginSidePattern = regexp.MustCompile(`(?i)margin-(left|right)\s*:\s*auto`)
)

// renderCleaned rewrites simple markup into a left-aligned reading flow:
// centering attributes, centering styles and <center> tags are all forced
// left. Designed mail never goes through here.
func renderCleaned(doc *html.Node) string {
	cleanNode(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return ""
	}

	return buf.String()
}

func cleanNode(n *html.Node) {
	if n.Type == html.ElementNode {
		for i, attr := range n.Attr {
			switch attr.Key {
			case "align":
				value := strings.ToLower(attr.Val)
				if value == "center" || value == "right" {
					n.Attr[i].Val = "left"
				}
			case "style":
				style := textAlignPattern.ReplaceAllString(attr.Val, "text-align: left")
				style = marginAutoPattern.ReplaceAllString(style, "margin: 0")
				style = marginSidePattern.ReplaceAllString(style, "margin-$1: 0")
				n.Attr[i].Val = style
			}
		}

		if n.Data == "center" {
			n.Data = "div"
			n.DataAtom = atom.Div
			setAttr(n, "style", "text-align: left;")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cleanNode(c)
	}
}

func setAttr(n *html.Node, key, value string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}
