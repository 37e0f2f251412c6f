package rag

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractText pulls the visible text out of an HTML document: script, style
// and head content is skipped, block boundaries become newlines and runs of
// whitespace collapse to single spaces.
func ExtractText(document string) string {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		// html.Parse is extremely tolerant; treat a real failure as no text.
		return ""
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(collapseSpaces(text))
				b.WriteByte(' ')
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == html.ElementNode && isBlock(n.Data) {
			b.WriteByte('\n')
		}
	}
	walk(root)

	return strings.TrimSpace(b.String())
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "br", "li", "tr",
		"h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
