// Package format converts mail bodies into plain text for the model.
package format

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

var skipTags = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"title":    true,
	"noscript": true,
}

var blockTags = map[string]bool{
	"address": true, "article": true, "blockquote": true, "center": true,
	"div": true, "footer": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tr": true, "ul": true,
}

// Converter turns HTML mail parts into readable text.
type Converter struct{}

// HTML2Text extracts visible text from an HTML document. Block elements
// start a new line, list items are prefixed with "- " and links keep their
// target in parentheses.
func (c Converter) HTML2Text(raw []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("html.Parse failed: %w", err)
	}

	var sb strings.Builder
	writeNode(&sb, doc)

	return compactLines(sb.String()), nil
}

func writeNode(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		writeText(sb, n.Data)
		return
	case html.ElementNode:
		if skipTags[n.Data] {
			return
		}
	}

	if n.Type != html.ElementNode {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeNode(sb, c)
		}
		return
	}

	switch {
	case n.Data == "br":
		sb.WriteByte('\n')
		return
	case n.Data == "li":
		sb.WriteString("\n- ")
	case n.Data == "td" || n.Data == "th":
		writeText(sb, " ")
	case blockTags[n.Data]:
		sb.WriteByte('\n')
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNode(sb, c)
	}

	switch {
	case n.Data == "a":
		if href := attr(n, "href"); href != "" && href != textOf(n) {
			sb.WriteString(" (" + href + ")")
		}
	case n.Data == "li" || blockTags[n.Data]:
		sb.WriteByte('\n')
	}
}

func writeText(sb *strings.Builder, data string) {
	words := strings.Fields(data)
	leading := data != "" && isSpace(data[0])
	trailing := data != "" && isSpace(data[len(data)-1])

	if leading && !endsWithSpace(sb) {
		sb.WriteByte(' ')
	}
	if len(words) == 0 {
		return
	}

	sb.WriteString(strings.Join(words, " "))
	if trailing {
		sb.WriteByte(' ')
	}
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return strings.TrimSpace(sb.String())
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}

	return ""
}

func endsWithSpace(sb *strings.Builder) bool {
	s := sb.String()
	return s == "" || isSpace(s[len(s)-1])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

func compactLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}

	return strings.Join(out, "\n")
}
