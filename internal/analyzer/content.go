package analyzer

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// nonContentSelectors lists elements dropped before extracting text.
const nonContentSelectors = "script, style, noscript, template, svg, nav, header, footer, iframe"

var htmlTagPattern = regexp.MustCompile(`(?i)<\s*/?\s*(html|body|div|p|span|a|br|article|section|h[1-6]|ul|ol|li|table|script|style)\b[^>]*>`)

// blockElements get a separator after their text so words from adjacent
// blocks do not run together.
var blockElements = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "tr": {}, "td": {}, "th": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"article": {}, "section": {}, "blockquote": {}, "pre": {},
	"ul": {}, "ol": {}, "table": {}, "main": {}, "aside": {},
}

// looksLikeHTML reports whether s contains common HTML tags.
func looksLikeHTML(s string) bool {
	return htmlTagPattern.MatchString(s)
}

// htmlToText extracts the visible text of an HTML fragment or document.
func htmlToText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find(nonContentSelectors).Remove()

	root := doc.Find("body").First()
	if root.Length() == 0 {
		root = doc.Selection
	}

	var b strings.Builder
	collectText(root, &b)
	return b.String()
}

func collectText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		name := goquery.NodeName(node)
		if name == "#text" {
			b.WriteString(node.Text())
			return
		}
		if strings.HasPrefix(name, "#") {
			return
		}

		collectText(node, b)
		if _, ok := blockElements[name]; ok {
			b.WriteByte('\n')
		}
	})
}

// collapseWhitespace turns every whitespace run into one space.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to at most limit runes. limit <= 0 disables it.
func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit]))
}

// PrepareContent normalizes record content for the prompt: HTML is reduced
// to text, whitespace collapsed, and the result cut to maxChars runes.
func PrepareContent(content string, maxChars int) string {
	if looksLikeHTML(content) {
		content = htmlToText(content)
	}
	return truncateRunes(collapseWhitespace(content), maxChars)
}
