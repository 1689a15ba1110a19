package render

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SnippetLength is the default snippet size in runes.
const SnippetLength = 300

var snippetCleanup = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?im)^URL Source:.*\n?`), ""},
	{regexp.MustCompile(`(?im)^Published Time:.*\n?`), ""},
	{regexp.MustCompile(`(?im)^Markdown Content:\n?`), ""},
	{regexp.MustCompile(`(?m)^#+\s+.*`), ""},
	{regexp.MustCompile(`(?m)^[-=]{3,}\s*$`), ""},
	{regexp.MustCompile(`!\[.*?\]\(.*?\)`), ""},
	{regexp.MustCompile(`\[([^\]]+)\]\(.*?\)`), "$1"},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

var sentenceEnds = []string{"。", ". ", "！", "？"}

// Snippet turns extracted content into a short plain-text teaser of at most
// max runes (plus an ellipsis). Markdown headings, images, rules and reader
// metadata are dropped and links keep only their text. The cut prefers a
// sentence end, then a word boundary.
func Snippet(content string, max int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	cleaned := content
	for _, c := range snippetCleanup {
		cleaned = c.re.ReplaceAllString(cleaned, c.repl)
	}
	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if max <= 0 || len(runes) <= max {
		return cleaned
	}
	truncated := string(runes[:max])

	cut, cutRunes := -1, -1
	for _, end := range sentenceEnds {
		if i := strings.LastIndex(truncated, end); i >= 0 {
			if n := utf8.RuneCountInString(truncated[:i]); n > cutRunes {
				_, size := utf8.DecodeRuneInString(end)
				cut, cutRunes = i+size, n
			}
		}
	}
	if float64(cutRunes) > float64(max)*0.4 {
		return truncated[:cut]
	}

	if i := strings.LastIndex(truncated, " "); i >= 0 && float64(utf8.RuneCountInString(truncated[:i])) > float64(max)*0.5 {
		return truncated[:i] + "..."
	}
	return truncated + "..."
}
