// Package render produces the digest outputs: markdown for people and for
// LLM context windows, and the OpenClaw JSON payload.
package render

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/digest/internal/news"
	"github.com/TobiSchelling/digest/internal/sources/hackernews"
)

// Profile selects the markdown flavour.
type Profile string

const (
	HumanDigest Profile = "human_digest"
	LLMContext  Profile = "llm_context"
)

// Entry is one ranked item ready for output.
type Entry struct {
	Item  news.Item
	Score float64
	// Digest is the AI summary, or a snippet when none is available.
	Digest string
	// Context is the full extracted text.
	Context string
}

// Document is a single source's digest for one day.
type Document struct {
	Title   string
	Date    string
	Summary string
	Entries []Entry
}

type frontmatter struct {
	Title   string `yaml:"title"`
	Date    string `yaml:"date"`
	Profile string `yaml:"profile,omitempty"`
	Items   *int   `yaml:"items,omitempty"`
	Summary string `yaml:"summary,omitempty"`
}

// Markdown renders doc with YAML frontmatter.
func Markdown(doc Document, profile Profile) (string, error) {
	fm := frontmatter{Title: doc.Title, Date: doc.Date}
	if profile == LLMContext {
		n := len(doc.Entries)
		fm.Profile = string(profile)
		fm.Items = &n
	}
	if doc.Summary != "" {
		short := []rune(doc.Summary)
		if len(short) > 100 {
			short = short[:100]
		}
		first, _, _ := strings.Cut(string(short), "\n")
		fm.Summary = first + "..."
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("encoding frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n\n")
	b.WriteString(Body(doc, profile))
	return b.String(), nil
}

// Body renders doc without frontmatter.
func Body(doc Document, profile Profile) string {
	var b strings.Builder
	if doc.Summary != "" {
		b.WriteString(doc.Summary)
		b.WriteString("\n\n")
	}

	for i, e := range doc.Entries {
		it := e.Item
		fmt.Fprintf(&b, "## [%s](%s)\n\n", it.Title, it.URL)
		if e.Digest != "" {
			b.WriteString(e.Digest)
			b.WriteString("\n\n")
		}
		b.WriteString(metaLine(it))
		b.WriteString("\n\n")

		if profile == LLMContext {
			fmt.Fprintf(&b, "- rank: %d\n- score: %.6f\n- id: %s\n", i+1, e.Score, it.ID)
			if e.Context != "" {
				b.WriteString("\n```text\n")
				b.WriteString(strings.ReplaceAll(e.Context, "```", "'''"))
				b.WriteString("\n```\n")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func metaLine(it news.Item) string {
	when := it.CreatedAt.UTC().Format("2006-01-02 15:04")
	if it.Source == news.HackerNews {
		return fmt.Sprintf("*%d 分 · %d 评论 · [HN 讨论](%s) · %s · by %s*",
			it.Points, it.Replies, hackernews.DiscussionURL(it.ID), when, it.Author)
	}
	return fmt.Sprintf("*%d 回复 · [@%s](https://www.v2ex.com/go/%s) · %s · by %s*",
		it.Replies, it.Category, it.Category, when, it.Author)
}
