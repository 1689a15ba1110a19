// Package summarize turns ranked items into short LLM-written summaries.
package summarize

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/TobiSchelling/digest/internal/htmltext"
	"github.com/TobiSchelling/digest/internal/llm"
	"github.com/TobiSchelling/digest/internal/news"
)

const (
	// DefaultLanguage is used when none is configured.
	DefaultLanguage = "Chinese"

	maxInputRunes  = 3000
	maxListedItems = 10
)

// Summarizer writes per-item and overall summaries. Failures are logged
// and yield an empty string so callers can fall back to a snippet.
type Summarizer struct {
	provider llm.Provider
	language string
}

// New creates a Summarizer writing in language.
func New(provider llm.Provider, language string) *Summarizer {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	return &Summarizer{provider: provider, language: language}
}

// Item summarizes a single item in one to three sentences.
func (s *Summarizer) Item(ctx context.Context, it news.Item) string {
	text := strings.TrimSpace(it.Content)
	if text == "" {
		text = it.Title
	}
	text, _ = htmltext.Truncate(text, maxInputRunes)

	system := fmt.Sprintf("Rewrite the text into a concise summary in %s. Return 1–3 sentences (30–180 words). Retain the deep meaning. Be creative, be fun.", s.language)
	user := fmt.Sprintf("Title: %s\nContent: %s", it.Title, text)
	return s.generate(ctx, system, user)
}

// All summarizes the day's highlights from the top of a ranked list.
func (s *Summarizer) All(ctx context.Context, items []news.Item) string {
	if len(items) == 0 {
		return ""
	}

	var listing strings.Builder
	for i, it := range items {
		if i == maxListedItems {
			break
		}
		fmt.Fprintf(&listing, "- %s (%s, %d pts)\n", it.Title, it.Category, it.Engagement())
	}

	system := fmt.Sprintf("Write a summary in %s, 3–5 sentences. Retain deep meaning. Be creative, be fun.", s.language)
	user := fmt.Sprintf("Top items:\n%sTask: Summarize today's highlights. Plain text, no links.", listing.String())
	return s.generate(ctx, system, user)
}

func (s *Summarizer) generate(ctx context.Context, system, user string) string {
	if s.provider == nil {
		return ""
	}
	text, err := s.provider.Generate(ctx, system, user)
	if err != nil {
		log.Printf("Summary failed: %v", err)
		return ""
	}
	return llm.CleanResponse(text)
}
