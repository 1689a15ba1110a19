package extract

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/TobiSchelling/digest/internal/fetchpool"
	"github.com/TobiSchelling/digest/internal/htmltext"
	"github.com/TobiSchelling/digest/internal/news"
)

// Options bounds a batch extraction.
type Options struct {
	Concurrency int
	MaxLength   int // runes; zero keeps everything
}

// discussionHosts serve discussion pages with no external article behind them.
var discussionHosts = []string{"news.ycombinator.com", "v2ex.com"}

// IsDiscussionURL reports whether u points at a discussion page. Malformed
// URLs count as discussion pages so they are never fetched.
func IsDiscussionURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Hostname() == "" {
		return true
	}
	host := strings.ToLower(parsed.Hostname())
	for _, h := range discussionHosts {
		if strings.Contains(host, h) {
			return true
		}
	}
	return false
}

type extracted struct {
	idx     int
	content string
}

// Batch fills in Content for items that have none and link to an external
// article. Items that fail keep what they had. The input slice is not
// modified; a new slice is returned in the same order.
func Batch(ctx context.Context, ex Extractor, items []news.Item, opts Options) []news.Item {
	out := make([]news.Item, len(items))
	copy(out, items)

	var todo []int
	for i, it := range items {
		if it.Content == "" && !IsDiscussionURL(it.URL) {
			todo = append(todo, i)
		}
	}
	if len(todo) == 0 {
		return out
	}

	log.Printf("Extracting content for %d items...", len(todo))
	results := fetchpool.Run(ctx, todo, opts.Concurrency, func(ctx context.Context, i int) (extracted, error) {
		content, err := ex.Extract(ctx, items[i].URL)
		if err != nil {
			return extracted{}, fmt.Errorf("%s: %w", items[i].URL, err)
		}
		if content == "" {
			return extracted{}, fmt.Errorf("%s: no extractable content", items[i].URL)
		}
		return extracted{idx: i, content: content}, nil
	})

	for _, r := range results {
		content, cut := htmltext.Truncate(r.content, opts.MaxLength)
		out[r.idx].Content = content
		out[r.idx].ContentTruncated = cut
		log.Printf("Extracted %d chars for: %s", len([]rune(content)), out[r.idx].Title)
	}
	log.Printf("Content extraction complete: %d fetched, %d skipped", len(results), len(todo)-len(results))
	return out
}
