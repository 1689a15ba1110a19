package v2ex

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/TobiSchelling/digest/internal/extract"
	"github.com/TobiSchelling/digest/internal/fetchpool"
	"github.com/TobiSchelling/digest/internal/htmltext"
	"github.com/TobiSchelling/digest/internal/news"
)

type supplement struct {
	Content         string `json:"content"`
	ContentRendered string `json:"content_rendered"`
}

// Supplements returns the follow-up notes (附言) the author attached to a
// topic.
func (c *Client) Supplements(ctx context.Context, id string) ([]string, error) {
	if c.Token == "" {
		return nil, fmt.Errorf("topic %s: no token", id)
	}
	var env struct {
		Result struct {
			Supplements []supplement `json:"supplements"`
		} `json:"result"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/topics/%s", c.V2URL, id), true, &env); err != nil {
		return nil, fmt.Errorf("topic %s: %w", id, err)
	}

	out := make([]string, 0, len(env.Result.Supplements))
	for _, s := range env.Result.Supplements {
		body := s.ContentRendered
		if body == "" {
			body = s.Content
		}
		out = append(out, htmltext.Strip(body))
	}
	return out, nil
}

type enriched struct {
	idx      int
	content  string
	replaced bool
}

// Enrich appends supplements to each item's content. When a topic has no
// supplements, or the API is unavailable, the page is read through fallback
// instead (nil disables it). Content is capped at maxLength runes. The
// input slice is not modified.
func (c *Client) Enrich(ctx context.Context, items []news.Item, fallback extract.Extractor, concurrency, maxLength int) []news.Item {
	out := make([]news.Item, len(items))
	copy(out, items)
	if len(items) == 0 {
		return out
	}

	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}

	results := fetchpool.Run(ctx, idx, concurrency, func(ctx context.Context, i int) (enriched, error) {
		it := items[i]
		sups, err := c.Supplements(ctx, it.ID)
		if err == nil && len(sups) > 0 {
			var b strings.Builder
			b.WriteString(it.Content)
			for n, s := range sups {
				fmt.Fprintf(&b, "\n\n--- 附言 %d ---\n%s", n+1, s)
			}
			return enriched{idx: i, content: b.String()}, nil
		}
		if fallback == nil {
			return enriched{}, fmt.Errorf("%s: no supplements", it.ID)
		}
		text, ferr := fallback.Extract(ctx, it.URL)
		if ferr != nil || text == "" {
			return enriched{}, fmt.Errorf("%s: no supplements and fallback failed: %v", it.ID, ferr)
		}
		return enriched{idx: i, content: text, replaced: true}, nil
	})

	var viaAPI, viaFallback int
	for _, r := range results {
		content, cut := htmltext.Truncate(r.content, maxLength)
		out[r.idx].Content = content
		out[r.idx].ContentTruncated = cut
		if r.replaced {
			viaFallback++
		} else {
			viaAPI++
		}
	}
	log.Printf("V2EX enrichment: %d with supplements, %d via fallback, %d unchanged",
		viaAPI, viaFallback, len(items)-len(results))
	return out
}
