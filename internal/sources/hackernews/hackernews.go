// Package hackernews collects stories from the Hacker News Firebase API.
package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/digest/internal/fetchpool"
	"github.com/TobiSchelling/digest/internal/htmltext"
	"github.com/TobiSchelling/digest/internal/news"
)

const (
	// DefaultBaseURL is the public Firebase API root.
	DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"

	// DefaultConcurrency bounds parallel item fetches.
	DefaultConcurrency = 8

	itemTimeout = 8 * time.Second
	listTimeout = 15 * time.Second
)

var listEndpoints = map[string]string{
	"top":  "topstories",
	"new":  "newstories",
	"best": "beststories",
	"ask":  "askstories",
	"show": "showstories",
	"job":  "jobstories",
}

type rawItem struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	By          string  `json:"by"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Text        string  `json:"text"`
	Time        int64   `json:"time"`
	Kids        []int64 `json:"kids"`
	Descendants int     `json:"descendants"`
	Score       int     `json:"score"`
	Deleted     bool    `json:"deleted"`
	Dead        bool    `json:"dead"`
}

// Client fetches Hacker News lists and items.
type Client struct {
	BaseURL     string
	Concurrency int
	client      *http.Client
}

// NewClient creates a Hacker News client. Each request carries its own
// timeout, so the http.Client itself has none.
func NewClient(concurrency int) *Client {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Client{
		BaseURL:     DefaultBaseURL,
		Concurrency: concurrency,
		client:      &http.Client{},
	}
}

// FetchList returns up to limit stories from list (top, new, best, ask,
// show, job; unknown names fall back to top), in list order. Items that
// fail to load are skipped. A limit of zero or less yields no items.
func (c *Client) FetchList(ctx context.Context, list string, limit int) ([]news.Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	endpoint, ok := listEndpoints[strings.ToLower(list)]
	if !ok {
		log.Printf("Unknown Hacker News list %q, using top", list)
		endpoint = listEndpoints["top"]
	}

	var ids []int64
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s.json", c.BaseURL, endpoint), listTimeout, &ids); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", endpoint, err)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	items := fetchpool.RunOrdered(ctx, ids, c.Concurrency, c.fetchItem)
	log.Printf("Fetched %d/%d Hacker News items from %s", len(items), len(ids), list)
	return items, nil
}

func (c *Client) fetchItem(ctx context.Context, id int64) (news.Item, error) {
	var raw *rawItem
	if err := c.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", c.BaseURL, id), itemTimeout, &raw); err != nil {
		return news.Item{}, fmt.Errorf("item %d: %w", id, err)
	}
	if raw == nil || raw.Deleted || raw.Dead {
		return news.Item{}, fmt.Errorf("item %d: unavailable", id)
	}
	return normalize(*raw), nil
}

func (c *Client) getJSON(ctx context.Context, u string, timeout time.Duration, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// DiscussionURL returns the Hacker News comment page for an item id.
func DiscussionURL(id string) string {
	return "https://news.ycombinator.com/item?id=" + id
}

func normalize(h rawItem) news.Item {
	id := strconv.FormatInt(h.ID, 10)

	u := strings.TrimSpace(h.URL)
	if u == "" {
		u = DiscussionURL(id)
	}

	category := strings.ToLower(h.Type)
	if category == "" {
		category = "story"
	}
	if category == "story" {
		t := strings.ToLower(strings.TrimSpace(h.Title))
		switch {
		case strings.HasPrefix(t, "ask hn:"):
			category = "ask"
		case strings.HasPrefix(t, "show hn:"):
			category = "show"
		}
	}

	return news.Item{
		ID:        id,
		Source:    news.HackerNews,
		Title:     h.Title,
		URL:       u,
		Content:   htmltext.Strip(h.Text),
		Category:  category,
		Author:    h.By,
		Replies:   max(h.Descendants, len(h.Kids)),
		Points:    h.Score,
		CreatedAt: time.Unix(h.Time, 0).UTC(),
	}
}
