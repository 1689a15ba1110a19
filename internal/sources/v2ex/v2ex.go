// Package v2ex collects topics from the V2EX API.
//
// The v1 API serves the hot and latest lists without authentication. Node
// listings need a personal access token and go through the paginated v2 API.
package v2ex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/TobiSchelling/digest/internal/fetchpool"
	"github.com/TobiSchelling/digest/internal/htmltext"
	"github.com/TobiSchelling/digest/internal/news"
)

const (
	DefaultV1URL = "https://www.v2ex.com/api"
	DefaultV2URL = "https://www.v2ex.com/api/v2"

	userAgent       = "digest/0.1"
	requestTimeout  = 15 * time.Second
	pageConcurrency = 3
)

var errNotFound = errors.New("not found")

type rawTopic struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	URL             string `json:"url"`
	Content         string `json:"content"`
	ContentRendered string `json:"content_rendered"`
	Replies         int    `json:"replies"`
	Created         int64  `json:"created"`
	Node            *struct {
		Name string `json:"name"`
	} `json:"node"`
	Member *struct {
		Username string `json:"username"`
	} `json:"member"`
}

// Client talks to both V2EX API versions.
type Client struct {
	V1URL string
	V2URL string
	Token string

	client *http.Client
}

// NewClient creates a V2EX client. token may be empty; node listings then
// fall back to the hot list.
func NewClient(token string) *Client {
	return &Client{
		V1URL:  DefaultV1URL,
		V2URL:  DefaultV2URL,
		Token:  token,
		client: &http.Client{},
	}
}

// FetchNode returns topics for node. "hot" and "latest" come from the v1
// API in a single request; any other node reads up to pages pages from the
// v2 API, stopping at the first missing or empty page.
func (c *Client) FetchNode(ctx context.Context, node string, pages int) ([]news.Item, error) {
	switch node {
	case "hot", "latest":
		var topics []rawTopic
		if err := c.get(ctx, fmt.Sprintf("%s/topics/%s.json", c.V1URL, node), false, &topics); err != nil {
			return nil, fmt.Errorf("fetching %s: %w", node, err)
		}
		return lo.Map(topics, func(t rawTopic, _ int) news.Item { return normalize(t) }), nil
	}

	if c.Token == "" {
		log.Printf("Warning: node %q requires a V2EX token, falling back to hot", node)
		return c.FetchNode(ctx, "hot", 1)
	}
	return c.fetchPages(ctx, node, max(pages, 1))
}

type page struct {
	n      int
	topics []rawTopic
	absent bool
}

func (c *Client) fetchPages(ctx context.Context, node string, pages int) ([]news.Item, error) {
	nums := lo.RangeFrom(1, pages)
	results := fetchpool.RunOrdered(ctx, nums, pageConcurrency, func(ctx context.Context, p int) (page, error) {
		var env struct {
			Result []rawTopic `json:"result"`
		}
		err := c.get(ctx, fmt.Sprintf("%s/nodes/%s/topics?p=%d", c.V2URL, node, p), true, &env)
		if errors.Is(err, errNotFound) {
			return page{n: p, absent: true}, nil
		}
		if err != nil {
			return page{}, fmt.Errorf("node %s page %d: %w", node, p, err)
		}
		return page{n: p, topics: env.Result}, nil
	})

	if len(results) == 0 || results[0].n != 1 {
		return nil, fmt.Errorf("fetching node %s: first page unavailable", node)
	}

	var items []news.Item
	seen := make(map[string]struct{})
	for i, pg := range results {
		if pg.n != i+1 || pg.absent || len(pg.topics) == 0 {
			break
		}
		for _, t := range pg.topics {
			it := normalize(t)
			if _, dup := seen[it.ID]; dup {
				continue
			}
			seen[it.ID] = struct{}{}
			items = append(items, it)
		}
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, u string, auth bool, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("V2EX API error: HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// TopicURL returns the canonical page of a topic.
func TopicURL(id string) string {
	return "https://www.v2ex.com/t/" + id
}

func normalize(t rawTopic) news.Item {
	id := strconv.FormatInt(t.ID, 10)
	u := strings.TrimSpace(t.URL)
	if u == "" {
		u = TopicURL(id)
	}
	body := t.ContentRendered
	if body == "" {
		body = t.Content
	}

	it := news.Item{
		ID:        id,
		Source:    news.V2EX,
		Title:     t.Title,
		URL:       u,
		Content:   htmltext.Strip(body),
		Replies:   t.Replies,
		Points:    t.Replies,
		CreatedAt: time.Unix(t.Created, 0).UTC(),
	}
	if t.Node != nil {
		it.Category = t.Node.Name
	}
	if t.Member != nil {
		it.Author = t.Member.Username
	}
	return it
}
