package news

import (
	"time"

	"github.com/samber/lo"
)

// Source identifies where an item was collected from.
type Source string

const (
	HackerNews Source = "hackernews"
	V2EX       Source = "v2ex"
)

// Short returns the abbreviated source name used in output file names.
func (s Source) Short() string {
	if s == HackerNews {
		return "hn"
	}
	return string(s)
}

// Item is the source-agnostic representation of one piece of content.
// ID is unique within a Source and never changes across fetches.
type Item struct {
	ID               string    `json:"id"`
	Source           Source    `json:"source"`
	Title            string    `json:"title"`
	URL              string    `json:"url"`
	Content          string    `json:"content"`
	Category         string    `json:"category"`
	Author           string    `json:"author"`
	Replies          int       `json:"replies"`
	Points           int       `json:"points"`
	CreatedAt        time.Time `json:"createdAt"`
	ContentTruncated bool      `json:"contentTruncated,omitempty"`
}

// Engagement returns the ranking signal: points for Hacker News,
// reply count for everything else.
func (it Item) Engagement() int {
	if it.Source == HackerNews {
		return it.Points
	}
	return it.Replies
}

// Scored pairs an item with the score from one ranking pass.
type Scored struct {
	Item  Item
	Score float64
}

// Items unwraps a ranked list.
func Items(scored []Scored) []Item {
	return lo.Map(scored, func(s Scored, _ int) Item { return s.Item })
}

// IDs returns the ids of a ranked list in rank order.
func IDs(scored []Scored) []string {
	return lo.Map(scored, func(s Scored, _ int) string { return s.Item.ID })
}
