package render

import (
	"encoding/json"
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/TobiSchelling/digest/internal/news"
)

// OpenClawProfile names the machine-readable output.
const OpenClawProfile = "openclaw"

// OpenClawPayload is the full-content JSON written for agents.
type OpenClawPayload struct {
	Profile     string         `json:"profile"`
	Source      string         `json:"source"`
	Date        string         `json:"date"`
	TopN        int            `json:"topN"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Items       []OpenClawItem `json:"items"`
}

// OpenClawItem is a ranked item with its position and score.
type OpenClawItem struct {
	Rank             int         `json:"rank"`
	Score            float64     `json:"score"`
	ID               string      `json:"id"`
	Source           news.Source `json:"source"`
	Title            string      `json:"title"`
	URL              string      `json:"url"`
	Content          string      `json:"content"`
	Category         string      `json:"category"`
	Author           string      `json:"author"`
	Replies          int         `json:"replies"`
	Points           int         `json:"points"`
	CreatedAt        time.Time   `json:"createdAt"`
	ContentTruncated bool        `json:"contentTruncated"`
}

// NewOpenClaw builds the payload for one source. Scores are rounded to six
// decimals; an empty ranking still yields a valid payload.
func NewOpenClaw(source news.Source, day string, ranked []news.Scored, generatedAt time.Time) OpenClawPayload {
	return OpenClawPayload{
		Profile:     OpenClawProfile,
		Source:      source.Short(),
		Date:        day,
		TopN:        len(ranked),
		GeneratedAt: generatedAt.UTC(),
		Items: lo.Map(ranked, func(s news.Scored, i int) OpenClawItem {
			it := s.Item
			return OpenClawItem{
				Rank:             i + 1,
				Score:            math.Round(s.Score*1e6) / 1e6,
				ID:               it.ID,
				Source:           it.Source,
				Title:            it.Title,
				URL:              it.URL,
				Content:          it.Content,
				Category:         it.Category,
				Author:           it.Author,
				Replies:          it.Replies,
				Points:           it.Points,
				CreatedAt:        it.CreatedAt,
				ContentTruncated: it.ContentTruncated,
			}
		}),
	}
}

// JSON encodes the payload with two-space indentation.
func (p OpenClawPayload) JSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}
