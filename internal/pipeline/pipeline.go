// Package pipeline runs the collect and generate stages: fetching sources
// into the daily pools, and ranking, enriching, rendering and publishing
// the day's digests.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TobiSchelling/digest/internal/config"
	"github.com/TobiSchelling/digest/internal/database"
	"github.com/TobiSchelling/digest/internal/extract"
	"github.com/TobiSchelling/digest/internal/llm"
	"github.com/TobiSchelling/digest/internal/news"
	"github.com/TobiSchelling/digest/internal/sources/hackernews"
	"github.com/TobiSchelling/digest/internal/sources/v2ex"
	"github.com/TobiSchelling/digest/internal/store"
	"github.com/TobiSchelling/digest/internal/summarize"
)

// ErrMissingAPIKey is returned when an AI digest is requested without
// credentials.
var ErrMissingAPIKey = errors.New("AI mode requires ai.api_key (or OPENAI_API_KEY / ANTHROPIC_API_KEY)")

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a collect or generate run.
type Result struct {
	Day     string
	Steps   []StepResult
	Outputs []string
}

// HNFetcher reads Hacker News lists.
type HNFetcher interface {
	FetchList(ctx context.Context, list string, limit int) ([]news.Item, error)
}

// V2EXFetcher reads V2EX nodes and enriches topics with supplements.
type V2EXFetcher interface {
	FetchNode(ctx context.Context, node string, pages int) ([]news.Item, error)
	Enrich(ctx context.Context, items []news.Item, fallback extract.Extractor, concurrency, maxLength int) []news.Item
}

// Ledger records which items were published and when.
type Ledger interface {
	RecentPublishedIDs(source string, hours float64, excludeDay string, now time.Time) (map[string]struct{}, error)
	MarkPublished(day, source string, ids []string, now time.Time) error
}

// Archive keeps generated digests for the viewer.
type Archive interface {
	SaveDigest(source, day, title, summary, bodyMarkdown string, itemCount int) (int64, error)
}

// Pipeline wires sources, pools, ledger and outputs together. All pool and
// ledger writes happen on the calling goroutine after network phases join.
type Pipeline struct {
	cfg        *config.Config
	hn         HNFetcher
	v2ex       V2EXFetcher
	stores     map[news.Source]*store.Store
	ledger     Ledger
	archive    Archive
	extractor  extract.Extractor
	summarizer *summarize.Summarizer
	// providerSet is true once the summarizer was chosen, by WithProvider or
	// by the first AI digest.
	providerSet bool
	outDir      string
	now         func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the wall clock for pools, ranking and the ledger.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithHackerNews replaces the Hacker News client.
func WithHackerNews(f HNFetcher) Option {
	return func(p *Pipeline) { p.hn = f }
}

// WithV2EX replaces the V2EX client.
func WithV2EX(f V2EXFetcher) Option {
	return func(p *Pipeline) { p.v2ex = f }
}

// WithExtractor replaces the content extractor; nil disables extraction.
func WithExtractor(ex extract.Extractor) Option {
	return func(p *Pipeline) { p.extractor = ex }
}

// WithProvider replaces the LLM provider used for AI digests.
func WithProvider(provider llm.Provider) Option {
	return func(p *Pipeline) {
		p.summarizer = nil
		p.providerSet = true
		if provider != nil {
			p.summarizer = summarize.New(provider, p.cfg.AI.Language)
		}
	}
}

// New creates a pipeline from configuration. db may be nil, in which case
// nothing is skipped as already published and nothing is recorded.
func New(cfg *config.Config, db *database.DB, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:    cfg,
		hn:     hackernews.NewClient(cfg.HackerNews.Concurrency),
		v2ex:   v2ex.NewClient(cfg.V2EX.Token),
		outDir: cfg.GetOutDir(),
		now:    time.Now,
	}
	if db != nil {
		p.ledger = db
		p.archive = db
	}
	if cfg.Extractor.Enabled {
		p.extractor = extract.New(cfg.Extractor.Mode, cfg.Extractor.Timeout)
	}
	for _, o := range opts {
		o(p)
	}

	p.stores = make(map[news.Source]*store.Store)
	for _, src := range []news.Source{news.HackerNews, news.V2EX} {
		s, err := store.Open(filepath.Join(cfg.GetDataDir(), string(src)), store.WithClock(p.now))
		if err != nil {
			return nil, err
		}
		p.stores[src] = s
	}
	return p, nil
}

// Store returns the pool of a source.
func (p *Pipeline) Store(src news.Source) *store.Store {
	return p.stores[src]
}

// Selection limits a run to one source.
type Selection struct {
	HNOnly   bool
	V2EXOnly bool
}

func (s Selection) hn() bool   { return !s.V2EXOnly }
func (s Selection) v2ex() bool { return !s.HNOnly }

func writeOutput(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// digestSummarizer returns the summarizer for AI digests, creating the
// configured provider on first use. Nil means no provider is available.
func (p *Pipeline) digestSummarizer() *summarize.Summarizer {
	if p.providerSet {
		return p.summarizer
	}
	p.providerSet = true
	if provider := llm.CreateProvider(llm.Settings{
		Provider: p.cfg.AI.Provider,
		APIKey:   p.cfg.AI.APIKey,
		Model:    p.cfg.AI.Model,
		BaseURL:  p.cfg.AI.BaseURL,
	}); provider != nil {
		p.summarizer = summarize.New(provider, p.cfg.AI.Language)
	}
	return p.summarizer
}
