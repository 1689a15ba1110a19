package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/samber/lo"

	"github.com/TobiSchelling/digest/internal/config"
	"github.com/TobiSchelling/digest/internal/database"
	"github.com/TobiSchelling/digest/internal/extract"
	"github.com/TobiSchelling/digest/internal/news"
	"github.com/TobiSchelling/digest/internal/render"
	"github.com/TobiSchelling/digest/internal/store"
)

const day1 = "2026-02-06"

var t0 = time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type fakeHN struct {
	lists map[string][]news.Item
}

func (f *fakeHN) FetchList(_ context.Context, list string, _ int) ([]news.Item, error) {
	items, ok := f.lists[list]
	if !ok {
		return nil, fmt.Errorf("list %s unavailable", list)
	}
	return items, nil
}

type fakeV2EX struct {
	nodes    map[string][]news.Item
	enriched int
}

func (f *fakeV2EX) FetchNode(_ context.Context, node string, _ int) ([]news.Item, error) {
	items, ok := f.nodes[node]
	if !ok {
		return nil, fmt.Errorf("node %s unavailable", node)
	}
	return items, nil
}

func (f *fakeV2EX) Enrich(_ context.Context, items []news.Item, _ extract.Extractor, _, _ int) []news.Item {
	f.enriched += len(items)
	return lo.Map(items, func(it news.Item, _ int) news.Item {
		it.Content += "\n\n--- 附言 1 ---\nupdate"
		return it
	})
}

type mockProvider struct {
	err error
}

func (m *mockProvider) Generate(_ context.Context, system, user string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if strings.Contains(system, "3–5 sentences") {
		return "Overall highlights.", nil
	}
	title, _, _ := strings.Cut(strings.TrimPrefix(user, "Title: "), "\n")
	return "Summary of " + title, nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func hn(id string, points int, created time.Time) news.Item {
	return news.Item{
		ID: id, Source: news.HackerNews, Title: "HN " + id, URL: "https://example.com/" + id,
		Content: "Body of story " + id + ".", Category: "story", Author: "a", Points: points, CreatedAt: created,
	}
}

func vx(id string, replies int, node string, created time.Time) news.Item {
	return news.Item{
		ID: id, Source: news.V2EX, Title: "V2 " + id, URL: "https://www.v2ex.com/t/" + id,
		Content: "topic " + id, Category: node, Author: "b", Replies: replies, Points: replies, CreatedAt: created,
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		AI:         config.AI{Provider: "openai", Language: "English"},
		HackerNews: config.HackerNews{Enabled: true, Lists: []string{"top", "best"}, Limit: 30, TopN: 20, Concurrency: 2},
		V2EX:       config.V2EX{Enabled: true, Nodes: []string{"hot"}, ExcludeNodes: []string{"Deals"}, TopN: 20, Pages: 1},
		SkipHours:  72,
		Extractor:  config.Extractor{Concurrency: 2, MaxLength: 5000},
		Output:     config.Output{DataDir: filepath.Join(dir, "data"), OutDir: filepath.Join(dir, "out")},
	}
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "digest.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fixture struct {
	cfg   *config.Config
	db    *database.DB
	clock *clock
	hn    *fakeHN
	v2ex  *fakeV2EX
	p     *Pipeline
}

func newFixture(t *testing.T, withDB bool, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		cfg:   testConfig(t),
		clock: &clock{now: t0},
		hn: &fakeHN{lists: map[string][]news.Item{
			"top": {hn("1", 101, t0), hn("2", 11, t0.Add(-22*time.Hour)), hn("3", 1, t0)},
		}},
		v2ex: &fakeV2EX{nodes: map[string][]news.Item{
			"hot": {vx("10", 40, "deals", t0), vx("11", 5, "python", t0)},
		}},
	}
	var db *database.DB
	if withDB {
		db = openTestDB(t)
		f.db = db
	}
	all := append([]Option{WithClock(f.clock.Now), WithHackerNews(f.hn), WithV2EX(f.v2ex), WithExtractor(nil)}, opts...)
	p, err := New(f.cfg, db, all...)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	f.p = p
	return f
}

func (f *fixture) collect(t *testing.T, day string) *Result {
	t.Helper()
	r, err := f.p.Collect(context.Background(), day, Selection{})
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	return r
}

func readOpenClaw(t *testing.T, path string) render.OpenClawPayload {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	var payload render.OpenClawPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	return payload
}

func payloadIDs(p render.OpenClawPayload) []string {
	return lo.Map(p.Items, func(it render.OpenClawItem, _ int) string { return it.ID })
}

func TestCollectMergesSourcesAndIsolatesFailures(t *testing.T) {
	f := newFixture(t, false)

	r := f.collect(t, day1)
	if len(r.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(r.Steps))
	}
	hnStep := r.Steps[0]
	if hnStep.Err != nil {
		t.Fatalf("unexpected HN error: %v", hnStep.Err)
	}
	if !strings.Contains(hnStep.Summary, "1 of 2 fetches failed") {
		t.Errorf("expected partial failure in summary, got %q", hnStep.Summary)
	}
	if !strings.Contains(hnStep.Summary, "3 total in pool") {
		t.Errorf("expected pool size in summary, got %q", hnStep.Summary)
	}

	pool, _ := f.p.Store(news.V2EX).Load(day1)
	if len(pool) != 2 {
		t.Errorf("expected 2 pooled V2EX topics, got %d", len(pool))
	}

	// A second collect upserts instead of duplicating.
	f.hn.lists["top"] = []news.Item{hn("1", 150, t0), hn("4", 30, t0)}
	f.collect(t, day1)
	pool, _ = f.p.Store(news.HackerNews).Load(day1)
	got := lo.Map(pool, func(it news.Item, _ int) string { return it.ID })
	if diff := cmp.Diff([]string{"1", "2", "3", "4"}, got); diff != "" {
		t.Errorf("pool mismatch (-want +got):\n%s", diff)
	}
	if pool[0].Points != 150 {
		t.Errorf("expected refreshed points, got %d", pool[0].Points)
	}
}

func TestCollectSourceFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t, false)
	f.hn.lists = map[string][]news.Item{}

	r := f.collect(t, day1)
	if r.Steps[0].Err == nil {
		t.Error("expected HN step to fail when every list fails")
	}
	if r.Steps[1].Err != nil {
		t.Errorf("expected V2EX step to succeed, got %v", r.Steps[1].Err)
	}
	if pool, _ := f.p.Store(news.V2EX).Load(day1); len(pool) != 2 {
		t.Errorf("expected V2EX pool to be written, got %d items", len(pool))
	}
}

func TestCollectSelectionAndInvalidDay(t *testing.T) {
	f := newFixture(t, false)

	r, err := f.p.Collect(context.Background(), day1, Selection{HNOnly: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Steps) != 1 || r.Steps[0].Name != "Hacker News" {
		t.Errorf("expected only the HN step, got %+v", r.Steps)
	}

	if _, err := f.p.Collect(context.Background(), "06/02/2026", Selection{}); !errors.Is(err, store.ErrInvalidDay) {
		t.Errorf("expected ErrInvalidDay, got %v", err)
	}
}

func TestGenerateAIDigestRequiresAPIKey(t *testing.T) {
	f := newFixture(t, false)
	if _, err := f.p.Generate(context.Background(), day1, AIDigest, GenerateOptions{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestCollectDoesNotCreateProvider(t *testing.T) {
	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	f := newFixture(t, false)
	f.collect(t, day1)
	if _, err := f.p.Generate(context.Background(), day1, OpenClaw, GenerateOptions{}); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if strings.Contains(logs.String(), "No LLM provider available") {
		t.Errorf("collect and openclaw should not look up an LLM provider:\n%s", logs.String())
	}

	if _, err := f.p.Generate(context.Background(), day1, AIDigest, GenerateOptions{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if !strings.Contains(logs.String(), "No LLM provider available") {
		t.Error("expected the missing provider to be reported for AI digests")
	}
}

func TestProviderCreatedOnFirstAIDigest(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.APIKey = "sk-test"
	p, err := New(cfg, nil, WithExtractor(nil))
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	if p.summarizer != nil {
		t.Fatal("expected no summarizer before an AI digest is requested")
	}
	if p.digestSummarizer() == nil {
		t.Fatal("expected a summarizer from the configured key")
	}

	// An explicit nil provider wins over the configured key.
	p, err = New(cfg, nil, WithExtractor(nil), WithProvider(nil))
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	if _, err := p.Generate(context.Background(), day1, AIDigest, GenerateOptions{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGenerateOpenClaw(t *testing.T) {
	f := newFixture(t, true)
	f.collect(t, day1)

	r, err := f.p.Generate(context.Background(), day1, OpenClaw, GenerateOptions{})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(r.Outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %v", r.Outputs)
	}

	hnPayload := readOpenClaw(t, filepath.Join(f.cfg.Output.OutDir, "openclaw", "hn-"+day1+".json"))
	if diff := cmp.Diff([]string{"1", "2"}, payloadIDs(hnPayload)); diff != "" {
		t.Errorf("hn ranking mismatch (-want +got):\n%s", diff)
	}
	if hnPayload.Items[0].Rank != 1 || hnPayload.Items[0].Score != 28.717459 {
		t.Errorf("unexpected first item: %+v", hnPayload.Items[0])
	}

	v2Payload := readOpenClaw(t, filepath.Join(f.cfg.Output.OutDir, "openclaw", "v2ex-"+day1+".json"))
	if diff := cmp.Diff([]string{"11"}, payloadIDs(v2Payload)); diff != "" {
		t.Errorf("v2ex ranking mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(v2Payload.Items[0].Content, "附言") {
		t.Error("expected V2EX content to be enriched")
	}

	ids, err := f.db.RecentPublishedIDs("hackernews", 72, "", t0)
	if err != nil {
		t.Fatalf("reading ledger: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 published HN ids, got %v", ids)
	}
}

func TestGenerateSkipsRecentlyPublishedOnOtherDays(t *testing.T) {
	f := newFixture(t, true)
	f.collect(t, day1)
	if _, err := f.p.Generate(context.Background(), day1, OpenClaw, GenerateOptions{Selection: Selection{HNOnly: true}}); err != nil {
		t.Fatalf("generate day1 failed: %v", err)
	}

	day2 := "2026-02-07"
	f.clock.now = t0.Add(24 * time.Hour)
	f.hn.lists["top"] = []news.Item{hn("1", 300, t0), hn("2", 50, t0), hn("4", 50, f.clock.now)}
	f.collect(t, day2)

	if _, err := f.p.Generate(context.Background(), day2, OpenClaw, GenerateOptions{Selection: Selection{HNOnly: true}}); err != nil {
		t.Fatalf("generate day2 failed: %v", err)
	}
	p2 := readOpenClaw(t, filepath.Join(f.cfg.Output.OutDir, "openclaw", "hn-"+day2+".json"))
	if diff := cmp.Diff([]string{"4"}, payloadIDs(p2)); diff != "" {
		t.Errorf("day2 should skip items published on day1 (-want +got):\n%s", diff)
	}

	// Regenerating day1 reproduces its digest.
	if _, err := f.p.Generate(context.Background(), day1, OpenClaw, GenerateOptions{Selection: Selection{HNOnly: true}}); err != nil {
		t.Fatalf("regenerate day1 failed: %v", err)
	}
	p1 := readOpenClaw(t, filepath.Join(f.cfg.Output.OutDir, "openclaw", "hn-"+day1+".json"))
	if diff := cmp.Diff([]string{"1", "2"}, payloadIDs(p1)); diff != "" {
		t.Errorf("day1 regeneration mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateOpenClawEmptyPoolStillWrites(t *testing.T) {
	f := newFixture(t, true)

	r, err := f.p.Generate(context.Background(), day1, OpenClaw, GenerateOptions{TopN: 5})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(r.Outputs) != 2 {
		t.Fatalf("expected empty files for both sources, got %v", r.Outputs)
	}
	payload := readOpenClaw(t, r.Outputs[0])
	if payload.TopN != 0 || len(payload.Items) != 0 {
		t.Errorf("expected empty payload, got %+v", payload)
	}
}

func TestGenerateTopNOverride(t *testing.T) {
	f := newFixture(t, false)
	f.collect(t, day1)

	r, err := f.p.Generate(context.Background(), day1, OpenClaw, GenerateOptions{TopN: 1, Selection: Selection{HNOnly: true}})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if payload := readOpenClaw(t, r.Outputs[0]); len(payload.Items) != 1 || payload.Items[0].ID != "1" {
		t.Errorf("expected only the top item, got %+v", payloadIDs(payload))
	}
}

func TestGenerateWithoutLedgerSkipsNothing(t *testing.T) {
	f := newFixture(t, false)
	f.collect(t, day1)

	for i := 0; i < 2; i++ {
		r, err := f.p.Generate(context.Background(), day1, OpenClaw, GenerateOptions{Selection: Selection{HNOnly: true}})
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		if payload := readOpenClaw(t, r.Outputs[0]); len(payload.Items) != 2 {
			t.Errorf("run %d: expected 2 items, got %d", i, len(payload.Items))
		}
	}
}

func TestGenerateAIDigest(t *testing.T) {
	f := newFixture(t, true, WithProvider(&mockProvider{}))
	f.collect(t, day1)

	r, err := f.p.Generate(context.Background(), day1, AIDigest, GenerateOptions{})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(r.Outputs) != 4 {
		t.Fatalf("expected llm_context and human_digest for both sources, got %v", r.Outputs)
	}

	human, err := os.ReadFile(filepath.Join(f.cfg.Output.OutDir, "human_digest", "hn-"+day1+".md"))
	if err != nil {
		t.Fatalf("reading human digest: %v", err)
	}
	for _, want := range []string{"Hacker News 日报 2026-02-06", "Overall highlights.", "## [HN 1](https://example.com/1)", "Summary of HN 1"} {
		if !strings.Contains(string(human), want) {
			t.Errorf("human digest missing %q", want)
		}
	}

	llmCtx, err := os.ReadFile(filepath.Join(f.cfg.Output.OutDir, "llm_context", "v2ex-"+day1+".md"))
	if err != nil {
		t.Fatalf("reading llm context: %v", err)
	}
	if !strings.Contains(string(llmCtx), "附言") {
		t.Error("expected enriched V2EX context in llm_context output")
	}

	d, err := f.db.GetDigest("hackernews", day1)
	if err != nil || d == nil {
		t.Fatalf("expected archived digest, got %v (%v)", d, err)
	}
	if d.ItemCount != 2 || d.Summary != "Overall highlights." {
		t.Errorf("unexpected archived digest: %+v", d)
	}
	if strings.HasPrefix(d.BodyMarkdown, "---") {
		t.Error("archived body should not carry frontmatter")
	}
}

func TestGenerateAIDigestFallsBackToSnippet(t *testing.T) {
	f := newFixture(t, false, WithProvider(&mockProvider{err: errors.New("quota exceeded")}))
	f.collect(t, day1)

	r, err := f.p.Generate(context.Background(), day1, AIDigest, GenerateOptions{Selection: Selection{HNOnly: true}})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	last := r.Steps[len(r.Steps)-1]
	if !strings.Contains(last.Summary, "0 AI summaries, 2 snippet fallbacks") {
		t.Errorf("unexpected summary %q", last.Summary)
	}
	human, _ := os.ReadFile(filepath.Join(f.cfg.Output.OutDir, "human_digest", "hn-"+day1+".md"))
	if !strings.Contains(string(human), "Body of story 1.") {
		t.Error("expected snippet of the content as digest")
	}
}

func TestGenerateAIDigestSkipsEmptySource(t *testing.T) {
	f := newFixture(t, false, WithProvider(&mockProvider{}))

	r, err := f.p.Generate(context.Background(), day1, AIDigest, GenerateOptions{})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(r.Outputs) != 0 {
		t.Errorf("expected no outputs for empty pools, got %v", r.Outputs)
	}
}

func TestParseMode(t *testing.T) {
	for _, raw := range []string{"ai_digest", "openclaw"} {
		if m, err := ParseMode(raw); err != nil || string(m) != raw {
			t.Errorf("ParseMode(%q) = %q, %v", raw, m, err)
		}
	}
	if _, err := ParseMode("html"); err == nil {
		t.Error("expected error for unknown profile")
	}
}
