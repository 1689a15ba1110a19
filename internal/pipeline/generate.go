package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/TobiSchelling/digest/internal/extract"
	"github.com/TobiSchelling/digest/internal/news"
	"github.com/TobiSchelling/digest/internal/rank"
	"github.com/TobiSchelling/digest/internal/render"
	"github.com/TobiSchelling/digest/internal/store"
)

// Mode selects what generate produces.
type Mode string

const (
	// AIDigest writes summarized markdown for people and LLM context.
	AIDigest Mode = "ai_digest"
	// OpenClaw writes full-content JSON without any AI.
	OpenClaw Mode = "openclaw"
)

// ParseMode validates a profile name.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.TrimSpace(raw)); m {
	case AIDigest, OpenClaw:
		return m, nil
	}
	return "", fmt.Errorf("invalid profile %q: use %q or %q", raw, AIDigest, OpenClaw)
}

// GenerateOptions tunes a generate run.
type GenerateOptions struct {
	Selection
	// TopN overrides the per-source top_n when positive.
	TopN int
}

type sourcePlan struct {
	src     news.Source
	title   string
	topN    int
	exclude []string
}

// Generate ranks the day's pools and writes the outputs for mode. Items
// published within skip_hours on earlier days are left out, and the items
// written are recorded in the ledger.
func (p *Pipeline) Generate(ctx context.Context, day string, mode Mode, opts GenerateOptions) (*Result, error) {
	if err := store.ValidateDay(day); err != nil {
		return nil, err
	}
	if mode == AIDigest && p.digestSummarizer() == nil {
		return nil, ErrMissingAPIKey
	}

	log.Printf("Generating %s for %s", mode, day)
	r := &Result{Day: day}

	var plans []sourcePlan
	if opts.hn() {
		plans = append(plans, sourcePlan{
			src:   news.HackerNews,
			title: "Hacker News 日报 " + day,
			topN:  pick(opts.TopN, p.cfg.HackerNews.TopN),
		})
	}
	if opts.v2ex() {
		plans = append(plans, sourcePlan{
			src:     news.V2EX,
			title:   "V2EX 日报 " + day,
			topN:    pick(opts.TopN, p.cfg.V2EX.TopN),
			exclude: p.cfg.V2EX.ExcludeNodes,
		})
	}

	published := 0
	for _, plan := range plans {
		ranked, step := p.rankSource(day, plan)
		r.Steps = append(r.Steps, step)
		if step.Err != nil {
			continue
		}

		var outStep StepResult
		switch mode {
		case OpenClaw:
			outStep = p.writeOpenClaw(ctx, r, day, plan, ranked)
		default:
			if len(ranked) == 0 {
				continue
			}
			outStep = p.writeAIDigest(ctx, r, day, plan, ranked)
		}
		r.Steps = append(r.Steps, outStep)
		if outStep.Err == nil {
			p.markPublished(day, plan.src, ranked)
			published += len(ranked)
		}
	}

	if published == 0 {
		if mode == OpenClaw {
			log.Println("No items to publish; wrote empty openclaw files")
		} else {
			log.Println("No digest produced: every item was filtered out or the pools are empty")
		}
	}
	return r, nil
}

func pick(override, configured int) int {
	if override > 0 {
		return override
	}
	return configured
}

func (p *Pipeline) rankSource(day string, plan sourcePlan) ([]news.Scored, StepResult) {
	step := StepResult{Name: "Rank " + plan.src.Short()}

	pool, err := p.stores[plan.src].LoadAll(day, nil)
	if err != nil {
		step.Err = err
		return nil, step
	}

	skip := p.skipSet(day, plan.src)
	ranked := rank.Rank(pool, plan.topN, skip, plan.exclude, p.now())
	step.Summary = fmt.Sprintf("%d pooled → %d ranked (%d recently published skipped)", len(pool), len(ranked), len(skip))
	log.Printf("%s: %s", plan.src, step.Summary)
	return ranked, step
}

// skipSet returns ids published recently on other days. An unavailable
// ledger yields an empty set.
func (p *Pipeline) skipSet(day string, src news.Source) map[string]struct{} {
	if p.ledger == nil {
		log.Printf("Publication ledger unavailable; nothing skipped for %s", src)
		return map[string]struct{}{}
	}
	ids, err := p.ledger.RecentPublishedIDs(string(src), p.cfg.SkipHours, day, p.now())
	if err != nil {
		log.Printf("Reading publication ledger for %s: %v", src, err)
		return map[string]struct{}{}
	}
	return ids
}

func (p *Pipeline) markPublished(day string, src news.Source, ranked []news.Scored) {
	if p.ledger == nil || len(ranked) == 0 {
		return
	}
	if err := p.ledger.MarkPublished(day, string(src), news.IDs(ranked), p.now()); err != nil {
		log.Printf("Recording published %s items: %v", src, err)
	}
}

// enrich fills in content for ranked items: V2EX supplements first, then
// article extraction. maxLength zero keeps full content.
func (p *Pipeline) enrich(ctx context.Context, src news.Source, ranked []news.Scored, maxLength int) {
	if len(ranked) == 0 {
		return
	}
	items := news.Items(ranked)
	concurrency := p.cfg.Extractor.Concurrency

	if src == news.V2EX {
		log.Printf("Enriching %d V2EX topics with supplements...", len(items))
		items = p.v2ex.Enrich(ctx, items, p.extractor, concurrency, maxLength)
	}
	if p.extractor != nil {
		items = extract.Batch(ctx, p.extractor, items, extract.Options{
			Concurrency: concurrency,
			MaxLength:   maxLength,
		})
	}
	for i := range ranked {
		ranked[i].Item = items[i]
	}
}

func (p *Pipeline) writeOpenClaw(ctx context.Context, r *Result, day string, plan sourcePlan, ranked []news.Scored) StepResult {
	step := StepResult{Name: "OpenClaw " + plan.src.Short()}
	p.enrich(ctx, plan.src, ranked, 0)

	data, err := render.NewOpenClaw(plan.src, day, ranked, p.now()).JSON()
	if err != nil {
		step.Err = fmt.Errorf("encoding openclaw payload: %w", err)
		return step
	}
	path := filepath.Join(p.outDir, render.OpenClawProfile, fmt.Sprintf("%s-%s.json", plan.src.Short(), day))
	if err := writeOutput(path, data); err != nil {
		step.Err = err
		return step
	}
	r.Outputs = append(r.Outputs, path)
	step.Summary = fmt.Sprintf("Wrote %d items to %s", len(ranked), path)
	return step
}

func (p *Pipeline) writeAIDigest(ctx context.Context, r *Result, day string, plan sourcePlan, ranked []news.Scored) StepResult {
	step := StepResult{Name: "Digest " + plan.src.Short()}
	p.enrich(ctx, plan.src, ranked, p.cfg.Extractor.MaxLength)

	entries := make([]render.Entry, len(ranked))
	summarized := 0
	for i, s := range ranked {
		ctxText := strings.TrimSpace(s.Item.Content)
		digest := p.summarizer.Item(ctx, s.Item)
		if digest != "" {
			summarized++
		} else {
			source := ctxText
			if source == "" {
				source = s.Item.Title
			}
			digest = render.Snippet(source, render.SnippetLength)
		}
		entries[i] = render.Entry{Item: s.Item, Score: s.Score, Digest: digest, Context: ctxText}
	}
	overall := p.summarizer.All(ctx, news.Items(ranked))

	doc := render.Document{Title: plan.title, Date: day, Summary: overall, Entries: entries}
	name := fmt.Sprintf("%s-%s.md", plan.src.Short(), day)
	for _, profile := range []render.Profile{render.LLMContext, render.HumanDigest} {
		path := filepath.Join(p.outDir, string(profile), name)
		md, err := render.Markdown(doc, profile)
		if err != nil {
			step.Err = err
			return step
		}
		if err := writeOutput(path, []byte(md)); err != nil {
			step.Err = err
			return step
		}
		r.Outputs = append(r.Outputs, path)
	}

	if p.archive != nil {
		if _, err := p.archive.SaveDigest(string(plan.src), day, plan.title, overall, render.Body(doc, render.HumanDigest), len(entries)); err != nil {
			log.Printf("Archiving %s digest: %v", plan.src, err)
		}
	}

	step.Summary = fmt.Sprintf("%d items, %d AI summaries, %d snippet fallbacks", len(entries), summarized, len(entries)-summarized)
	return step
}
