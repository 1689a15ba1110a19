package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/TobiSchelling/digest/internal/news"
	"github.com/TobiSchelling/digest/internal/store"
)

// freshWindowHours is how far back collect looks to report items as new.
const freshWindowHours = 24

// Collect fetches every configured list and node and merges the results
// into the day's pools. A failing list, node or source is reported in its
// step and never stops the others.
func (p *Pipeline) Collect(ctx context.Context, day string, sel Selection) (*Result, error) {
	if err := store.ValidateDay(day); err != nil {
		return nil, err
	}
	r := &Result{Day: day}

	if p.cfg.HackerNews.Enabled && sel.hn() {
		log.Println("Collecting Hacker News...")
		failed := 0
		var fetched []news.Item
		for _, list := range p.cfg.HackerNews.Lists {
			got, err := p.hn.FetchList(ctx, list, p.cfg.HackerNews.Limit)
			if err != nil {
				log.Printf("Hacker News %s failed: %v", list, err)
				failed++
				continue
			}
			log.Printf("Hacker News %s: %d stories", list, len(got))
			fetched = append(fetched, got...)
		}
		r.Steps = append(r.Steps, p.mergeStep("Hacker News", news.HackerNews, day, fetched, failed, len(p.cfg.HackerNews.Lists)))
	}

	if p.cfg.V2EX.Enabled && sel.v2ex() {
		log.Printf("Collecting V2EX (pages: %d)...", p.cfg.V2EX.Pages)
		failed := 0
		var fetched []news.Item
		for _, node := range p.cfg.V2EX.Nodes {
			got, err := p.v2ex.FetchNode(ctx, node, p.cfg.V2EX.Pages)
			if err != nil {
				log.Printf("V2EX %s failed: %v", node, err)
				failed++
				continue
			}
			log.Printf("V2EX %s: %d topics", node, len(got))
			fetched = append(fetched, got...)
		}
		r.Steps = append(r.Steps, p.mergeStep("V2EX", news.V2EX, day, fetched, failed, len(p.cfg.V2EX.Nodes)))
	}

	return r, nil
}

func (p *Pipeline) mergeStep(name string, src news.Source, day string, fetched []news.Item, failed, total int) StepResult {
	step := StepResult{Name: name}
	if total > 0 && failed == total {
		step.Err = fmt.Errorf("all %d fetches failed", total)
		return step
	}
	if len(fetched) == 0 {
		step.Summary = "No items fetched"
		return step
	}

	s := p.stores[src]
	seen, err := s.RecentIDs(freshWindowHours, day)
	if err != nil {
		log.Printf("Reading recent %s ids: %v", src, err)
	}
	fresh := 0
	for _, it := range fetched {
		if _, ok := seen[it.ID]; !ok {
			fresh++
		}
	}

	if err := s.Merge(day, fetched); err != nil {
		step.Err = fmt.Errorf("merging %s pool: %w", src, err)
		return step
	}
	pool, err := s.Load(day)
	if err != nil {
		step.Err = err
		return step
	}

	step.Summary = fmt.Sprintf("%d fetched (%d not seen in the last %dh) → %d total in pool", len(fetched), fresh, freshWindowHours, len(pool))
	if failed > 0 {
		step.Summary += fmt.Sprintf(", %d of %d fetches failed", failed, total)
	}
	return step
}
