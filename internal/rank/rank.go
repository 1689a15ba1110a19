// Package rank orders a candidate pool by time-decayed engagement.
//
//	score = (e - 1) / (hours + 2) ^ 1.8
//
// where e is the item's engagement (points for Hacker News, replies for
// V2EX) and hours is the age of the item, floored at zero.
package rank

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tomakado/containers/set"

	"github.com/TobiSchelling/digest/internal/news"
)

// Gravity is the exponent of the age penalty.
const Gravity = 1.8

// Score computes the time-decayed score of one item at now. Items with
// engagement of one or less are not rankable and score zero, as does any
// item whose score would come out negative or non-finite.
func Score(it news.Item, now time.Time) float64 {
	e := it.Engagement()
	if e <= 1 {
		return 0
	}
	hours := math.Max(now.Sub(it.CreatedAt).Hours(), 0)
	score := float64(e-1) / math.Pow(hours+2, Gravity)
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 {
		return 0
	}
	return score
}

// Rank deduplicates pool by id (first occurrence wins), drops ids in skip
// and items whose category is in excludeCategories (case-insensitive),
// scores the rest at now and returns at most topN items, highest first.
// Equal scores keep their pool order.
func Rank(pool []news.Item, topN int, skip map[string]struct{}, excludeCategories []string, now time.Time) []news.Scored {
	if topN <= 0 {
		return nil
	}

	excluded := set.New(lo.Map(excludeCategories, func(c string, _ int) string {
		return strings.ToLower(c)
	})...)

	unique := lo.UniqBy(pool, func(it news.Item) string { return it.ID })
	candidates := lo.Filter(unique, func(it news.Item, _ int) bool {
		if _, ok := skip[it.ID]; ok {
			return false
		}
		return !excluded.Contains(strings.ToLower(it.Category))
	})

	scored := lo.FilterMap(candidates, func(it news.Item, _ int) (news.Scored, bool) {
		s := Score(it, now)
		return news.Scored{Item: it, Score: s}, s > 0
	})

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored
}
