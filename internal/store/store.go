// Package store keeps the per-day item pool of one source as JSON snapshots,
// one file per calendar day.
//
// A Store assumes it is the only writer of its directory. Concurrent runs
// against the same data directory are not supported and must be serialized
// by the caller (one scheduled invocation at a time).
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TobiSchelling/digest/internal/news"
)

// DayLayout is the format of day keys and snapshot file names.
const DayLayout = "2006-01-02"

// ErrInvalidDay is returned for day keys that are not YYYY-MM-DD.
var ErrInvalidDay = errors.New("invalid day key")

// snapshot is the on-disk shape of one day's pool.
type snapshot struct {
	Date      string      `json:"date"`
	FetchedAt time.Time   `json:"fetchedAt"`
	Items     []news.Item `json:"items"`
}

// Store is the accumulation pool for a single source.
type Store struct {
	dir string
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for fetchedAt and recency windows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates the directory if needed and returns a Store rooted at it.
func Open(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating pool directory: %w", err)
	}
	s := &Store{dir: dir, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the directory holding the snapshots.
func (s *Store) Dir() string {
	return s.dir
}

// Merge upserts items into the day's snapshot by id. New data replaces the
// stored item wholesale; items keep the position of their first insertion.
// Merging the same input twice leaves the pool unchanged after the first.
func (s *Store) Merge(day string, items []news.Item) error {
	if err := ValidateDay(day); err != nil {
		return err
	}

	existing, _, err := s.read(day)
	if err != nil {
		return fmt.Errorf("reading pool %s: %w", day, err)
	}
	merged := upsert(existing, items)

	snap := snapshot{Date: day, FetchedAt: s.now().UTC(), Items: merged}
	if err := s.write(day, snap); err != nil {
		return fmt.Errorf("writing pool %s: %w", day, err)
	}
	return nil
}

// Load returns the day's pooled items. A missing, corrupt or unreadable
// snapshot yields an empty pool; the latter two are logged.
func (s *Store) Load(day string) ([]news.Item, error) {
	if err := ValidateDay(day); err != nil {
		return nil, err
	}
	snap, _, err := s.read(day)
	if err != nil {
		log.Printf("Reading pool %s: %v", s.path(day), err)
	}
	return snap.Items, nil
}

// LoadAll returns the union of the persisted pool and fresh, with fresh
// winning ties. Nothing is written.
func (s *Store) LoadAll(day string, fresh []news.Item) ([]news.Item, error) {
	existing, err := s.Load(day)
	if err != nil {
		return nil, err
	}
	return upsert(snapshot{Items: existing}, fresh), nil
}

// RecentIDs collects every item id from snapshots whose fetchedAt lies
// strictly after now-hours. The snapshot for excludeDay, if non-empty, is
// skipped. This is fetch recency, not publication recency.
func (s *Store) RecentIDs(hours float64, excludeDay string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	cutoff := s.now().Add(-time.Duration(hours * float64(time.Hour)))

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ids, nil
		}
		return nil, fmt.Errorf("listing pool directory: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		day := strings.TrimSuffix(name, ".json")
		if excludeDay != "" && day == excludeDay {
			continue
		}
		if ValidateDay(day) != nil {
			continue
		}
		snap, ok, err := s.read(day)
		if err != nil {
			log.Printf("Reading pool %s: %v", s.path(day), err)
			continue
		}
		if !ok || !snap.FetchedAt.After(cutoff) {
			continue
		}
		for _, it := range snap.Items {
			ids[it.ID] = struct{}{}
		}
	}
	return ids, nil
}

// Days lists the day keys that have a snapshot, oldest first.
func (s *Store) Days() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	var days []string
	for _, m := range matches {
		day := strings.TrimSuffix(filepath.Base(m), ".json")
		if ValidateDay(day) == nil {
			days = append(days, day)
		}
	}
	return days, nil
}

func (s *Store) path(day string) string {
	return filepath.Join(s.dir, day+".json")
}

// read loads a snapshot. ok is false when the file is absent or corrupt.
// Any other failure is returned so callers never overwrite a snapshot they
// could not read.
func (s *Store) read(day string) (snapshot, bool, error) {
	data, err := os.ReadFile(s.path(day))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snapshot{}, false, nil
		}
		return snapshot{}, false, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("Ignoring corrupt pool %s: %v", s.path(day), err)
		return snapshot{}, false, nil
	}
	return snap, true, nil
}

// write replaces the snapshot through a temp file and rename so a reader
// never observes a partial file.
func (s *Store) write(day string, snap snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+day+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(day))
}

func upsert(existing snapshot, items []news.Item) []news.Item {
	out := make([]news.Item, 0, len(existing.Items)+len(items))
	pos := make(map[string]int, cap(out))
	for _, list := range [][]news.Item{existing.Items, items} {
		for _, it := range list {
			if i, ok := pos[it.ID]; ok {
				out[i] = it
				continue
			}
			pos[it.ID] = len(out)
			out = append(out, it)
		}
	}
	return out
}

// ValidateDay reports ErrInvalidDay unless day is a YYYY-MM-DD key.
func ValidateDay(day string) error {
	if _, err := time.Parse(DayLayout, day); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDay, day)
	}
	return nil
}
