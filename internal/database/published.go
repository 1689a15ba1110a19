package database

import (
	"fmt"
	"time"
)

// MarkPublished records ids of source as published at now under day.
// Marking an id again refreshes its timestamp and day.
func (db *DB) MarkPublished(day, source string, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin mark published: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO published (source, item_id, day, published_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(source, item_id) DO UPDATE SET day = excluded.day, published_at = excluded.published_at`,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing mark published: %w", err)
	}
	defer stmt.Close()

	ts := now.UnixNano()
	for _, id := range ids {
		if _, err := stmt.Exec(source, id, day, ts); err != nil {
			tx.Rollback()
			return fmt.Errorf("marking %s/%s: %w", source, id, err)
		}
	}
	return tx.Commit()
}

// RecentPublishedIDs returns ids of source published strictly after
// now-hours. Entries recorded under excludeDay are left out so that
// regenerating a day's digest does not suppress its own items.
func (db *DB) RecentPublishedIDs(source string, hours float64, excludeDay string, now time.Time) (map[string]struct{}, error) {
	cutoff := now.Add(-time.Duration(hours * float64(time.Hour))).UnixNano()

	rows, err := db.conn.Query(
		`SELECT item_id FROM published
		WHERE source = ? AND published_at > ? AND day <> ?`,
		source, cutoff, excludeDay,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// PublishedAt returns when id of source was last published, or nil.
func (db *DB) PublishedAt(source, id string) (*time.Time, error) {
	var ts int64
	err := db.conn.QueryRow(
		"SELECT published_at FROM published WHERE source = ? AND item_id = ?", source, id,
	).Scan(&ts)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	t := time.Unix(0, ts)
	return &t, nil
}
