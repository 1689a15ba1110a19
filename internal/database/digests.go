package database

import (
	"database/sql"
	"errors"
)

// SaveDigest inserts or replaces the digest for a source and day.
func (db *DB) SaveDigest(source, day, title, summary, bodyMarkdown string, itemCount int) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT OR REPLACE INTO digests
		(source, day, title, summary, body_markdown, item_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		source, day, title, summary, bodyMarkdown, itemCount,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetDigest returns the digest for a source and day.
func (db *DB) GetDigest(source, day string) (*Digest, error) {
	row := db.conn.QueryRow(
		`SELECT id, source, day, title, summary, body_markdown, item_count, generated_at
		FROM digests WHERE source = ? AND day = ?`, source, day,
	)

	var d Digest
	if err := row.Scan(&d.ID, &d.Source, &d.Day, &d.Title, &d.Summary,
		&d.BodyMarkdown, &d.ItemCount, &d.GeneratedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// GetAllDigests returns all digests, newest day first.
func (db *DB) GetAllDigests() ([]Digest, error) {
	rows, err := db.conn.Query(
		`SELECT id, source, day, title, summary, body_markdown, item_count, generated_at
		FROM digests ORDER BY day DESC, source ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var digests []Digest
	for rows.Next() {
		var d Digest
		if err := rows.Scan(&d.ID, &d.Source, &d.Day, &d.Title, &d.Summary,
			&d.BodyMarkdown, &d.ItemCount, &d.GeneratedAt); err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{BySource: make(map[string]int)}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM published", &s.PublishedItems},
		{"SELECT COUNT(DISTINCT day) FROM published", &s.PublishedDays},
		{"SELECT COUNT(*) FROM digests", &s.Digests},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	rows, err := db.conn.Query("SELECT source, COUNT(*) FROM published GROUP BY source")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		s.BySource[source] = n
	}

	return s, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
