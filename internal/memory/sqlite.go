package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"screenpilot/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	id      TEXT NOT NULL,
	ts      INTEGER NOT NULL,
	app     TEXT NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_app ON interactions(app);
`

// persistence mirrors the ring to SQLite. All calls happen under the
// store's lock.
type persistence struct {
	db *sql.DB
}

// Open creates a store backed by a SQLite file at path, preloading the
// most recent max records so context survives restarts.
func Open(path string, max int) (*Store, error) {
	if max <= 0 {
		max = DefaultMax
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: create schema: %w", err)
	}

	s := &Store{max: max, persist: &persistence{db: db}}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.persist.db.Query(
		`SELECT payload FROM interactions ORDER BY seq DESC LIMIT ?`, s.max)
	if err != nil {
		return fmt.Errorf("memory: load history: %w", err)
	}
	defer rows.Close()

	var loaded []model.InteractionRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("memory: scan record: %w", err)
		}
		var rec model.InteractionRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			// A corrupt row is skipped, not fatal: history is advisory.
			continue
		}
		loaded = append(loaded, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("memory: iterate history: %w", err)
	}

	// Rows arrived newest-first; the ring wants oldest-first.
	for i, j := 0, len(loaded)-1; i < j; i, j = i+1, j-1 {
		loaded[i], loaded[j] = loaded[j], loaded[i]
	}
	s.records = loaded
	return nil
}

func (p *persistence) append(rec model.InteractionRecord, max int) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO interactions (id, ts, app, payload) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixMilli(), rec.App, string(payload)); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`DELETE FROM interactions WHERE seq NOT IN (SELECT seq FROM interactions ORDER BY seq DESC LIMIT ?)`,
		max); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *persistence) close() error {
	return p.db.Close()
}
