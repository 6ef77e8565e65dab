// Package memory keeps the bounded, append-only interaction history the
// agent feeds back to the reasoner as context. Append is the only
// mutation; records are never edited and evict oldest-first past the
// configured maximum.
package memory

import (
	"fmt"
	"strings"
	"sync"

	"screenpilot/internal/model"
)

// DefaultMax is the record cap when none is configured.
const DefaultMax = 100

// Store is the in-memory history ring. A store opened with Open also
// mirrors appends to SQLite so history survives restarts.
type Store struct {
	mu      sync.Mutex
	max     int
	records []model.InteractionRecord
	persist *persistence
}

// New creates a volatile store bounded to max records.
func New(max int) *Store {
	if max <= 0 {
		max = DefaultMax
	}
	return &Store{max: max}
}

// Append adds a completed cycle record, evicting the oldest entry when
// the cap is exceeded.
func (s *Store) Append(rec model.InteractionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if len(s.records) > s.max {
		s.records = s.records[len(s.records)-s.max:]
	}

	if s.persist != nil {
		if err := s.persist.append(rec, s.max); err != nil {
			return fmt.Errorf("memory: persist record: %w", err)
		}
	}
	return nil
}

// Recent returns up to n records, oldest first (most recent last).
func (s *Store) Recent(n int) []model.InteractionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.records) {
		n = len(s.records)
	}
	out := make([]model.InteractionRecord, n)
	copy(out, s.records[len(s.records)-n:])
	return out
}

// AppRecent returns up to n records whose cycle touched the given app,
// oldest first.
func (s *Store) AppRecent(app string, n int) []model.InteractionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.InteractionRecord
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		if s.records[i].App == app {
			out = append(out, s.records[i])
		}
	}
	// Reverse to oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Len returns the current record count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Close releases the persistence layer, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persist == nil {
		return nil
	}
	err := s.persist.close()
	s.persist = nil
	return err
}

// Context formats recent history for a reasoner prompt: the last n
// cycles, plus up to 3 prior cycles in the current foreground app.
// Raw screen text never appears here, only intents and outcomes.
func (s *Store) Context(currentApp string, n int) string {
	recent := s.Recent(n)
	if len(recent) == 0 {
		return "No previous context"
	}

	var b strings.Builder
	b.WriteString("Recent interactions:\n")
	for i, rec := range recent {
		fmt.Fprintf(&b, "%d. %s in %s - %s\n", i+1, rec.Intent, orUnknown(rec.App), outcomeLabel(rec))
	}

	if currentApp != "" {
		appHist := s.AppRecent(currentApp, 3)
		if len(appHist) > 0 {
			fmt.Fprintf(&b, "Previous actions in %s:\n", currentApp)
			for i, rec := range appHist {
				fmt.Fprintf(&b, "%d. %s - %s\n", i+1, rec.Intent, outcomeLabel(rec))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func outcomeLabel(rec model.InteractionRecord) string {
	if rec.Aborted {
		return "aborted"
	}
	if rec.Succeeded() {
		return "success"
	}
	return "failed"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
