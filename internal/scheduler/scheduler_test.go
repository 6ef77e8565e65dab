package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"screenpilot/internal/agent"
)

type recordingSink struct {
	mu      sync.Mutex
	intents []agent.Intent
}

func (r *recordingSink) Submit(ctx context.Context, in agent.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, in)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.intents)
}

func writeSchedule(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write schedule: %v", err)
	}
	return path
}

func TestMissingFileIsEmptySchedule(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(s.Tasks) != 0 {
		t.Errorf("expected empty schedule, got %d tasks", len(s.Tasks))
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeSchedule(t, `
tasks:
  - name: morning-news
    intent: check the news headlines
    every: 1h
  - name: inbox
    intent: check for new mail
    every: 30m
    enabled: false
`)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(s.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(s.Tasks))
	}
	if !s.Tasks[0].enabled() || s.Tasks[1].enabled() {
		t.Error("enabled flags parsed wrong")
	}
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing name", "tasks:\n  - intent: x\n    every: 1h"},
		{"missing intent", "tasks:\n  - name: a\n    every: 1h"},
		{"interval too short", "tasks:\n  - name: a\n    intent: x\n    every: 100ms"},
		{"duplicate name", "tasks:\n  - name: a\n    intent: x\n    every: 1h\n  - name: a\n    intent: y\n    every: 1h"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeSchedule(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestRunnerSubmitsOnInterval(t *testing.T) {
	sink := &recordingSink{}
	s := &Schedule{Tasks: []Task{{Name: "fast", Intent: "ping", Every: 20 * time.Millisecond}}}
	// Bypass Load's 1s minimum: validation guards config files, not
	// in-process test schedules.
	r := NewRunner(s, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	if sink.count() < 2 {
		t.Errorf("expected at least 2 submissions, got %d", sink.count())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.intents[0].Source != "scheduler" || sink.intents[0].Text != "ping" {
		t.Errorf("unexpected intent: %+v", sink.intents[0])
	}
}

func TestDisabledTaskNeverFires(t *testing.T) {
	off := false
	sink := &recordingSink{}
	s := &Schedule{Tasks: []Task{{Name: "off", Intent: "ping", Every: 10 * time.Millisecond, Enabled: &off}}}
	r := NewRunner(s, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	if sink.count() != 0 {
		t.Errorf("disabled task submitted %d intents", sink.count())
	}
}
