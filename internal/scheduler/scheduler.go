// Package scheduler submits synthetic intents on a timer. Scheduled
// tasks enter the same agent queue as interactive intents; the
// scheduler has no privileged path around policy or routing.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"screenpilot/internal/agent"
)

// Task is one recurring intent.
type Task struct {
	Name    string        `yaml:"name"`
	Intent  string        `yaml:"intent"`
	Every   time.Duration `yaml:"every"`
	Enabled *bool         `yaml:"enabled"` // nil means enabled
}

func (t Task) enabled() bool { return t.Enabled == nil || *t.Enabled }

// Schedule is the parsed task file.
type Schedule struct {
	Tasks []Task `yaml:"tasks"`
}

// Load reads task definitions from a YAML file. A missing file is an
// empty schedule, not an error.
func Load(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Schedule{}, nil
		}
		return nil, fmt.Errorf("read schedule %s: %w", path, err)
	}
	var s Schedule
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schedule %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", path, err)
	}
	return &s, nil
}

func (s *Schedule) validate() error {
	seen := map[string]bool{}
	for i, t := range s.Tasks {
		if t.Name == "" {
			return fmt.Errorf("task %d: missing name", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate task name %q", t.Name)
		}
		seen[t.Name] = true
		if t.Intent == "" {
			return fmt.Errorf("task %q: missing intent", t.Name)
		}
		if t.Every < time.Second {
			return fmt.Errorf("task %q: interval %s too short (minimum 1s)", t.Name, t.Every)
		}
	}
	return nil
}

// Submitter is where scheduled intents go; satisfied by *agent.Loop.
type Submitter interface {
	Submit(ctx context.Context, in agent.Intent) error
}

// Runner ticks each enabled task on its interval.
type Runner struct {
	schedule *Schedule
	sink     Submitter
}

func NewRunner(schedule *Schedule, sink Submitter) *Runner {
	return &Runner{schedule: schedule, sink: sink}
}

// Run blocks until the context is canceled. One goroutine per task;
// a full queue drops the tick rather than stacking intents.
func (r *Runner) Run(ctx context.Context) {
	for _, t := range r.schedule.Tasks {
		if !t.enabled() {
			continue
		}
		go r.tick(ctx, t)
	}
	<-ctx.Done()
}

func (r *Runner) tick(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			submitCtx, cancel := context.WithTimeout(ctx, time.Second)
			err := r.sink.Submit(submitCtx, agent.Intent{Text: t.Intent, Source: "scheduler"})
			cancel()
			if err != nil {
				// A stopped or saturated loop skips this tick. The
				// task fires again on the next interval.
				fmt.Fprintf(os.Stderr, "scheduler: task %s skipped: %v\n", t.Name, err)
			}
		}
	}
}
