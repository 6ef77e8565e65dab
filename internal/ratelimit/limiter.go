// Package ratelimit enforces per-app and global action throughput.
// Counters are monotonically consistent: an action counted against a
// limit is never double-counted or lost, even when the action later
// fails at the device controller. Recording happens at approval time
// and is never rolled back.
package ratelimit

import (
	"fmt"
	"time"
)

// Config holds the session's rate limit parameters. Zero values disable
// the corresponding check.
type Config struct {
	// MinSpacing is the minimum interval between any two recorded
	// actions, enforced globally regardless of per-app limits.
	MinSpacing time.Duration `yaml:"min_spacing"`

	// PerApp caps recorded actions per app within Window.
	PerApp int `yaml:"per_app"`

	// Global caps recorded actions across all apps within Window.
	Global int `yaml:"global"`

	// Window is the rolling window both caps apply to.
	Window time.Duration `yaml:"window"`
}

// DefaultConfig mirrors the executor's historical limits: 2 seconds
// between actions, 100 per app per hour.
func DefaultConfig() Config {
	return Config{
		MinSpacing: 2 * time.Second,
		PerApp:     100,
		Global:     300,
		Window:     time.Hour,
	}
}

// CheckResult reports why an action would exceed limits.
type CheckResult struct {
	Exceeded bool
	Reason   string
}

// Limiter tracks action timestamps per app and globally. It is not
// goroutine-safe on its own: the policy engine serializes check+record
// under one lock so that "approved" and "counted" can never race.
type Limiter struct {
	cfg    Config
	perApp map[string][]time.Time
	global []time.Time
	last   time.Time
}

// New creates a limiter with the given config.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:    cfg,
		perApp: make(map[string][]time.Time),
	}
}

// Check reports whether recording an action for app at now would exceed
// any limit. It does not mutate counters.
func (l *Limiter) Check(app string, now time.Time) CheckResult {
	return l.CheckN(app, now, l.cfg.PerApp)
}

// CheckN is Check with a per-app cap override, used when a policy rule
// carries its own hourly cap. A zero or negative cap falls back to the
// session default.
func (l *Limiter) CheckN(app string, now time.Time, perApp int) CheckResult {
	if perApp <= 0 {
		perApp = l.cfg.PerApp
	}

	if l.cfg.MinSpacing > 0 && !l.last.IsZero() && now.Sub(l.last) < l.cfg.MinSpacing {
		return CheckResult{
			Exceeded: true,
			Reason:   fmt.Sprintf("minimum spacing %s not elapsed", l.cfg.MinSpacing),
		}
	}

	if l.cfg.Window > 0 {
		if perApp > 0 {
			if n := countSince(l.perApp[app], now.Add(-l.cfg.Window)); n >= perApp {
				return CheckResult{
					Exceeded: true,
					Reason:   fmt.Sprintf("%s: %d/%d actions in %s window", app, n, perApp, l.cfg.Window),
				}
			}
		}
		if l.cfg.Global > 0 {
			if n := countSince(l.global, now.Add(-l.cfg.Window)); n >= l.cfg.Global {
				return CheckResult{
					Exceeded: true,
					Reason:   fmt.Sprintf("global: %d/%d actions in %s window", n, l.cfg.Global, l.cfg.Window),
				}
			}
		}
	}

	return CheckResult{}
}

// NextAllowed returns the earliest instant at which the spacing check
// permits another action. The zero time means no wait is required.
// Window exhaustion is not reflected here: spacing is a pacing concern
// the caller can wait out, a full window is a denial.
func (l *Limiter) NextAllowed() time.Time {
	if l.cfg.MinSpacing <= 0 || l.last.IsZero() {
		return time.Time{}
	}
	return l.last.Add(l.cfg.MinSpacing)
}

// Record counts an approved action against app's window and the global
// window. Callers must have passed Check under the same lock.
func (l *Limiter) Record(app string, now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	l.perApp[app] = append(prune(l.perApp[app], cutoff), now)
	l.global = append(prune(l.global, cutoff), now)
	l.last = now
}

func countSince(stamps []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range stamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
