// Package power derives the agent's operating mode from battery telemetry.
package power

import (
	"context"
	"sync"

	"screenpilot/internal/model"
)

// DefaultThreshold is the battery percentage at or below which the agent
// enters stealth mode when not charging.
const DefaultThreshold = 15

// Telemetry reads battery state from the device. The device controller
// satisfies this.
type Telemetry interface {
	Battery(ctx context.Context) (level int, charging bool, err error)
}

// Sample is one consistent battery reading. A decision cycle takes one
// sample at its start and uses it for every policy decision in that
// cycle; mid-plan re-sampling would let actions in the same plan see
// different modes.
type Sample struct {
	Level    int
	Charging bool
}

// Mode derives the operating mode from the sample against a threshold.
func (s Sample) Mode(threshold int) model.OperatingMode {
	if s.Level <= threshold && !s.Charging {
		return model.ModeStealth
	}
	return model.ModeNormal
}

// Monitor samples telemetry and caches the latest reading.
type Monitor struct {
	telemetry Telemetry
	threshold int

	mu   sync.Mutex
	last Sample
	seen bool
}

// New creates a monitor. A threshold of 0 or below uses DefaultThreshold.
func New(telemetry Telemetry, threshold int) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Monitor{telemetry: telemetry, threshold: threshold}
}

// Sample reads battery state once. On telemetry failure the previous
// sample is reused if one exists; with no history the monitor assumes
// stealth (fail-closed: an unreadable battery is treated as low).
func (m *Monitor) Sample(ctx context.Context) Sample {
	level, charging, err := m.telemetry.Battery(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		if m.seen {
			return m.last
		}
		return Sample{Level: 0, Charging: false}
	}

	m.last = Sample{Level: level, Charging: charging}
	m.seen = true
	return m.last
}

// Mode samples and returns the derived operating mode.
func (m *Monitor) Mode(ctx context.Context) model.OperatingMode {
	return m.Sample(ctx).Mode(m.threshold)
}

// Threshold returns the configured stealth threshold.
func (m *Monitor) Threshold() int { return m.threshold }
