// Package router decides which reasoning backend sees a given cycle's
// context. Sensitive material stays on the local model; cloud backends
// only receive public text or redacted private text that survived
// verification.
package router

import (
	"errors"
	"fmt"

	"screenpilot/internal/audit"
	"screenpilot/internal/classify"
	"screenpilot/internal/model"
	"screenpilot/internal/redact"
)

// Backend identifies a reasoning destination.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendCloud Backend = "cloud"
)

// Route is the outcome of a routing decision: where the payload may go
// and what the payload is. When Redacted is true the payload has been
// masked and re-verified before leaving the device.
type Route struct {
	Backend  Backend
	Tier     model.SensitivityTier
	Payload  string
	Redacted bool
}

// Router holds backend availability and the audit trail. It is
// stateless between calls; one Router serves the whole agent lifetime.
type Router struct {
	hasLocal bool
	hasCloud bool
	trail    *audit.Log
}

// Option configures a Router.
type Option func(*Router)

// WithTrail records every routing decision to the audit log.
func WithTrail(trail *audit.Log) Option {
	return func(r *Router) { r.trail = trail }
}

// New builds a Router for the configured backends.
func New(hasLocal, hasCloud bool, opts ...Option) *Router {
	r := &Router{hasLocal: hasLocal, hasCloud: hasCloud}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Route classifies the cycle's intent and observation and picks a
// backend. Classification always takes the highest tier seen across
// intent and screen text, with a PRIVATE floor when the foreground app
// is itself sensitive. Anything SENSITIVE or above, and every cycle in
// stealth mode, is pinned to the local backend regardless of what else
// is configured.
func (r *Router) Route(cycleID, intent string, obs model.Observation, mode model.OperatingMode) (Route, error) {
	tier := classifyTier(intent, obs)

	if !r.hasLocal && !r.hasCloud {
		return Route{}, fmt.Errorf("routing %s: %w", tier, model.ErrReasonerUnavailable)
	}

	rt, err := r.pick(tier, intent, obs, mode)
	if err != nil {
		return Route{}, err
	}
	r.record(cycleID, rt, mode)
	return rt, nil
}

func classifyTier(intent string, obs model.Observation) model.SensitivityTier {
	tier := model.MaxTier(classify.Classify(intent), classify.Classify(obs.ScreenText))
	if classify.SensitiveApp(obs.App) && tier < model.TierPrivate {
		tier = model.TierPrivate
	}
	return tier
}

func (r *Router) pick(tier model.SensitivityTier, intent string, obs model.Observation, mode model.OperatingMode) (Route, error) {
	mustLocal := tier >= model.TierSensitive || mode == model.ModeStealth

	if mustLocal {
		if !r.hasLocal {
			return Route{}, fmt.Errorf("tier %s requires local backend: %w", tier, model.ErrReasonerUnavailable)
		}
		return Route{Backend: BackendLocal, Tier: tier, Payload: payload(intent, obs.ScreenText)}, nil
	}

	if !r.hasCloud {
		return Route{Backend: BackendLocal, Tier: tier, Payload: payload(intent, obs.ScreenText)}, nil
	}

	if tier == model.TierPublic {
		return Route{Backend: BackendCloud, Tier: tier, Payload: payload(intent, obs.ScreenText)}, nil
	}

	// PRIVATE with a cloud backend: mask before it leaves the device.
	masked, err := maskedPayload(intent, obs.ScreenText)
	if err != nil {
		if !errors.Is(err, model.ErrRedactionUncertain) {
			return Route{}, err
		}
		// Masking could not prove the payload clean. Fall back to
		// local instead of risking a leak.
		if !r.hasLocal {
			return Route{}, fmt.Errorf("redaction uncertain with no local backend: %w", model.ErrReasonerUnavailable)
		}
		return Route{Backend: BackendLocal, Tier: tier, Payload: payload(intent, obs.ScreenText)}, nil
	}
	return Route{Backend: BackendCloud, Tier: tier, Payload: masked, Redacted: true}, nil
}

// payload composes the reasoner input. Kept in one place so masked and
// unmasked payloads have identical shape.
func payload(intent, screen string) string {
	return fmt.Sprintf("Task: %s\n\nCurrent screen:\n%s", intent, screen)
}

func maskedPayload(intent, screen string) (string, error) {
	tm := redact.NewTokenMap()
	mi := redact.Mask(intent, tm)
	ms := redact.Mask(screen, tm)
	out := payload(mi, ms)
	if err := redact.Verify(out); err != nil {
		return "", err
	}
	return out, nil
}

func (r *Router) record(cycleID string, rt Route, mode model.OperatingMode) {
	if r.trail == nil {
		return
	}
	// Trail write failures do not block routing; Verify will surface a
	// broken chain offline.
	_ = r.trail.Record(audit.Entry{
		CycleID:  cycleID,
		Event:    audit.EventRouting,
		Tier:     rt.Tier.String(),
		Backend:  string(rt.Backend),
		Redacted: rt.Redacted,
		Mode:     string(mode),
	})
}
