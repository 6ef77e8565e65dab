// Package policy evaluates proposed actions against the session's app
// access rules, rate limits, and operating mode. No rule match means
// deny: the engine fails closed.
package policy

import (
	"sync"
	"sync/atomic"
	"time"

	"screenpilot/internal/approval"
	"screenpilot/internal/audit"
	"screenpilot/internal/classify"
	"screenpilot/internal/model"
	"screenpilot/internal/ratelimit"
)

// Engine composes the rule set, rate limiter, and confirmation store
// into a single Evaluate entry point. The mutex spans rate limit check
// and counter record so "approved" and "counted" can never diverge.
type Engine struct {
	cfg        *Config
	limiter    *ratelimit.Limiter
	approvals  *approval.Store
	trail      *audit.Log
	policyHash string

	mu      sync.Mutex
	stopped atomic.Bool
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTrail records every decision to the audit trail.
func WithTrail(trail *audit.Log) Option {
	return func(e *Engine) { e.trail = trail }
}

// WithPolicyHash stamps decisions with the loaded policy's hash.
func WithPolicyHash(hash string) Option {
	return func(e *Engine) { e.policyHash = hash }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over an immutable rule set.
func NewEngine(cfg *Config, limiter *ratelimit.Limiter, approvals *approval.Store, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	e := &Engine{
		cfg:       cfg,
		limiter:   limiter,
		approvals: approvals,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stop latches the emergency-stop flag. Every subsequent Evaluate in
// the session force-denies; there is no unlatch.
func (e *Engine) Stop() { e.stopped.Store(true) }

// Stopped reports whether the emergency-stop latch is set.
func (e *Engine) Stopped() bool { return e.stopped.Load() }

// Evaluate decides one action under the given operating mode. cycleID
// ties the audit entry to its decision cycle. Decisions are computed
// fresh per action: rate-limiter state mutates on every approval, so a
// cached decision would be wrong.
func (e *Engine) Evaluate(cycleID string, action model.Action, mode model.OperatingMode) model.PolicyDecision {
	d := e.evaluate(action, mode)
	e.record(cycleID, action, mode, d)
	return d
}

func (e *Engine) evaluate(action model.Action, mode model.OperatingMode) model.PolicyDecision {
	if e.stopped.Load() {
		return model.PolicyDecision{Decision: model.Denied, Reason: model.ReasonEmergencyStop}
	}

	rule := match(e.cfg.Rules, action.App)
	if rule == nil || rule.Effect == Deny {
		d := model.PolicyDecision{Decision: model.Denied, Reason: model.ReasonNotWhitelisted}
		if rule != nil {
			d.RuleID = rule.ID()
		}
		return d
	}

	if !rule.verbPermitted(action.Verb) {
		return model.PolicyDecision{Decision: model.Denied, Reason: model.ReasonVerbRestricted, RuleID: rule.ID()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if res := e.limiter.CheckN(action.App, now, rule.MaxPerHour); res.Exceeded {
		return model.PolicyDecision{Decision: model.Denied, Reason: model.ReasonRateLimited, RuleID: rule.ID()}
	}

	if mode == model.ModeStealth && !criticalSafe(action) {
		return model.PolicyDecision{Decision: model.Denied, Reason: model.ReasonStealthRestricted, RuleID: rule.ID()}
	}

	if rule.confirmsVerb(action.Verb) {
		key := approval.Key(action.App, action.Verb)
		granted, d := e.confirmation(key, action, rule)
		if !granted {
			return d
		}
	}

	// Counter update is part of decision issuance: no action is approved
	// without being counted first.
	e.limiter.Record(action.App, now)
	return model.PolicyDecision{Decision: model.Approved, RuleID: rule.ID()}
}

// PaceDelay reports how long a caller must wait before the next action
// can clear the minimum-spacing check. Zero means an action may proceed
// immediately. The agent loop waits this out between in-plan actions so
// spacing paces execution instead of denying it; rate_limited denials
// are reserved for window exhaustion.
func (e *Engine) PaceDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.limiter.NextAllowed()
	if next.IsZero() {
		return 0
	}
	if d := next.Sub(e.now()); d > 0 {
		return d
	}
	return 0
}

// Check is a dry-run Evaluate: the same decision path, but no counter
// update, no approval request on file, and no audit entry. Used by the
// check tooling to answer "would this be allowed" without spending a
// rate-limit slot.
func (e *Engine) Check(action model.Action, mode model.OperatingMode) model.PolicyDecision {
	if e.stopped.Load() {
		return model.PolicyDecision{Decision: model.Denied, Reason: model.ReasonEmergencyStop}
	}

	rule := match(e.cfg.Rules, action.App)
	if rule == nil || rule.Effect == Deny {
		d := model.PolicyDecision{Decision: model.Denied, Reason: model.ReasonNotWhitelisted}
		if rule != nil {
			d.RuleID = rule.ID()
		}
		return d
	}
	if !rule.verbPermitted(action.Verb) {
		return model.PolicyDecision{Decision: model.Denied, Reason: model.ReasonVerbRestricted, RuleID: rule.ID()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if res := e.limiter.CheckN(action.App, e.now(), rule.MaxPerHour); res.Exceeded {
		return model.PolicyDecision{Decision: model.Denied, Reason: model.ReasonRateLimited, RuleID: rule.ID()}
	}
	if mode == model.ModeStealth && !criticalSafe(action) {
		return model.PolicyDecision{Decision: model.Denied, Reason: model.ReasonStealthRestricted, RuleID: rule.ID()}
	}
	if rule.confirmsVerb(action.Verb) {
		key := approval.Key(action.App, action.Verb)
		if st, err := e.approvals.Check(key); err != nil || st != approval.StatusApproved {
			return model.PolicyDecision{Decision: model.NeedsConfirmation, RuleID: rule.ID(), ApprovalKey: key}
		}
	}
	return model.PolicyDecision{Decision: model.Approved, RuleID: rule.ID()}
}

// confirmation resolves the approval state for a confirmed verb.
// Returns granted=true when a grant exists (consuming one-time grants),
// otherwise the blocking decision.
func (e *Engine) confirmation(key string, action model.Action, rule *Rule) (bool, model.PolicyDecision) {
	st, err := e.approvals.Check(key)
	if err != nil {
		// No request on file yet: create one and block.
		_ = e.approvals.Request(key, action.App, action.Verb, "rule "+rule.ID()+" requires confirmation")
		return false, model.PolicyDecision{Decision: model.NeedsConfirmation, RuleID: rule.ID(), ApprovalKey: key}
	}

	switch st {
	case approval.StatusApproved:
		_ = e.approvals.Consume(key)
		return true, model.PolicyDecision{}
	case approval.StatusDenied:
		return false, model.PolicyDecision{Decision: model.Denied, Reason: "confirmation_denied", RuleID: rule.ID(), ApprovalKey: key}
	default:
		// Pending, expired, or consumed: (re)issue the request and block.
		if st != approval.StatusPending {
			_ = e.approvals.Remove(key)
			_ = e.approvals.Request(key, action.App, action.Verb, "rule "+rule.ID()+" requires confirmation")
		}
		return false, model.PolicyDecision{Decision: model.NeedsConfirmation, RuleID: rule.ID(), ApprovalKey: key}
	}
}

// criticalSafe reports whether an action may run under stealth mode:
// read-only verb against a non-sensitive app.
func criticalSafe(action model.Action) bool {
	return model.ReadOnlyVerb(action.Verb) && !classify.SensitiveApp(action.App)
}

func (e *Engine) record(cycleID string, action model.Action, mode model.OperatingMode, d model.PolicyDecision) {
	if e.trail == nil {
		return
	}
	_ = e.trail.Record(audit.Entry{
		CycleID:    cycleID,
		Event:      audit.EventDecision,
		Verb:       action.Verb,
		App:        action.App,
		Decision:   string(d.Decision),
		Reason:     d.Reason,
		RuleID:     d.RuleID,
		Mode:       string(mode),
		PolicyHash: e.policyHash,
	})
}
