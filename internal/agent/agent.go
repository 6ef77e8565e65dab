// Package agent runs the decision cycle: observe the device, route the
// context to a reasoner, evaluate every planned action against policy,
// dispatch what survives, and record the interaction. One loop per
// device session; intents from the CLI and the scheduler funnel through
// a single queue so no cycle ever overlaps another.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/neurorouter"

	"screenpilot/internal/audit"
	"screenpilot/internal/device"
	"screenpilot/internal/memory"
	"screenpilot/internal/model"
	"screenpilot/internal/policy"
	"screenpilot/internal/power"
	"screenpilot/internal/reasoner"
	"screenpilot/internal/router"
)

// State names the loop's position in the cycle.
type State string

const (
	StateIdle      State = "IDLE"
	StateObserving State = "OBSERVING"
	StateRouting   State = "ROUTING"
	StatePlanning  State = "PLANNING"
	StateExecuting State = "EXECUTING"
	StateRecording State = "RECORDING"
	StateStopped   State = "STOPPED"
)

// DefaultStopLiteral is the reserved intent that halts the agent. The
// match is case-insensitive and permanent for the session.
const DefaultStopLiteral = "STOP_AGENT"

// Config tunes per-cycle behavior.
type Config struct {
	// ObserveRetries bounds observation attempts per cycle.
	ObserveRetries int
	// StopLiteral overrides DefaultStopLiteral when non-empty.
	StopLiteral string
	// ContextRecords is how much history the reasoner prompt carries.
	ContextRecords int
	// CallTimeout bounds each device and reasoner call.
	CallTimeout time.Duration
	// QueueSize bounds pending intents from producers.
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.ObserveRetries <= 0 {
		c.ObserveRetries = 3
	}
	if c.StopLiteral == "" {
		c.StopLiteral = DefaultStopLiteral
	}
	if c.ContextRecords <= 0 {
		c.ContextRecords = 5
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 2 * time.Minute
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	return c
}

// Intent is one queued unit of work.
type Intent struct {
	Text   string
	Source string // "cli", "scheduler", "mcp"
}

// Loop is the single consumer of the intent queue. All fields are set
// at construction and never reassigned; mutable state lives behind mu.
type Loop struct {
	ctrl    device.Controller
	rtr     *router.Router
	local   reasoner.Reasoner
	cloud   reasoner.Reasoner
	engine  *policy.Engine
	monitor *power.Monitor
	mem     *memory.Store
	trail   *audit.Log
	cfg     Config

	intents chan Intent

	mu    sync.Mutex
	state State
}

// New wires a loop. local and cloud may be nil; the router already
// knows which backends exist and never selects a missing one.
func New(ctrl device.Controller, rtr *router.Router, local, cloud reasoner.Reasoner,
	engine *policy.Engine, monitor *power.Monitor, mem *memory.Store,
	trail *audit.Log, cfg Config) *Loop {
	cfg = cfg.withDefaults()
	return &Loop{
		ctrl:    ctrl,
		rtr:     rtr,
		local:   local,
		cloud:   cloud,
		engine:  engine,
		monitor: monitor,
		mem:     mem,
		trail:   trail,
		cfg:     cfg,
		intents: make(chan Intent, cfg.QueueSize),
		state:   StateIdle,
	}
}

// State returns the loop's current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Submit enqueues an intent for the loop. The stop literal is honored
// at intake: it latches the emergency stop instead of being queued.
func (l *Loop) Submit(ctx context.Context, in Intent) error {
	if l.isStopLiteral(in.Text) {
		l.EmergencyStop("")
		l.setState("", StateStopped)
		return model.ErrEmergencyStop
	}
	if l.State() == StateStopped {
		return model.ErrEmergencyStop
	}
	select {
	case l.intents <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EmergencyStop latches the stop flag, force-denying every future
// policy evaluation and halting the loop after the current action.
// Already-dispatched actions are not rolled back; a running cycle
// still records its partial outcomes before the loop stops.
func (l *Loop) EmergencyStop(cycleID string) {
	l.engine.Stop()
	if l.trail != nil {
		_ = l.trail.Record(audit.Entry{
			CycleID: cycleID,
			Event:   audit.EventStop,
		})
	}
}

// Run consumes the intent queue until the context is canceled or the
// stop latch is set. Each intent runs to completion before the next is
// accepted.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if l.engine.Stopped() {
			l.setState("", StateStopped)
			return model.ErrEmergencyStop
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in := <-l.intents:
			if _, err := l.Cycle(ctx, in.Text); err != nil && errors.Is(err, model.ErrEmergencyStop) {
				return err
			}
		}
	}
}

// Cycle runs one full decision cycle for the given intent and returns
// the interaction record. Policy denials inside the plan are not
// errors; infrastructure failures are, and always leave the loop back
// in IDLE with limiter and memory state intact.
func (l *Loop) Cycle(ctx context.Context, intent string) (model.InteractionRecord, error) {
	if l.isStopLiteral(intent) {
		l.EmergencyStop("")
		l.setState("", StateStopped)
		return model.InteractionRecord{}, model.ErrEmergencyStop
	}
	if l.engine.Stopped() {
		return model.InteractionRecord{}, model.ErrEmergencyStop
	}

	cycleID := uuid.NewString()

	obs, err := l.observe(ctx, cycleID)
	if err != nil {
		l.setState(cycleID, StateIdle)
		return model.InteractionRecord{}, err
	}

	// One power sample per cycle. The sampled mode drives routing and
	// every policy evaluation in this cycle.
	mode := l.monitor.Mode(ctx)

	l.setState(cycleID, StateRouting)
	rt, err := l.rtr.Route(cycleID, intent, obs, mode)
	if err != nil {
		l.setState(cycleID, StateIdle)
		return model.InteractionRecord{}, fmt.Errorf("cycle %s: %w", cycleID, err)
	}

	l.setState(cycleID, StatePlanning)
	plan, err := l.plan(ctx, rt, obs)
	if err != nil {
		l.setState(cycleID, StateIdle)
		return model.InteractionRecord{}, fmt.Errorf("cycle %s: %w", cycleID, err)
	}

	l.setState(cycleID, StateExecuting)
	outcomes, aborted, execErr := l.execute(ctx, cycleID, plan, mode)

	l.setState(cycleID, StateRecording)
	rec := model.InteractionRecord{
		ID:        cycleID,
		Timestamp: time.Now().UTC(),
		Intent:    intent,
		App:       obs.Summary(),
		Tier:      rt.Tier,
		Mode:      mode,
		Backend:   string(rt.Backend),
		Reasoning: plan.Reasoning,
		Outcomes:  outcomes,
		Aborted:   aborted,
	}
	if execErr != nil {
		rec.Error = execErr.Error()
	}
	if err := l.mem.Append(rec); err != nil {
		// History persistence must not fail the cycle; the in-memory
		// ring already has the record.
		rec.Error = strings.TrimSpace(rec.Error + " (history: " + err.Error() + ")")
	}

	if aborted && l.engine.Stopped() {
		l.setState(cycleID, StateStopped)
		return rec, model.ErrEmergencyStop
	}
	l.setState(cycleID, StateIdle)
	return rec, execErr
}

// observe captures the device state with bounded retries.
func (l *Loop) observe(ctx context.Context, cycleID string) (model.Observation, error) {
	l.setState(cycleID, StateObserving)
	var lastErr error
	for attempt := 0; attempt < l.cfg.ObserveRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
		obs, err := l.ctrl.Observe(callCtx)
		cancel()
		if err == nil {
			return obs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return model.Observation{}, fmt.Errorf("%w after %d attempts: %v",
		model.ErrObservationFailed, l.cfg.ObserveRetries, lastErr)
}

// plan invokes the routed reasoner. A rate-limited backend defers the
// cycle; the caller may resubmit the intent later.
func (l *Loop) plan(ctx context.Context, rt router.Route, obs model.Observation) (model.Plan, error) {
	var r reasoner.Reasoner
	switch rt.Backend {
	case router.BackendLocal:
		r = l.local
	case router.BackendCloud:
		r = l.cloud
	}
	if r == nil {
		return model.Plan{}, fmt.Errorf("%s backend selected but not wired: %w",
			rt.Backend, model.ErrReasonerUnavailable)
	}

	callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	defer cancel()

	plan, err := r.Plan(callCtx, rt.Payload, l.mem.Context(obs.App, l.cfg.ContextRecords))
	if err != nil {
		if errors.Is(err, neurorouter.ErrRateLimited) {
			return model.Plan{}, fmt.Errorf("reasoner deferred: %w", err)
		}
		return model.Plan{}, fmt.Errorf("reasoner: %w", err)
	}
	return plan, nil
}

// execute walks the plan strictly in order. A blocking decision or a
// dispatch failure truncates the rest of the plan; completed outcomes
// are always preserved. The stop latch is rechecked before every
// action so a stop arriving mid-plan halts before the next dispatch.
func (l *Loop) execute(ctx context.Context, cycleID string, plan model.Plan, mode model.OperatingMode) ([]model.ActionOutcome, bool, error) {
	outcomes := make([]model.ActionOutcome, 0, len(plan.Actions))

	for _, action := range plan.Actions {
		if l.engine.Stopped() {
			return outcomes, true, nil
		}

		// Minimum spacing paces in-plan actions instead of denying
		// them; a rate_limited denial below means window exhaustion.
		if err := l.pace(ctx); err != nil {
			return outcomes, false, err
		}

		d := l.engine.Evaluate(cycleID, action, mode)
		out := model.ActionOutcome{Action: action, Decision: d}

		if d.Decision != model.Approved {
			outcomes = append(outcomes, out)
			if d.Reason == model.ReasonEmergencyStop {
				return outcomes, true, nil
			}
			// Denied or unconfirmed: the rest of the plan never runs.
			return outcomes, false, nil
		}

		callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
		res, err := l.ctrl.Dispatch(callCtx, action)
		cancel()

		out.Dispatched = true
		if err != nil {
			out.Detail = err.Error()
			outcomes = append(outcomes, out)
			return outcomes, false, &model.DispatchError{Action: action, Err: err}
		}
		out.Success = res.Success
		out.Detail = res.Detail
		outcomes = append(outcomes, out)

		if !res.Success {
			// Fail-fast: no automatic retry or replanning inside a cycle.
			return outcomes, false, &model.DispatchError{
				Action: action,
				Err:    fmt.Errorf("action failed: %s", res.Detail),
			}
		}
	}
	return outcomes, false, nil
}

// pace sleeps until the engine's spacing check would pass. A canceled
// context cuts the wait short and truncates the plan.
func (l *Loop) pace(ctx context.Context) error {
	delay := l.engine.PaceDelay()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Loop) isStopLiteral(text string) bool {
	return strings.Contains(strings.ToUpper(text), strings.ToUpper(l.cfg.StopLiteral))
}

func (l *Loop) setState(cycleID string, to State) {
	l.mu.Lock()
	from := l.state
	l.state = to
	l.mu.Unlock()

	if l.trail == nil || from == to {
		return
	}
	_ = l.trail.Record(audit.Entry{
		CycleID: cycleID,
		Event:   audit.EventTransition,
		From:    string(from),
		To:      string(to),
	})
}
