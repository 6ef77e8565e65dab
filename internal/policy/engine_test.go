package policy

import (
	"testing"
	"time"

	"screenpilot/internal/approval"
	"screenpilot/internal/model"
	"screenpilot/internal/ratelimit"
)

func testEngine(t *testing.T, rules []Rule, rlCfg ratelimit.Config) *Engine {
	t.Helper()
	store, err := approval.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("approval store: %v", err)
	}
	// A fixed-step clock keeps spacing checks out of the way unless a
	// test exercises them deliberately.
	base := time.Now()
	step := 0
	clock := func() time.Time {
		step++
		return base.Add(time.Duration(step) * 10 * time.Second)
	}
	return NewEngine(&Config{Rules: rules}, ratelimit.New(rlCfg), store, WithClock(clock))
}

func defaultRL() ratelimit.Config {
	return ratelimit.Config{MinSpacing: 2 * time.Second, PerApp: 100, Global: 300, Window: time.Hour}
}

func TestDenyRuleWinsOverAllowOnOverlap(t *testing.T) {
	e := testEngine(t, []Rule{
		{Pattern: "com.browser.*", Effect: Allow},
		{Pattern: "com.bank.*", Effect: Deny},
	}, defaultRL())

	d := e.Evaluate("c-1", model.Action{Verb: model.VerbTap, App: "com.bank.app"}, model.ModeNormal)
	if d.Decision != model.Denied || d.Reason != model.ReasonNotWhitelisted {
		t.Errorf("expected denied/not_whitelisted, got %+v", d)
	}
}

func TestUnmatchedAppIsDenied(t *testing.T) {
	e := testEngine(t, []Rule{{Pattern: "com.browser.*", Effect: Allow}}, defaultRL())

	d := e.Evaluate("c-1", model.Action{Verb: model.VerbTap, App: "org.unknown"}, model.ModeNormal)
	if d.Decision != model.Denied || d.Reason != model.ReasonNotWhitelisted {
		t.Errorf("expected fail-closed deny, got %+v", d)
	}
}

func TestWhitelistedActionApproved(t *testing.T) {
	e := testEngine(t, []Rule{{Pattern: "com.browser.*", Effect: Allow}}, defaultRL())

	d := e.Evaluate("c-1", model.Action{Verb: model.VerbTap, App: "com.browser.chrome"}, model.ModeNormal)
	if d.Decision != model.Approved {
		t.Errorf("expected approved, got %+v", d)
	}
}

func TestDenyRegardlessOfModeAndLimits(t *testing.T) {
	e := testEngine(t, []Rule{{Pattern: "com.bank.*", Effect: Deny}}, defaultRL())

	for _, mode := range []model.OperatingMode{model.ModeNormal, model.ModeStealth} {
		d := e.Evaluate("c-1", model.Action{Verb: model.VerbReadScreen, App: "com.bank.app"}, mode)
		if d.Decision != model.Denied || d.Reason != model.ReasonNotWhitelisted {
			t.Errorf("mode %s: expected denied/not_whitelisted, got %+v", mode, d)
		}
	}
}

func TestRateLimitedAfterNActions(t *testing.T) {
	cfg := defaultRL()
	cfg.PerApp = 3
	e := testEngine(t, []Rule{{Pattern: "com.browser.*", Effect: Allow}}, cfg)

	action := model.Action{Verb: model.VerbTap, App: "com.browser.chrome"}
	for i := 0; i < 3; i++ {
		if d := e.Evaluate("c-1", action, model.ModeNormal); d.Decision != model.Approved {
			t.Fatalf("action %d: expected approved, got %+v", i+1, d)
		}
	}

	d := e.Evaluate("c-1", action, model.ModeNormal)
	if d.Decision != model.Denied || d.Reason != model.ReasonRateLimited {
		t.Errorf("expected denied/rate_limited on 4th action, got %+v", d)
	}
}

func TestRuleLevelHourlyCap(t *testing.T) {
	e := testEngine(t, []Rule{{Pattern: "com.mail.*", Effect: Allow, MaxPerHour: 1}}, defaultRL())

	action := model.Action{Verb: model.VerbTap, App: "com.mail.app"}
	if d := e.Evaluate("c-1", action, model.ModeNormal); d.Decision != model.Approved {
		t.Fatalf("first action should pass, got %+v", d)
	}
	if d := e.Evaluate("c-1", action, model.ModeNormal); d.Reason != model.ReasonRateLimited {
		t.Errorf("rule cap of 1 should deny 2nd action, got %+v", d)
	}
}

func TestStealthRestrictsMutatingActions(t *testing.T) {
	e := testEngine(t, []Rule{{Pattern: "com.social.*", Effect: Allow}}, defaultRL())

	// Otherwise-approvable launch is refused under stealth.
	d := e.Evaluate("c-1", model.Action{Verb: model.VerbLaunch, App: "com.social.app"}, model.ModeStealth)
	if d.Decision != model.Denied || d.Reason != model.ReasonStealthRestricted {
		t.Errorf("expected denied/stealth_restricted, got %+v", d)
	}

	// Same action in normal mode passes.
	d = e.Evaluate("c-1", model.Action{Verb: model.VerbLaunch, App: "com.social.app"}, model.ModeNormal)
	if d.Decision != model.Approved {
		t.Errorf("expected approved in normal mode, got %+v", d)
	}
}

func TestStealthAllowsReadOnlyOnNonSensitiveApp(t *testing.T) {
	e := testEngine(t, []Rule{{Pattern: "com.*", Effect: Allow}}, defaultRL())

	d := e.Evaluate("c-1", model.Action{Verb: model.VerbReadScreen, App: "com.news.reader"}, model.ModeStealth)
	if d.Decision != model.Approved {
		t.Errorf("read-only action on plain app should pass under stealth, got %+v", d)
	}

	// Read-only against a sensitive app is still restricted.
	d = e.Evaluate("c-1", model.Action{Verb: model.VerbReadScreen, App: "com.bank.mobile"}, model.ModeStealth)
	if d.Reason != model.ReasonStealthRestricted {
		t.Errorf("read-only on sensitive app should be stealth_restricted, got %+v", d)
	}
}

func TestConfirmationFlow(t *testing.T) {
	store, err := approval.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("approval store: %v", err)
	}
	base := time.Now()
	step := 0
	e := NewEngine(
		&Config{Rules: []Rule{{Pattern: "com.mail.*", Effect: Allow, ConfirmVerbs: []string{model.VerbType}}}},
		ratelimit.New(defaultRL()),
		store,
		WithClock(func() time.Time { step++; return base.Add(time.Duration(step) * 10 * time.Second) }),
	)

	action := model.Action{Verb: model.VerbType, App: "com.mail.app"}

	d := e.Evaluate("c-1", action, model.ModeNormal)
	if d.Decision != model.NeedsConfirmation || d.ApprovalKey == "" {
		t.Fatalf("expected needs_confirmation with key, got %+v", d)
	}

	if err := store.Approve(d.ApprovalKey, 0); err != nil {
		t.Fatalf("approve: %v", err)
	}

	d = e.Evaluate("c-1", action, model.ModeNormal)
	if d.Decision != model.Approved {
		t.Fatalf("expected approved after grant, got %+v", d)
	}

	// One-time grant was consumed: next attempt blocks again.
	d = e.Evaluate("c-1", action, model.ModeNormal)
	if d.Decision != model.NeedsConfirmation {
		t.Errorf("expected needs_confirmation after grant consumed, got %+v", d)
	}
}

func TestConfirmationDenied(t *testing.T) {
	store, err := approval.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("approval store: %v", err)
	}
	base := time.Now()
	step := 0
	e := NewEngine(
		&Config{Rules: []Rule{{Pattern: "com.mail.*", Effect: Allow, RequireConfirmation: true}}},
		ratelimit.New(defaultRL()),
		store,
		WithClock(func() time.Time { step++; return base.Add(time.Duration(step) * 10 * time.Second) }),
	)

	action := model.Action{Verb: model.VerbTap, App: "com.mail.app"}
	d := e.Evaluate("c-1", action, model.ModeNormal)
	if d.Decision != model.NeedsConfirmation {
		t.Fatalf("expected needs_confirmation, got %+v", d)
	}

	store.Deny(d.ApprovalKey)

	d = e.Evaluate("c-1", action, model.ModeNormal)
	if d.Decision != model.Denied || d.Reason != "confirmation_denied" {
		t.Errorf("expected denied/confirmation_denied, got %+v", d)
	}
}

func TestEmergencyStopForceDeniesEverything(t *testing.T) {
	e := testEngine(t, []Rule{{Pattern: "com.*", Effect: Allow}}, defaultRL())

	e.Stop()

	d := e.Evaluate("c-1", model.Action{Verb: model.VerbReadScreen, App: "com.news.reader"}, model.ModeNormal)
	if d.Decision != model.Denied || d.Reason != model.ReasonEmergencyStop {
		t.Errorf("expected denied/emergency_stop, got %+v", d)
	}
	if !e.Stopped() {
		t.Error("latch should remain set")
	}
}

func TestPaceDelayReportsRemainingSpacing(t *testing.T) {
	store, err := approval.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("approval store: %v", err)
	}
	// A frozen clock so the full spacing interval stays outstanding
	// after an approval.
	base := time.Now()
	e := NewEngine(
		&Config{Rules: []Rule{{Pattern: "com.browser.*", Effect: Allow}}},
		ratelimit.New(defaultRL()), store,
		WithClock(func() time.Time { return base }),
	)

	if d := e.PaceDelay(); d != 0 {
		t.Errorf("no approvals yet, expected zero delay, got %s", d)
	}

	if d := e.Evaluate("c-1", model.Action{Verb: model.VerbTap, App: "com.browser.chrome"}, model.ModeNormal); d.Decision != model.Approved {
		t.Fatalf("expected approved, got %+v", d)
	}

	if d := e.PaceDelay(); d != 2*time.Second {
		t.Errorf("expected full spacing outstanding, got %s", d)
	}
}

func TestDeniedActionDoesNotConsumeRateBudget(t *testing.T) {
	cfg := defaultRL()
	cfg.PerApp = 1
	e := testEngine(t, []Rule{
		{Pattern: "com.browser.*", Effect: Allow},
		{Pattern: "com.bank.*", Effect: Deny},
	}, cfg)

	// Denied evaluations must not count toward any window.
	for i := 0; i < 5; i++ {
		e.Evaluate("c-1", model.Action{Verb: model.VerbTap, App: "com.bank.app"}, model.ModeNormal)
	}

	d := e.Evaluate("c-1", model.Action{Verb: model.VerbTap, App: "com.browser.chrome"}, model.ModeNormal)
	if d.Decision != model.Approved {
		t.Errorf("approved budget should be untouched by denials, got %+v", d)
	}
}
