package mcp

import (
	"context"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"screenpilot/internal/agent"
	"screenpilot/internal/approval"
	"screenpilot/internal/device"
	"screenpilot/internal/memory"
	"screenpilot/internal/model"
	"screenpilot/internal/policy"
	"screenpilot/internal/power"
	"screenpilot/internal/ratelimit"
	"screenpilot/internal/reasoner"
	"screenpilot/internal/router"
)

type stubReasoner struct {
	plan model.Plan
}

func (s *stubReasoner) Plan(ctx context.Context, payload, memContext string) (model.Plan, error) {
	return s.plan, nil
}

func (s *stubReasoner) Kind() reasoner.Kind { return reasoner.KindLocal }

func newTestServer(t *testing.T, plan model.Plan, rules []policy.Rule) *Server {
	t.Helper()

	store, err := approval.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("approval store: %v", err)
	}
	if rules == nil {
		rules = []policy.Rule{{Pattern: "*", Effect: policy.Allow}}
	}
	base := time.Now()
	step := 0
	clock := func() time.Time {
		step++
		return base.Add(time.Duration(step) * 10 * time.Second)
	}
	engine := policy.NewEngine(&policy.Config{Rules: rules},
		ratelimit.New(ratelimit.DefaultConfig()), store, policy.WithClock(clock))

	ctrl := &device.Scripted{Observations: []model.Observation{
		{App: "com.news.reader", ScreenText: "Headlines", Battery: 80},
	}}
	mem := memory.New(100)
	monitor := power.New(ctrl, power.DefaultThreshold)
	rs := &stubReasoner{plan: plan}
	loop := agent.New(ctrl, router.New(true, false), rs, nil,
		engine, monitor, mem, nil, agent.Config{})

	return New(loop, engine, store, mem, monitor)
}

func TestTaskRunsCycle(t *testing.T) {
	s := newTestServer(t, model.Plan{
		Reasoning: "scroll the feed",
		Actions:   []model.Action{{Verb: model.VerbScroll, App: "com.news.reader"}},
	}, nil)

	result, out, err := s.handleTask(context.Background(), &mcpsdk.CallToolRequest{}, TaskInput{Intent: "check the news"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("expected success, got error result: %+v", out)
	}
	if len(out.Actions) != 1 || out.Actions[0].Decision != "approved" || !out.Actions[0].Success {
		t.Fatalf("unexpected actions: %+v", out.Actions)
	}
	if out.Backend != "local" {
		t.Errorf("expected local backend, got %q", out.Backend)
	}
}

func TestTaskReportsDenials(t *testing.T) {
	s := newTestServer(t, model.Plan{
		Reasoning: "try the bank",
		Actions:   []model.Action{{Verb: model.VerbTap, App: "com.bank.app"}},
	}, []policy.Rule{
		{Pattern: "com.news.*", Effect: policy.Allow},
		{Pattern: "com.bank.*", Effect: policy.Deny},
	})

	_, out, err := s.handleTask(context.Background(), &mcpsdk.CallToolRequest{}, TaskInput{Intent: "check my balance"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Actions) != 1 || out.Actions[0].Decision != "denied" {
		t.Fatalf("expected denied action, got %+v", out.Actions)
	}
	if out.Actions[0].Dispatched {
		t.Error("denied action must not dispatch")
	}
}

func TestTaskRequiresIntent(t *testing.T) {
	s := newTestServer(t, model.Plan{}, nil)
	if _, _, err := s.handleTask(context.Background(), &mcpsdk.CallToolRequest{}, TaskInput{}); err == nil {
		t.Error("expected error for empty intent")
	}
}

func TestCheckDryRun(t *testing.T) {
	s := newTestServer(t, model.Plan{}, []policy.Rule{
		{Pattern: "com.browser.*", Effect: policy.Allow},
	})
	ctx := context.Background()

	_, out, err := s.handleCheck(ctx, &mcpsdk.CallToolRequest{}, CheckInput{App: "com.browser.chrome", Verb: model.VerbTap})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Decision != "approved" {
		t.Fatalf("expected approved, got %q (%s)", out.Decision, out.Reason)
	}

	_, denied, err := s.handleCheck(ctx, &mcpsdk.CallToolRequest{}, CheckInput{App: "org.unknown", Verb: model.VerbTap})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if denied.Decision != "denied" || denied.Reason != model.ReasonNotWhitelisted {
		t.Fatalf("expected fail-closed deny, got %+v", denied)
	}
}

func TestApproveAndDeny(t *testing.T) {
	s := newTestServer(t, model.Plan{}, nil)
	ctx := context.Background()

	key := approval.Key("com.mail", model.VerbType)
	if err := s.approvals.Request(key, "com.mail", model.VerbType, "test"); err != nil {
		t.Fatalf("request: %v", err)
	}

	_, out, err := s.handleApprove(ctx, &mcpsdk.CallToolRequest{}, ApproveInput{Key: key, Duration: "5m"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out.Status != "approved" || out.Duration != "5m0s" {
		t.Fatalf("unexpected output: %+v", out)
	}

	key2 := approval.Key("com.mail", model.VerbLaunch)
	if err := s.approvals.Request(key2, "com.mail", model.VerbLaunch, "test"); err != nil {
		t.Fatalf("request: %v", err)
	}
	_, dout, err := s.handleApprove(ctx, &mcpsdk.CallToolRequest{}, ApproveInput{Key: key2, Deny: true})
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if dout.Status != "denied" {
		t.Fatalf("expected denied, got %q", dout.Status)
	}
}

func TestPendingList(t *testing.T) {
	s := newTestServer(t, model.Plan{}, nil)
	ctx := context.Background()

	s.approvals.Request(approval.Key("com.a", "tap"), "com.a", "tap", "reason a")
	s.approvals.Request(approval.Key("com.b", "type"), "com.b", "type", "reason b")
	s.approvals.Approve(approval.Key("com.b", "type"), 0)

	_, out, err := s.handlePending(ctx, &mcpsdk.CallToolRequest{}, PendingInput{})
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(out.Approvals) != 1 || out.Approvals[0].App != "com.a" {
		t.Fatalf("expected only the pending request, got %+v", out.Approvals)
	}
}

func TestHistoryFilters(t *testing.T) {
	s := newTestServer(t, model.Plan{}, nil)
	ctx := context.Background()

	s.mem.Append(model.InteractionRecord{ID: "r1", Timestamp: time.Now(), Intent: "a", App: "com.mail"})
	s.mem.Append(model.InteractionRecord{ID: "r2", Timestamp: time.Now(), Intent: "b", App: "com.news"})

	_, out, err := s.handleHistory(ctx, &mcpsdk.CallToolRequest{}, HistoryInput{App: "com.mail"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(out.Records) != 1 || out.Records[0].ID != "r1" {
		t.Fatalf("expected only com.mail record, got %+v", out.Records)
	}

	_, all, _ := s.handleHistory(ctx, &mcpsdk.CallToolRequest{}, HistoryInput{})
	if len(all.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all.Records))
	}
}

func TestToolRegistration(t *testing.T) {
	s := newTestServer(t, model.Plan{}, nil)
	if s.mcpServer == nil {
		t.Fatal("expected MCP server to be initialized")
	}
}
