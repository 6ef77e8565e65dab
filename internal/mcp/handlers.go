package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"screenpilot/internal/approval"
	"screenpilot/internal/model"
)

// --- Input/Output types ---

// TaskInput defines parameters for the screenpilot_task tool.
type TaskInput struct {
	Intent string `json:"intent" jsonschema:"task for the agent to perform on the device"`
}

// ActionResult summarizes one planned action's fate.
type ActionResult struct {
	Verb       string `json:"verb"`
	App        string `json:"app,omitempty"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason,omitempty"`
	Dispatched bool   `json:"dispatched"`
	Success    bool   `json:"success"`
	Detail     string `json:"detail,omitempty"`
}

// TaskOutput contains the cycle result.
type TaskOutput struct {
	CycleID   string         `json:"cycle_id,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Tier      string         `json:"tier,omitempty"`
	Backend   string         `json:"backend,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	Actions   []ActionResult `json:"actions"`
	Aborted   bool           `json:"aborted,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// CheckInput defines parameters for the screenpilot_check tool.
type CheckInput struct {
	App  string `json:"app" jsonschema:"app package name, e.g. com.android.settings"`
	Verb string `json:"verb" jsonschema:"action verb (tap/swipe/type/press_key/launch/back/home/scroll/read_screen/setting_toggle)"`
}

// CheckOutput contains the dry-run policy decision.
type CheckOutput struct {
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
	RuleID      string `json:"rule_id,omitempty"`
	ApprovalKey string `json:"approval_key,omitempty"`
	Mode        string `json:"mode"`
}

// ApproveInput defines parameters for the screenpilot_approve tool.
type ApproveInput struct {
	Key      string `json:"key" jsonschema:"approval key from a needs_confirmation decision"`
	Deny     bool   `json:"deny,omitempty" jsonschema:"set true to deny instead of approve"`
	Duration string `json:"duration,omitempty" jsonschema:"grant window (e.g. 5m), omit for one-time approval"`
}

// ApproveOutput confirms the resolution.
type ApproveOutput struct {
	Key      string `json:"key"`
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
}

// PendingInput is empty — no parameters needed.
type PendingInput struct{}

// PendingOutput lists pending confirmations.
type PendingOutput struct {
	Approvals []PendingItem `json:"approvals"`
}

// PendingItem describes a single confirmation request.
type PendingItem struct {
	Key       string `json:"key"`
	App       string `json:"app"`
	Verb      string `json:"verb"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

// HistoryInput defines parameters for the screenpilot_history tool.
type HistoryInput struct {
	Limit int    `json:"limit,omitempty" jsonschema:"maximum records to return, default 10"`
	App   string `json:"app,omitempty" jsonschema:"filter to one app package"`
}

// HistoryOutput lists interaction records, most recent last.
type HistoryOutput struct {
	Records []HistoryItem `json:"records"`
}

// HistoryItem is one past decision cycle.
type HistoryItem struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Intent    string `json:"intent"`
	App       string `json:"app,omitempty"`
	Tier      string `json:"tier"`
	Mode      string `json:"mode"`
	Backend   string `json:"backend,omitempty"`
	Succeeded bool   `json:"succeeded"`
	Aborted   bool   `json:"aborted,omitempty"`
	Error     string `json:"error,omitempty"`
}

// --- Handlers ---

func (s *Server) handleTask(ctx context.Context, req *mcpsdk.CallToolRequest, input TaskInput) (*mcpsdk.CallToolResult, TaskOutput, error) {
	if input.Intent == "" {
		return nil, TaskOutput{}, fmt.Errorf("intent is required")
	}

	rec, err := s.loop.Cycle(ctx, input.Intent)
	if err != nil && errors.Is(err, model.ErrEmergencyStop) && rec.ID == "" {
		return &mcpsdk.CallToolResult{IsError: true},
			TaskOutput{Error: "emergency stop latched; agent halted"}, nil
	}

	out := TaskOutput{
		CycleID:   rec.ID,
		Mode:      string(rec.Mode),
		Tier:      rec.Tier.String(),
		Backend:   rec.Backend,
		Reasoning: rec.Reasoning,
		Aborted:   rec.Aborted,
	}
	for _, o := range rec.Outcomes {
		out.Actions = append(out.Actions, ActionResult{
			Verb:       o.Action.Verb,
			App:        o.Action.App,
			Decision:   string(o.Decision.Decision),
			Reason:     o.Decision.Reason,
			Dispatched: o.Dispatched,
			Success:    o.Success,
			Detail:     o.Detail,
		})
	}
	if err != nil {
		out.Error = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if input.App == "" || input.Verb == "" {
		return nil, CheckOutput{}, fmt.Errorf("app and verb are required")
	}

	mode := s.monitor.Mode(ctx)
	d := s.engine.Check(model.Action{Verb: input.Verb, App: input.App}, mode)
	return nil, CheckOutput{
		Decision:    string(d.Decision),
		Reason:      d.Reason,
		RuleID:      d.RuleID,
		ApprovalKey: d.ApprovalKey,
		Mode:        string(mode),
	}, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input ApproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	if input.Key == "" {
		return nil, ApproveOutput{}, fmt.Errorf("key is required")
	}

	if input.Deny {
		if err := s.approvals.Deny(input.Key); err != nil {
			return nil, ApproveOutput{}, err
		}
		return nil, ApproveOutput{Key: input.Key, Status: string(approval.StatusDenied)}, nil
	}

	var dur time.Duration
	if input.Duration != "" {
		var err error
		dur, err = time.ParseDuration(input.Duration)
		if err != nil {
			return nil, ApproveOutput{}, fmt.Errorf("invalid duration %q: %w", input.Duration, err)
		}
	}
	if err := s.approvals.Approve(input.Key, dur); err != nil {
		return nil, ApproveOutput{}, err
	}
	out := ApproveOutput{Key: input.Key, Status: string(approval.StatusApproved)}
	if dur > 0 {
		out.Duration = dur.String()
	}
	return nil, out, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	all, err := s.approvals.List()
	if err != nil {
		return nil, PendingOutput{}, err
	}
	out := PendingOutput{Approvals: []PendingItem{}}
	for _, a := range all {
		if a.Status != approval.StatusPending {
			continue
		}
		out.Approvals = append(out.Approvals, PendingItem{
			Key:       a.Key,
			App:       a.App,
			Verb:      a.Verb,
			Reason:    a.Reason,
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

func (s *Server) handleHistory(ctx context.Context, req *mcpsdk.CallToolRequest, input HistoryInput) (*mcpsdk.CallToolResult, HistoryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	var records []model.InteractionRecord
	if input.App != "" {
		records = s.mem.AppRecent(input.App, limit)
	} else {
		records = s.mem.Recent(limit)
	}

	out := HistoryOutput{Records: []HistoryItem{}}
	for _, r := range records {
		out.Records = append(out.Records, HistoryItem{
			ID:        r.ID,
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
			Intent:    r.Intent,
			App:       r.App,
			Tier:      r.Tier.String(),
			Mode:      string(r.Mode),
			Backend:   r.Backend,
			Succeeded: r.Succeeded(),
			Aborted:   r.Aborted,
			Error:     r.Error,
		})
	}
	return nil, out, nil
}
