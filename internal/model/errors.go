package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for infrastructure failures. All are recoverable at the
// cycle level: the agent loop reports them and returns to idle.
var (
	// ErrObservationFailed means the device controller could not produce
	// an observation after bounded retries.
	ErrObservationFailed = errors.New("observation failed")

	// ErrReasonerUnavailable means no reasoner is reachable for the
	// selected route.
	ErrReasonerUnavailable = errors.New("reasoner unavailable")

	// ErrRedactionUncertain means redaction confidence could not be
	// established for cloud routing. Handled locally by falling back to
	// the local reasoner; never escalates.
	ErrRedactionUncertain = errors.New("redaction uncertain")

	// ErrEmergencyStop means the reserved stop literal was observed.
	// A deliberate abort path, not a fault.
	ErrEmergencyStop = errors.New("emergency stop")
)

// DispatchError wraps a device controller failure for a single action.
// It terminates remaining plan execution for the cycle; completed
// outcomes are preserved in the record.
type DispatchError struct {
	Action Action
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s on %s: %v", e.Action.Verb, e.Action.App, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// BlockedError carries a blocking policy decision out of an enforcement
// path. Expected control flow, not a fault.
type BlockedError struct {
	Decision    Decision
	Reason      string
	ApprovalKey string
}

func (e *BlockedError) Error() string {
	if e.ApprovalKey != "" {
		return fmt.Sprintf("blocked (%s): %s [approval_key=%s]", e.Decision, e.Reason, e.ApprovalKey)
	}
	return fmt.Sprintf("blocked (%s): %s", e.Decision, e.Reason)
}
