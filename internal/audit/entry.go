package audit

// Event kinds recorded in the trail.
const (
	EventDecision   = "policy_decision"
	EventRouting    = "routing"
	EventTransition = "state_transition"
	EventStop       = "emergency_stop"
)

// Entry is one line in the hash-chained JSONL audit trail. All fields
// are flat value types so json.Marshal field order is deterministic and
// hashing is reproducible. Raw screen or intent content is never stored
// for sensitive/critical tiers — only the tier label.
type Entry struct {
	Timestamp string `json:"ts"`
	CycleID   string `json:"cycle_id"`
	Event     string `json:"event"`

	// Policy decision fields.
	Verb     string `json:"verb,omitempty"`
	App      string `json:"app,omitempty"`
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
	RuleID   string `json:"rule_id,omitempty"`

	// Routing fields.
	Tier     string `json:"tier,omitempty"`
	Backend  string `json:"backend,omitempty"`
	Redacted bool   `json:"redacted,omitempty"`

	// State transition fields.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	Mode       string `json:"mode,omitempty"`
	PolicyHash string `json:"policy_hash,omitempty"`
	PrevHash   string `json:"prev_hash"`
}
