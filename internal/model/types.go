package model

import "time"

// SensitivityTier classifies how privacy-critical a piece of text is.
// Tiers are ordered: higher values impose stricter routing and
// confirmation requirements. A tier assigned within a decision cycle
// is never demoted.
type SensitivityTier int

const (
	TierPublic SensitivityTier = iota
	TierPrivate
	TierSensitive
	TierCritical
)

// String returns the wire label for the tier.
func (t SensitivityTier) String() string {
	switch t {
	case TierPublic:
		return "public"
	case TierPrivate:
		return "private"
	case TierSensitive:
		return "sensitive"
	case TierCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MaxTier returns the higher of two tiers.
func MaxTier(a, b SensitivityTier) SensitivityTier {
	if a > b {
		return a
	}
	return b
}

// OperatingMode is the agent's power-derived operating mode.
type OperatingMode string

const (
	ModeNormal  OperatingMode = "normal"
	ModeStealth OperatingMode = "stealth"
)

// Observation is a timestamped snapshot of device state, produced by the
// device controller. Immutable once created.
type Observation struct {
	Timestamp  time.Time `json:"timestamp"`
	App        string    `json:"app"`
	ScreenText string    `json:"screen_text"`
	Battery    int       `json:"battery"`
	Charging   bool      `json:"charging"`
}

// Summary returns a short observation description safe for records.
func (o Observation) Summary() string {
	app := o.App
	if app == "" {
		app = "unknown"
	}
	return app
}

// Action verbs the executor understands.
const (
	VerbTap           = "tap"
	VerbSwipe         = "swipe"
	VerbType          = "type"
	VerbPressKey      = "press_key"
	VerbLaunch        = "launch"
	VerbBack          = "back"
	VerbHome          = "home"
	VerbScroll        = "scroll"
	VerbReadScreen    = "read_screen"
	VerbSettingToggle = "setting_toggle"
)

// readOnlyVerbs observe device state without mutating it. Under stealth
// mode only these qualify as critical-safe.
var readOnlyVerbs = map[string]bool{
	VerbReadScreen: true,
	VerbBack:       true,
	VerbHome:       true,
	VerbScroll:     true,
}

// ReadOnlyVerb reports whether the verb observes without mutating.
func ReadOnlyVerb(verb string) bool {
	return readOnlyVerbs[verb]
}

// Action is one atomic unit of device interaction.
type Action struct {
	Verb   string         `json:"verb"`
	App    string         `json:"app"`
	Params map[string]any `json:"params,omitempty"`
}

// Plan is an ordered, finite sequence of actions produced by a reasoner
// for one user intent. An empty plan is a valid no-op cycle.
type Plan struct {
	Reasoning string   `json:"reasoning,omitempty"`
	Actions   []Action `json:"actions"`
}

// Decision is the outcome kind of evaluating one action.
type Decision string

const (
	Approved          Decision = "approved"
	Denied            Decision = "denied"
	NeedsConfirmation Decision = "needs_confirmation"
)

// Denial reasons. Stable strings: they appear in audit entries and records.
const (
	ReasonNotWhitelisted    = "not_whitelisted"
	ReasonVerbRestricted    = "verb_restricted"
	ReasonRateLimited       = "rate_limited"
	ReasonStealthRestricted = "stealth_restricted"
	ReasonEmergencyStop     = "emergency_stop"
)

// PolicyDecision is the result of evaluating one action. Computed fresh
// per action; never cached, because rate-limiter state mutates after
// each approval.
type PolicyDecision struct {
	Decision    Decision `json:"decision"`
	Reason      string   `json:"reason,omitempty"`
	RuleID      string   `json:"rule_id,omitempty"`
	ApprovalKey string   `json:"approval_key,omitempty"`
}

// Denied reports whether the decision blocks dispatch outright.
func (d PolicyDecision) Denied() bool { return d.Decision == Denied }

// ActionOutcome records what happened to one planned action.
type ActionOutcome struct {
	Action     Action         `json:"action"`
	Decision   PolicyDecision `json:"decision"`
	Dispatched bool           `json:"dispatched"`
	Success    bool           `json:"success"`
	Detail     string         `json:"detail,omitempty"`
}

// InteractionRecord is the durable record of one full decision cycle.
// Created at cycle completion, never mutated afterwards.
type InteractionRecord struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Intent    string          `json:"intent"`
	App       string          `json:"app"`
	Tier      SensitivityTier `json:"tier"`
	Mode      OperatingMode   `json:"mode"`
	Backend   string          `json:"backend,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
	Outcomes  []ActionOutcome `json:"outcomes"`
	Aborted   bool            `json:"aborted,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Succeeded reports whether every dispatched action completed.
func (r InteractionRecord) Succeeded() bool {
	if r.Aborted || r.Error != "" {
		return false
	}
	for _, o := range r.Outcomes {
		if o.Dispatched && !o.Success {
			return false
		}
		if o.Decision.Decision != Approved {
			return false
		}
	}
	return true
}
