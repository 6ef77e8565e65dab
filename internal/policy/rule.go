package policy

import (
	"fmt"
	"path"
	"strings"
)

// Effect tags a rule as whitelist or blacklist.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// Rule is one app-pattern policy entry. Rules are loaded once per
// session and read-only thereafter.
type Rule struct {
	// Pattern is a glob over application identifiers, e.g. "com.bank.*".
	Pattern string `yaml:"pattern"`
	Effect  Effect `yaml:"effect"`

	// MaxPerHour caps approved actions for apps matching this rule
	// within the rolling hour. Zero uses the session default.
	MaxPerHour int `yaml:"max_per_hour,omitempty"`

	// RequireConfirmation demands operator confirmation for every verb;
	// ConfirmVerbs demands it for the listed verbs only.
	RequireConfirmation bool     `yaml:"require_confirmation,omitempty"`
	ConfirmVerbs        []string `yaml:"confirm_verbs,omitempty"`

	// AllowedVerbs, when non-empty, is an exhaustive verb whitelist.
	// ForbiddenVerbs always deny and take precedence.
	AllowedVerbs   []string `yaml:"allowed_verbs,omitempty"`
	ForbiddenVerbs []string `yaml:"forbidden_verbs,omitempty"`
}

// ID returns a stable identifier for audit entries.
func (r Rule) ID() string {
	return fmt.Sprintf("%s:%s", r.Effect, r.Pattern)
}

// Matches reports whether the rule's pattern matches the app identifier.
// A malformed pattern matches nothing.
func (r Rule) Matches(appID string) bool {
	ok, err := path.Match(r.Pattern, appID)
	return err == nil && ok
}

// specificity is the count of literal characters in the pattern. A
// longer literal prefix beats a broader wildcard on overlap.
func (r Rule) specificity() int {
	return len(strings.Map(func(c rune) rune {
		if c == '*' || c == '?' {
			return -1
		}
		return c
	}, r.Pattern))
}

// confirmsVerb reports whether this rule demands confirmation for verb.
func (r Rule) confirmsVerb(verb string) bool {
	if r.RequireConfirmation {
		return true
	}
	for _, v := range r.ConfirmVerbs {
		if v == verb {
			return true
		}
	}
	return false
}

// verbPermitted applies the rule's verb restrictions.
func (r Rule) verbPermitted(verb string) bool {
	for _, v := range r.ForbiddenVerbs {
		if v == verb {
			return false
		}
	}
	if len(r.AllowedVerbs) == 0 {
		return true
	}
	for _, v := range r.AllowedVerbs {
		if v == verb {
			return true
		}
	}
	return false
}

// match selects the governing rule for an app identifier: the
// most-specific matching pattern wins; equal specificity breaks toward
// DENY. No match returns nil (callers treat that as deny).
func match(rules []Rule, appID string) *Rule {
	var best *Rule
	bestSpec := -1
	for i := range rules {
		r := &rules[i]
		if !r.Matches(appID) {
			continue
		}
		spec := r.specificity()
		switch {
		case spec > bestSpec:
			best, bestSpec = r, spec
		case spec == bestSpec && best != nil && best.Effect == Allow && r.Effect == Deny:
			best = r
		}
	}
	return best
}
