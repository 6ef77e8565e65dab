package policy

import "testing"

func TestMostSpecificMatchWins(t *testing.T) {
	rules := []Rule{
		{Pattern: "com.*", Effect: Allow},
		{Pattern: "com.bank.*", Effect: Deny},
	}

	r := match(rules, "com.bank.app")
	if r == nil || r.Effect != Deny {
		t.Fatalf("expected com.bank.* deny rule to win, got %+v", r)
	}

	r = match(rules, "com.browser.chrome")
	if r == nil || r.Effect != Allow {
		t.Fatalf("expected com.* allow rule for browser, got %+v", r)
	}
}

func TestEqualSpecificityBreaksTowardDeny(t *testing.T) {
	rules := []Rule{
		{Pattern: "com.bank.*", Effect: Allow},
		{Pattern: "com.bank.*", Effect: Deny},
	}
	r := match(rules, "com.bank.app")
	if r == nil || r.Effect != Deny {
		t.Fatalf("tie should break toward deny, got %+v", r)
	}

	// Same tie with declaration order reversed.
	rules[0], rules[1] = rules[1], rules[0]
	r = match(rules, "com.bank.app")
	if r == nil || r.Effect != Deny {
		t.Fatalf("tie should break toward deny regardless of order, got %+v", r)
	}
}

func TestNoMatchReturnsNil(t *testing.T) {
	rules := []Rule{{Pattern: "com.browser.*", Effect: Allow}}
	if r := match(rules, "org.other.app"); r != nil {
		t.Errorf("expected nil for unmatched app, got %+v", r)
	}
}

func TestMalformedPatternMatchesNothing(t *testing.T) {
	r := Rule{Pattern: "com.[bank", Effect: Allow}
	if r.Matches("com.bank.app") {
		t.Error("malformed pattern must not match")
	}
}

func TestVerbRestrictions(t *testing.T) {
	r := Rule{
		Pattern:        "com.mail.*",
		Effect:         Allow,
		AllowedVerbs:   []string{"tap", "read_screen"},
		ForbiddenVerbs: []string{"type"},
	}

	if !r.verbPermitted("tap") {
		t.Error("tap should be permitted")
	}
	if r.verbPermitted("type") {
		t.Error("forbidden verb should be refused")
	}
	if r.verbPermitted("swipe") {
		t.Error("verb outside allowed list should be refused")
	}
}

func TestConfirmVerbs(t *testing.T) {
	r := Rule{Pattern: "com.mail.*", Effect: Allow, ConfirmVerbs: []string{"type"}}
	if !r.confirmsVerb("type") {
		t.Error("listed verb should require confirmation")
	}
	if r.confirmsVerb("tap") {
		t.Error("unlisted verb should not require confirmation")
	}

	all := Rule{Pattern: "com.bank.*", Effect: Allow, RequireConfirmation: true}
	if !all.confirmsVerb("tap") {
		t.Error("require_confirmation should cover every verb")
	}
}
