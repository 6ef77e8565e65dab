// Package classify assigns sensitivity tiers to text and app identifiers.
// Classification is deterministic and side-effect free: matchers are
// compiled once and never consult external state, so classifying the
// same text twice always yields the same tier.
package classify

import (
	"regexp"
	"sort"
	"strings"

	"screenpilot/internal/model"
)

// Kind identifies the category of a sensitive match.
type Kind string

const (
	KindCard     Kind = "CARD"
	KindSSN      Kind = "SSN"
	KindCVV      Kind = "CVV"
	KindOTP      Kind = "OTP"
	KindPassword Kind = "PASSWORD"
	KindBank     Kind = "BANK"
	KindEmail    Kind = "EMAIL"
	KindPhone    Kind = "PHONE"
	KindLocation Kind = "LOCATION"
	KindMarked   Kind = "MARKED"
)

// Span is one sensitive match with its position in the source text.
type Span struct {
	Kind  Kind
	Tier  model.SensitivityTier
	Value string
	Start int
	End   int
}

// matcher binds a compiled pattern to the tier it implies.
type matcher struct {
	kind Kind
	tier model.SensitivityTier
	re   *regexp.Regexp
}

// Matchers are ordered by descending tier: the first family that matches
// decides the classification. Where a pattern is ambiguous the matcher
// over-classifies; false negatives are the primary risk here, not false
// positives.
var matchers = []matcher{
	{KindCard, model.TierCritical, regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)},
	{KindSSN, model.TierCritical, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{KindCVV, model.TierCritical, regexp.MustCompile(`(?i)\b(cvv|cvc)\b`)},
	{KindOTP, model.TierCritical, regexp.MustCompile(`(?i)\b(one[ -]?time\s+(code|password)|verification\s+code|otp)\b`)},
	{KindOTP, model.TierSensitive, regexp.MustCompile(`\b\d{6}\b`)},
	{KindPassword, model.TierSensitive, regexp.MustCompile(`(?i)\b(password|passwd|pwd|pin\s*code|pin\s*number)\b`)},
	{KindBank, model.TierSensitive, regexp.MustCompile(`(?i)\b(bank|account\s*number|routing\s*number)\b`)},
	{KindEmail, model.TierPrivate, regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{KindPhone, model.TierPrivate, regexp.MustCompile(`\b\d{10}\b`)},
	{KindLocation, model.TierPrivate, regexp.MustCompile(`(?i)\b(address|location)\b`)},
	{KindMarked, model.TierPrivate, regexp.MustCompile(`(?i)\b(private|confidential)\b`)},
}

// sensitiveAppKeywords mark an app identifier as privacy-relevant.
// Matching any keyword floors the tier for content observed in that app
// at TierPrivate.
var sensitiveAppKeywords = []string{
	"bank", "wallet", "payment", "paypal", "venmo",
	"authenticator", "2fa", "password", "keeper",
	"messages", "whatsapp", "telegram", "signal",
}

// Classify returns the sensitivity tier of text. The first matching
// family in descending tier order wins; no match yields TierPublic.
func Classify(text string) model.SensitivityTier {
	for _, m := range matchers {
		if m.re.MatchString(text) {
			return m.tier
		}
	}
	return model.TierPublic
}

// Spans finds every sensitive match in text, one span per occurrence,
// sorted by position. Used by the redactor to mask content before
// cloud transmission.
func Spans(text string) []Span {
	seen := make(map[[2]int]bool)
	var spans []Span
	for _, m := range matchers {
		for _, loc := range m.re.FindAllStringIndex(text, -1) {
			key := [2]int{loc[0], loc[1]}
			if seen[key] {
				continue
			}
			seen[key] = true
			spans = append(spans, Span{
				Kind:  m.kind,
				Tier:  m.tier,
				Value: text[loc[0]:loc[1]],
				Start: loc[0],
				End:   loc[1],
			})
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End > spans[j].End
	})
	return spans
}

// SensitiveApp reports whether the app identifier names a
// privacy-relevant application.
func SensitiveApp(appID string) bool {
	if appID == "" {
		return false
	}
	lower := strings.ToLower(appID)
	for _, kw := range sensitiveAppKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
