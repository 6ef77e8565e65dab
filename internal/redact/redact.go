// Package redact masks sensitive spans before text leaves the device.
// Masking is fail-closed: if Verify cannot establish that a redacted
// payload is clean, the caller must route locally instead of sending it.
package redact

import (
	"fmt"
	"strings"

	"screenpilot/internal/classify"
	"screenpilot/internal/model"
)

// TokenMap maps sensitive values to stable placeholder tokens within one
// decision cycle. The same value always yields the same token. Not
// goroutine-safe; each cycle builds its own map.
type TokenMap struct {
	forward  map[string]string
	counters map[classify.Kind]int
}

// NewTokenMap creates an empty token map.
func NewTokenMap() *TokenMap {
	return &TokenMap{
		forward:  make(map[string]string),
		counters: make(map[classify.Kind]int),
	}
}

// Token returns the placeholder for a sensitive value, allocating one on
// first use. The <<KIND_N>> shape is deliberate: the trailing counter
// keeps placeholders from re-matching the word-boundary classifiers.
func (tm *TokenMap) Token(kind classify.Kind, value string) string {
	if tok, ok := tm.forward[value]; ok {
		return tok
	}
	tm.counters[kind]++
	tok := fmt.Sprintf("<<%s_%d>>", kind, tm.counters[kind])
	tm.forward[value] = tok
	return tok
}

// Len returns the number of distinct masked values.
func (tm *TokenMap) Len() int { return len(tm.forward) }

// Mask replaces every sensitive span in text with a placeholder token
// and returns the masked text. Replacement is positional: spans arrive
// sorted, and a span overlapping an earlier one is skipped rather than
// splicing a token mid-token.
func Mask(text string, tm *TokenMap) string {
	spans := classify.Spans(text)
	if len(spans) == 0 {
		return text
	}

	var b strings.Builder
	cursor := 0
	for _, span := range spans {
		if span.Start < cursor {
			continue
		}
		b.WriteString(text[cursor:span.Start])
		b.WriteString(tm.Token(span.Kind, span.Value))
		cursor = span.End
	}
	b.WriteString(text[cursor:])
	return b.String()
}

// Verify re-scans a masked payload and reports ErrRedactionUncertain if
// any span at TierPrivate or above survives. Callers treat that as an
// instruction to route locally, never as a reason to send the payload.
func Verify(masked string) error {
	for _, span := range classify.Spans(masked) {
		if span.Tier >= model.TierPrivate {
			return fmt.Errorf("%w: %s span survived masking", model.ErrRedactionUncertain, span.Kind)
		}
	}
	return nil
}
