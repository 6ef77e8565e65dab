// Package reasoner turns a routed payload into an action plan. The
// local implementation speaks the OpenAI-compatible chat-completions
// API (Ollama, llama.cpp, vLLM); the cloud implementations are the
// same API against a remote endpoint, or AWS Bedrock.
package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"screenpilot/internal/model"
)

// Kind labels where a reasoner runs. The router only ever hands
// sensitive payloads to KindLocal reasoners.
type Kind string

const (
	KindLocal Kind = "local"
	KindCloud Kind = "cloud"
)

// Reasoner produces an action plan from a payload and memory context.
type Reasoner interface {
	Plan(ctx context.Context, payload, memContext string) (model.Plan, error)
	Kind() Kind
}

const planSystemPrompt = `You are an automation planner for an Android device. You receive the user's task and the current screen contents and must plan a short sequence of device actions.

Valid action verbs:
- tap: params x, y (screen coordinates)
- swipe: params x1, y1, x2, y2, duration_ms
- type: params text
- press_key: params key (e.g. ENTER, BACK)
- launch: app set to the package name to open
- back, home: no params
- scroll: params direction (up or down)
- read_screen: no params, re-reads the visible text
- setting_toggle: params namespace, key, value

Return ONLY valid JSON, no markdown fences, no commentary:
{"reasoning":"<one sentence>","actions":[{"verb":"<verb>","app":"<package>","params":{}}]}

If the task is already complete or nothing can be done, return: {"reasoning":"<why>","actions":[]}
Keep plans short: five actions or fewer.`

// buildUserPrompt joins the routed payload with memory context.
func buildUserPrompt(payload, memContext string) string {
	if memContext == "" {
		return payload
	}
	return payload + "\n\n" + memContext
}

// parsePlan extracts a plan from raw model output. Handles markdown
// fences and leading prose around the JSON object.
func parsePlan(raw string) (model.Plan, error) {
	raw = cleanJSON(raw)

	// Some models wrap the object in prose. Cut to the outermost braces.
	if start := strings.Index(raw, "{"); start > 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var plan model.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return model.Plan{}, fmt.Errorf("cannot parse plan response: %s", truncate(raw, 200))
	}
	if plan.Reasoning == "" {
		plan.Reasoning = "no reasoning provided"
	}
	return plan, nil
}

// cleanJSON strips markdown fences and surrounding whitespace.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
