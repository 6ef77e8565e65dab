package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/neurorouter"

	"screenpilot/internal/model"
)

// OpenAIConfig holds parameters for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIURL    string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Kind      Kind
}

// OpenAI plans against any chat-completions endpoint. It serves both
// the local role (Ollama on localhost) and the generic cloud role,
// distinguished only by cfg.Kind.
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAI builds a client. Missing MaxTokens and Timeout fall back
// to 800 tokens and 60 seconds.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Kind == "" {
		cfg.Kind = KindLocal
	}
	return &OpenAI{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (o *OpenAI) Kind() Kind { return o.cfg.Kind }

// Plan sends the payload to the endpoint and parses the returned plan.
// HTTP 429 surfaces as neurorouter.ErrRateLimited so the agent loop
// can defer the cycle instead of failing it.
func (o *OpenAI) Plan(ctx context.Context, payload, memContext string) (model.Plan, error) {
	messages := []map[string]string{
		{"role": "system", "content": planSystemPrompt},
		{"role": "user", "content": buildUserPrompt(payload, memContext)},
	}

	body, _ := json.Marshal(map[string]interface{}{
		"model":       o.cfg.Model,
		"messages":    messages,
		"max_tokens":  o.cfg.MaxTokens,
		"temperature": 0,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", o.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return model.Plan{}, fmt.Errorf("create request: %w", err)
	}
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return model.Plan{}, fmt.Errorf("plan request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests {
		return model.Plan{}, fmt.Errorf("plan HTTP 429: %w", neurorouter.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Plan{}, fmt.Errorf("plan HTTP %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 200))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || len(result.Choices) == 0 {
		return model.Plan{}, fmt.Errorf("empty plan response")
	}

	return parsePlan(result.Choices[0].Message.Content)
}
