package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"llm-autotrader/internal/errs"
	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/trace"
)

// Client talks to the Anthropic messages API. The endpoint can be redirected
// through a proxy via CLAUDE_API_ENDPOINT.
type Client struct {
	http        *http.Client
	endpoint    string
	maxTokens   int
	temperature float32
}

func New(maxTokens int, temperature float32, timeout time.Duration) *Client {
	endpoint := "https://api.anthropic.com/v1/messages"
	if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		endpoint:    endpoint,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (c *Client) Provider() string { return "CLAUDE" }

func (c *Client) Complete(ctx context.Context, model, system, user string) (interfaces.ChatReply, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	apiKey := os.Getenv("CLAUDE_API_KEY")
	if apiKey == "" {
		return interfaces.ChatReply{}, errs.New(errs.Auth, "claude_key_missing", "CLAUDE_API_KEY missing")
	}

	body := map[string]any{
		"model":  model,
		"system": system,
		"messages": []map[string]string{
			{"role": "user", "content": user},
		},
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
	}
	bb, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(bb))
	if err != nil {
		return interfaces.ChatReply{}, err
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return interfaces.ChatReply{}, errs.Wrap(errs.Transient, "claude request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slice, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return interfaces.ChatReply{}, statusError(resp.StatusCode, string(slice))
	}

	var r struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return interfaces.ChatReply{}, errs.Wrap(errs.Transient, "claude response decode failed", err)
	}

	var sb strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return interfaces.ChatReply{}, errs.New(errs.Transient, "claude_empty", "empty completion")
	}

	return interfaces.ChatReply{
		Text:       text,
		TokensUsed: r.Usage.InputTokens + r.Usage.OutputTokens,
	}, nil
}

func statusError(code int, body string) error {
	switch {
	case code == http.StatusTooManyRequests:
		return errs.New(errs.RateLimited, "claude_429", "claude rate limited")
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.New(errs.Auth, "claude_auth", fmt.Sprintf("claude http %d", code))
	case code >= 500:
		return errs.New(errs.Transient, "claude_5xx", fmt.Sprintf("claude http %d", code))
	default:
		return errs.New(errs.InvalidInput, "claude_http", fmt.Sprintf("claude http %d: %s", code, body))
	}
}
