package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"llm-autotrader/internal/errs"
	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/trace"
)

const endpoint = "https://api.openai.com/v1/chat/completions"

type Client struct {
	http        *http.Client
	maxTokens   int
	temperature float32
}

func New(maxTokens int, temperature float32, timeout time.Duration) *Client {
	return &Client{
		http:        &http.Client{Timeout: timeout},
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (c *Client) Provider() string { return "OPENAI" }

func (c *Client) Complete(ctx context.Context, model, system, user string) (interfaces.ChatReply, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return interfaces.ChatReply{}, errs.New(errs.Auth, "openai_key_missing", "OPENAI_API_KEY missing")
	}

	body := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	}
	bb, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(bb))
	if err != nil {
		return interfaces.ChatReply{}, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return interfaces.ChatReply{}, errs.Wrap(errs.Transient, "openai request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return interfaces.ChatReply{}, statusError(resp.StatusCode)
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return interfaces.ChatReply{}, errs.Wrap(errs.Transient, "openai response decode failed", err)
	}
	if len(r.Choices) == 0 {
		return interfaces.ChatReply{}, errs.New(errs.Transient, "openai_no_choices", "no choices in response")
	}

	return interfaces.ChatReply{
		Text:       strings.TrimSpace(r.Choices[0].Message.Content),
		TokensUsed: r.Usage.TotalTokens,
	}, nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return errs.New(errs.RateLimited, "openai_429", "openai rate limited")
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.New(errs.Auth, "openai_auth", fmt.Sprintf("openai http %d", code))
	case code >= 500:
		return errs.New(errs.Transient, "openai_5xx", fmt.Sprintf("openai http %d", code))
	default:
		return errs.New(errs.InvalidInput, "openai_http", fmt.Sprintf("openai http %d", code))
	}
}
