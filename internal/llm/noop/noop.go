package noop

import (
	"context"

	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/logger"
)

// Client is the fallback chat provider used when no real LLM is configured.
// It returns a canned HOLD decision that every persona prompt can parse, so
// the full run pipeline stays exercisable without API keys.
type Client struct{}

func New() *Client { return &Client{} }

func (c *Client) Provider() string { return "NOOP" }

func (c *Client) Complete(ctx context.Context, model, system, user string) (interfaces.ChatReply, error) {
	logger.Debug(ctx, "Noop chat called - returns canned HOLD", "model", model)
	return interfaces.ChatReply{
		Text:       `{"action":"HOLD","confidence":0,"size":0,"reasoning":"noop provider"}`,
		TokensUsed: 0,
	}, nil
}
