package llmobs

import (
	"context"
	"time"

	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/logger"
	"llm-autotrader/internal/metrics"
	"llm-autotrader/internal/trace"
)

// observableChat wraps a Chat client with logging, tracing and call metrics.
type observableChat struct {
	chat    interfaces.Chat
	metrics *metrics.Recorder
}

var _ interfaces.Chat = (*observableChat)(nil)

func Wrap(chat interfaces.Chat, rec *metrics.Recorder) interfaces.Chat {
	return &observableChat{chat: chat, metrics: rec}
}

func (oc *observableChat) Provider() string { return oc.chat.Provider() }

func (oc *observableChat) Complete(ctx context.Context, model, system, user string) (interfaces.ChatReply, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Complete")
	defer span.End()

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting completion",
		"provider", oc.chat.Provider(),
		"model", model,
		"prompt_bytes", len(system)+len(user),
	)

	start := time.Now()
	reply, err := oc.chat.Complete(ctx, model, system, user)
	elapsed := time.Since(start)

	if err != nil {
		if oc.metrics != nil {
			oc.metrics.RecordLLMCall(oc.chat.Provider(), elapsed.Seconds(), 0)
		}
		logger.ErrorWithErrSkip(ctx, 1, "Completion failed", err,
			"provider", oc.chat.Provider(),
			"model", model,
		)
		return interfaces.ChatReply{}, err
	}

	if oc.metrics != nil {
		oc.metrics.RecordLLMCall(oc.chat.Provider(), elapsed.Seconds(), reply.TokensUsed)
	}
	logger.InfoSkip(ctx, 1, "Completion received",
		"provider", oc.chat.Provider(),
		"model", model,
		"tokens", reply.TokensUsed,
		"elapsed", elapsed.String(),
	)
	return reply, nil
}
