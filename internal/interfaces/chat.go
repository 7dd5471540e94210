package interfaces

import "context"

// ChatReply is one model completion plus its token accounting.
type ChatReply struct {
	Text       string
	TokensUsed int
}

// Chat is the LLM boundary. Personas build their own prompts; the client only
// moves text.
type Chat interface {
	Provider() string
	Complete(ctx context.Context, model, system, user string) (ChatReply, error)
}
