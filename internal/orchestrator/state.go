package orchestrator

import (
	"time"

	"llm-autotrader/internal/types"
)

// State is threaded by value through every node. Nodes return a new copy;
// nothing mutates shared structure, which keeps replays deterministic.
type State struct {
	RunID     string
	Symbol    string
	TradeDate string
	ModelID   string
	Question  string

	EnabledAnalysts []string

	Reports Reports
	Debate  Debate

	InvestmentPlan string
	TraderPlan     string

	FinalDecision *types.Decision
	RawFinal      string
	PromptHash    string

	ConversationLog []LogEntry
	Metadata        Metadata

	Errors     []string
	TokensUsed int
}

// Reports holds the analyst outputs. An empty string means the analyst was
// gated off or produced nothing; downstream prompts omit empty reports.
type Reports struct {
	Fundamental string
	Market      string
	News        string
	Social      string
}

// Debate accumulates the two bounded loops. Transcript fields grow per round;
// the per-persona fields hold each voice's latest statement.
type Debate struct {
	Investment string
	Risk       string

	Bear         string
	Bull         string
	Aggressive   string
	Conservative string
	Neutral      string
}

type Metadata struct {
	ManagerMemories []MemoryNote
	TraderMemories  []MemoryNote
	InvestRound     int
	RiskRound       int
}

// MemoryNote is one past decision summarized for prompt context, labeled with
// its outcome when the labeling job has caught up.
type MemoryNote struct {
	TradeDate string
	Token     string
	Size      float64
	Rationale string
	Outcome   string
}

type LogEntry struct {
	Persona string    `json:"persona"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

func (s State) appendLog(persona, text string) State {
	s.ConversationLog = append(s.ConversationLog, LogEntry{
		Persona: persona,
		Text:    text,
		At:      time.Now(),
	})
	return s
}

func (s State) appendError(stage string, err error) State {
	s.Errors = append(s.Errors, stage+": "+err.Error())
	return s
}

func (s State) analystEnabled(id string) bool {
	for _, a := range s.EnabledAnalysts {
		if a == id {
			return true
		}
	}
	return false
}
