package orchestrator

import (
	"encoding/json"
	"strings"

	"llm-autotrader/internal/types"
)

type rawDecision struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Size       float64 `json:"size"`
	Leverage   int     `json:"leverage"`
	Rationale  string  `json:"rationale"`
	RiskPlan   string  `json:"risk_plan"`
}

// parseDecision locates a JSON object in the model output and normalizes it.
// Unparseable output degrades to HOLD rather than failing the run.
func parseDecision(text string, maxPositionSize float64) rawDecision {
	t := strings.TrimSpace(text)

	var d rawDecision
	ok := false
	if strings.HasPrefix(t, "{") {
		ok = json.Unmarshal([]byte(t), &d) == nil
	}
	if !ok {
		start := strings.Index(t, "{")
		end := strings.LastIndex(t, "}")
		if start >= 0 && end > start {
			ok = json.Unmarshal([]byte(t[start:end+1]), &d) == nil
		}
	}
	if !ok {
		return rawDecision{Action: string(types.TokenHold), Rationale: "unable_to_parse_model_output"}
	}

	d.Action = strings.ToUpper(strings.TrimSpace(d.Action))
	switch types.DecisionToken(d.Action) {
	case types.TokenBuy, types.TokenSell, types.TokenHold, types.TokenAbstain:
	default:
		d.Action = string(types.TokenHold)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		d.Confidence = 0
	}
	if d.Size < 0 {
		d.Size = 0
	}
	if maxPositionSize > 0 && d.Size > maxPositionSize {
		d.Size = maxPositionSize
	}
	if d.Leverage < 1 {
		d.Leverage = 1
	}
	return d
}
