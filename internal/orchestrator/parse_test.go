package orchestrator

import (
	"testing"

	"llm-autotrader/internal/types"
)

func TestParseDecisionDirectJSON(t *testing.T) {
	d := parseDecision(`{"action":"BUY","confidence":0.72,"size":0.25,"leverage":2,"rationale":"momentum"}`, 1)
	if d.Action != string(types.TokenBuy) {
		t.Errorf("Expected BUY, got %s", d.Action)
	}
	if d.Confidence != 0.72 || d.Size != 0.25 || d.Leverage != 2 {
		t.Errorf("Unexpected fields: %+v", d)
	}
}

func TestParseDecisionEmbeddedJSON(t *testing.T) {
	text := "Here is my verdict:\n```json\n{\"action\":\"sell\",\"confidence\":0.6,\"size\":0.1}\n```\nGood luck."
	d := parseDecision(text, 1)
	if d.Action != string(types.TokenSell) {
		t.Errorf("Expected SELL from embedded JSON, got %s", d.Action)
	}
}

func TestParseDecisionUnparseable(t *testing.T) {
	d := parseDecision("I think we should probably buy some.", 1)
	if d.Action != string(types.TokenHold) {
		t.Errorf("Unparseable output should degrade to HOLD, got %s", d.Action)
	}
	if d.Rationale != "unable_to_parse_model_output" {
		t.Errorf("Unexpected rationale %q", d.Rationale)
	}
}

func TestParseDecisionUnknownToken(t *testing.T) {
	d := parseDecision(`{"action":"YOLO","confidence":0.9,"size":0.5}`, 1)
	if d.Action != string(types.TokenHold) {
		t.Errorf("Unknown token should degrade to HOLD, got %s", d.Action)
	}
}

func TestParseDecisionClamping(t *testing.T) {
	d := parseDecision(`{"action":"BUY","confidence":1.7,"size":-3,"leverage":0}`, 1)
	if d.Confidence != 0 {
		t.Errorf("Out-of-range confidence should reset to 0, got %f", d.Confidence)
	}
	if d.Size != 0 {
		t.Errorf("Negative size should clamp to 0, got %f", d.Size)
	}
	if d.Leverage != 1 {
		t.Errorf("Leverage floor is 1, got %d", d.Leverage)
	}

	d = parseDecision(`{"action":"BUY","confidence":0.5,"size":5}`, 0.5)
	if d.Size != 0.5 {
		t.Errorf("Size should cap at the position limit, got %f", d.Size)
	}
}
