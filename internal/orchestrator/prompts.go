package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"llm-autotrader/internal/types"
)

const decisionSchema = `{"action":"BUY|SELL|HOLD|ABSTAIN","confidence":0.0,"size":0.0,"leverage":1,"rationale":"...","risk_plan":"..."}`

const (
	systemMarketAnalyst = "You are a market analyst on a trading desk. You read price action, " +
		"order flow and technical indicators and write a concise structured report. " +
		"Plain text, no JSON."
	systemNewsAnalyst = "You are a news analyst on a trading desk. You read recent headlines " +
		"and summarize what is materially relevant to the symbol. Plain text, no JSON."
	systemFundamentalAnalyst = "You are a fundamentals analyst. Using the recent trading record and any " +
		"context provided, assess the company's standing from a fundamentals lens. Plain text, no JSON."
	systemSocialAnalyst = "You are a social sentiment analyst. Infer retail positioning and crowd mood " +
		"for the symbol from the provided context. Plain text, no JSON."
	systemBear = "You are the bear researcher in an investment debate. Argue against taking a long " +
		"position, grounded in the analyst reports. Address the bull's last statement directly."
	systemBull = "You are the bull researcher in an investment debate. Argue for the opportunity, " +
		"grounded in the analyst reports. Address the bear's last statement directly."
	systemResearchManager = "You are the research manager. Weigh the investment debate and produce a single " +
		"actionable investment plan: direction, conviction, key risks. Plain text, no JSON."
	systemTrader = "You are the trader. Turn the investment plan into a concrete trade proposal " +
		"with direction, size and entry logic. Plain text, no JSON."
	systemAggressive = "You are the aggressive risk debater. Push for the larger expression of the " +
		"trader's proposal and say why the risk is worth taking."
	systemConservative = "You are the conservative risk debater. Push back on the trader's proposal, " +
		"naming the scenarios where it loses money."
	systemNeutral = "You are the neutral risk debater. Arbitrate between the aggressive and " +
		"conservative views and state the balanced case."
	systemRiskJudge = "You are the risk judge. Given the trader's proposal and the risk debate, issue " +
		"the final decision. Respond ONLY with compact JSON matching the schema:\n" + decisionSchema
)

func section(b *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n%s\n\n", title, body)
}

func memoryBlock(notes []MemoryNote) string {
	if len(notes) == 0 {
		return ""
	}
	var b strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&b, "- %s %s size=%.3f", n.TradeDate, n.Token, n.Size)
		if n.Outcome != "" {
			fmt.Fprintf(&b, " outcome=%s", n.Outcome)
		}
		if n.Rationale != "" {
			fmt.Fprintf(&b, " because: %s", n.Rationale)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func marketAnalystPrompt(s State, md *types.MarketData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nTrade date: %s\n\n", s.Symbol, s.TradeDate)
	if md != nil {
		payload, _ := json.Marshal(md)
		section(&b, "Market snapshot (JSON)", string(payload))
	} else {
		section(&b, "Market snapshot", "No fresh snapshot available; state that explicitly.")
	}
	section(&b, "Question", s.Question)
	b.WriteString("Write your market report.")
	return b.String()
}

func newsAnalystPrompt(s State, digest types.NewsDigest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nTrade date: %s\n\n", s.Symbol, s.TradeDate)
	if len(digest.Articles) == 0 {
		section(&b, "Headlines", "No recent headlines were retrieved; state that explicitly.")
	} else {
		var h strings.Builder
		for _, a := range digest.Articles {
			fmt.Fprintf(&h, "- [%s] %s\n", a.Source, a.Title)
			if a.Content != "" {
				excerpt := a.Content
				if len(excerpt) > 400 {
					excerpt = excerpt[:400]
				}
				fmt.Fprintf(&h, "  %s\n", excerpt)
			}
		}
		section(&b, "Headlines", h.String())
		section(&b, "Lexicon tone", fmt.Sprintf(
			"label=%s score=%.2f uncertainty=%.2f (pos=%d neg=%d hedge=%d)",
			digest.Tone.Label, digest.Tone.Score, digest.Tone.Uncertainty,
			digest.Tone.PositiveHits, digest.Tone.NegativeHits, digest.Tone.UncertainHits))
	}
	b.WriteString("Write your news report.")
	return b.String()
}

func fundamentalAnalystPrompt(s State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nTrade date: %s\n\n", s.Symbol, s.TradeDate)
	section(&b, "Recent trading record", memoryBlock(s.Metadata.ManagerMemories))
	section(&b, "Question", s.Question)
	b.WriteString("Write your fundamentals report.")
	return b.String()
}

func socialAnalystPrompt(s State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nTrade date: %s\n\n", s.Symbol, s.TradeDate)
	section(&b, "Recent trading record", memoryBlock(s.Metadata.TraderMemories))
	section(&b, "Question", s.Question)
	b.WriteString("Write your social sentiment report.")
	return b.String()
}

func reportsBlock(s State) string {
	var b strings.Builder
	section(&b, "Market report", s.Reports.Market)
	section(&b, "News report", s.Reports.News)
	section(&b, "Fundamentals report", s.Reports.Fundamental)
	section(&b, "Social report", s.Reports.Social)
	return b.String()
}

func debaterPrompt(s State, opponentLast string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s  Round %d\n\n", s.Symbol, s.Metadata.InvestRound+1)
	b.WriteString(reportsBlock(s))
	section(&b, "Debate so far", s.Debate.Investment)
	section(&b, "Opponent's last statement", opponentLast)
	b.WriteString("Make your argument.")
	return b.String()
}

func researchManagerPrompt(s State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nTrade date: %s\n\n", s.Symbol, s.TradeDate)
	b.WriteString(reportsBlock(s))
	section(&b, "Investment debate", s.Debate.Investment)
	section(&b, "Your past calls", memoryBlock(s.Metadata.ManagerMemories))
	b.WriteString("Produce the investment plan.")
	return b.String()
}

func traderPrompt(s State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nTrade date: %s\n\n", s.Symbol, s.TradeDate)
	section(&b, "Investment plan", s.InvestmentPlan)
	section(&b, "Your past trades", memoryBlock(s.Metadata.TraderMemories))
	b.WriteString("Produce the trade proposal.")
	return b.String()
}

func riskDebaterPrompt(s State, last string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s  Round %d\n\n", s.Symbol, s.Metadata.RiskRound+1)
	section(&b, "Trade proposal", s.TraderPlan)
	section(&b, "Risk debate so far", s.Debate.Risk)
	section(&b, "Previous speaker", last)
	b.WriteString("Make your case.")
	return b.String()
}

func riskJudgePrompt(s State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nTrade date: %s\n\n", s.Symbol, s.TradeDate)
	section(&b, "Trade proposal", s.TraderPlan)
	section(&b, "Risk debate", s.Debate.Risk)
	b.WriteString("Issue the final decision as JSON only.")
	return b.String()
}

// promptHash fingerprints the judge prompt that produced the decision so a
// persisted row can be tied back to its exact inputs.
func promptHash(system, user string) string {
	h := sha256.Sum256([]byte(system + "\x00" + user))
	return hex.EncodeToString(h[:])
}
