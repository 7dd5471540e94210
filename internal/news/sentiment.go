package news

import (
	"strings"

	"llm-autotrader/internal/types"
)

// Tone scoring over digest headlines and excerpts. The word lists are drawn
// from the Loughran-McDonald financial sentiment categories, trimmed to terms
// that actually appear in Indian market wire copy.

var positiveWords = map[string]bool{
	"gain": true, "gains": true, "surge": true, "surged": true, "rally": true,
	"rallied": true, "jump": true, "jumped": true, "beat": true, "beats": true,
	"strong": true, "strength": true, "upgrade": true, "upgraded": true,
	"outperform": true, "profit": true, "profits": true, "growth": true,
	"record": true, "robust": true, "bullish": true, "buy": true,
	"positive": true, "improve": true, "improved": true, "improvement": true,
	"expand": true, "expansion": true, "higher": true, "rise": true,
	"rises": true, "rose": true, "soar": true, "soars": true, "winner": true,
	"momentum": true, "recovery": true, "rebound": true, "dividend": true,
}

var negativeWords = map[string]bool{
	"loss": true, "losses": true, "fall": true, "falls": true, "fell": true,
	"drop": true, "dropped": true, "plunge": true, "plunged": true,
	"slump": true, "slumped": true, "miss": true, "missed": true,
	"weak": true, "weakness": true, "downgrade": true, "downgraded": true,
	"underperform": true, "decline": true, "declined": true, "bearish": true,
	"sell": true, "negative": true, "concern": true, "concerns": true,
	"warning": true, "warn": true, "warns": true, "probe": true, "fraud": true,
	"penalty": true, "fine": true, "fined": true, "lawsuit": true,
	"default": true, "debt": true, "crash": true, "crisis": true,
	"lower": true, "cut": true, "cuts": true, "layoff": true, "layoffs": true,
}

var uncertainWords = map[string]bool{
	"may": true, "might": true, "could": true, "possibly": true,
	"uncertain": true, "uncertainty": true, "unclear": true, "volatile": true,
	"volatility": true, "risk": true, "risks": true, "speculation": true,
	"rumor": true, "rumour": true, "awaits": true, "awaiting": true,
	"pending": true, "depends": true, "cautious": true, "caution": true,
	"mixed": true, "doubt": true, "doubts": true,
}

// scoreDigest tags the digest with an aggregate tone in [-1, 1] plus the raw
// category counts. Articles with no lexicon hits still count toward the total
// so a single loud headline cannot dominate a quiet day.
func scoreDigest(d *types.NewsDigest) {
	var pos, neg, unc, total int
	for _, a := range d.Articles {
		p, n, u, t := scoreText(a.Title + " " + a.Content)
		pos += p
		neg += n
		unc += u
		total += t
	}

	tone := types.NewsTone{
		PositiveHits:  pos,
		NegativeHits:  neg,
		UncertainHits: unc,
		WordsScanned:  total,
	}
	if pos+neg > 0 {
		tone.Score = float64(pos-neg) / float64(pos+neg)
	}
	if total > 0 {
		tone.Uncertainty = float64(unc) / float64(total)
	}
	tone.Label = toneLabel(tone.Score, pos+neg)
	d.Tone = tone
}

func scoreText(text string) (pos, neg, unc, total int) {
	for _, tok := range tokenize(text) {
		total++
		switch {
		case positiveWords[tok]:
			pos++
		case negativeWords[tok]:
			neg++
		case uncertainWords[tok]:
			unc++
		}
	}
	return pos, neg, unc, total
}

// toneLabel maps the score to a coarse bucket. Fewer than three lexicon hits
// is too thin to call either way.
func toneLabel(score float64, hits int) string {
	switch {
	case hits < 3:
		return "neutral"
	case score >= 0.25:
		return "positive"
	case score <= -0.25:
		return "negative"
	default:
		return "mixed"
	}
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !(r >= 'a' && r <= 'z')
		})
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}
