package news

import (
	"testing"

	"llm-autotrader/internal/types"
)

func digestOf(titles ...string) types.NewsDigest {
	d := types.NewsDigest{Symbol: "RELIANCE"}
	for _, title := range titles {
		d.Articles = append(d.Articles, types.NewsArticle{Title: title, Source: "test"})
	}
	return d
}

func TestScoreDigestPositive(t *testing.T) {
	d := digestOf(
		"Reliance shares surge on strong profit growth",
		"Brokerages upgrade Reliance after record quarter",
		"Stock rallies as margins improve",
	)
	scoreDigest(&d)

	if d.Tone.Label != "positive" {
		t.Errorf("Expected positive label, got %s (score %f)", d.Tone.Label, d.Tone.Score)
	}
	if d.Tone.Score <= 0 {
		t.Errorf("Expected positive score, got %f", d.Tone.Score)
	}
	if d.Tone.PositiveHits == 0 {
		t.Error("Expected positive lexicon hits")
	}
}

func TestScoreDigestNegative(t *testing.T) {
	d := digestOf(
		"Shares plunge after earnings miss and downgrade",
		"Regulator opens probe into accounting fraud concerns",
		"Stock falls as losses mount",
	)
	scoreDigest(&d)

	if d.Tone.Label != "negative" {
		t.Errorf("Expected negative label, got %s (score %f)", d.Tone.Label, d.Tone.Score)
	}
	if d.Tone.Score >= 0 {
		t.Errorf("Expected negative score, got %f", d.Tone.Score)
	}
}

func TestScoreDigestThinSignalIsNeutral(t *testing.T) {
	d := digestOf("Company schedules board meeting for next Tuesday")
	scoreDigest(&d)

	if d.Tone.Label != "neutral" {
		t.Errorf("Expected neutral for headline without lexicon hits, got %s", d.Tone.Label)
	}
	if d.Tone.Score != 0 {
		t.Errorf("Expected zero score, got %f", d.Tone.Score)
	}
}

func TestScoreDigestUncertainty(t *testing.T) {
	d := digestOf("Outlook uncertain as volatile markets await pending ruling, analysts cautious")
	scoreDigest(&d)

	if d.Tone.UncertainHits < 3 {
		t.Errorf("Expected hedge word hits, got %d", d.Tone.UncertainHits)
	}
	if d.Tone.Uncertainty <= 0 {
		t.Errorf("Expected nonzero uncertainty ratio, got %f", d.Tone.Uncertainty)
	}
}

func TestScoreDigestEmpty(t *testing.T) {
	d := types.NewsDigest{Symbol: "RELIANCE"}
	scoreDigest(&d)
	if d.Tone.WordsScanned != 0 || d.Tone.Score != 0 {
		t.Errorf("Empty digest should score zero, got %+v", d.Tone)
	}
}

func TestTokenizeStripsPunctuation(t *testing.T) {
	toks := tokenize(`"Surge!" (profits), growth; A I`)
	want := []string{"surge", "profits", "growth"}
	if len(toks) != len(want) {
		t.Fatalf("Expected %d tokens, got %v", len(want), toks)
	}
	for i, w := range want {
		if toks[i] != w {
			t.Errorf("Token %d = %q, want %q", i, toks[i], w)
		}
	}
}
