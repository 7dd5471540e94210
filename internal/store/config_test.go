package store

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
symbols:
  - RELIANCE
  - TCS
`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Mode != "simulator" {
		t.Errorf("Expected default mode simulator, got %s", cfg.Mode)
	}
	if cfg.MarketData.TickerRefreshSeconds != 5 {
		t.Errorf("Expected 5s ticker refresh, got %d", cfg.MarketData.TickerRefreshSeconds)
	}
	if cfg.Decision.IntervalMinutes != 5 {
		t.Errorf("Expected 5m decision interval, got %d", cfg.Decision.IntervalMinutes)
	}
	if cfg.Decision.MaxConcurrentRuns != 3 {
		t.Errorf("Expected cap of 3 concurrent runs, got %d", cfg.Decision.MaxConcurrentRuns)
	}
	if cfg.Decision.PerRunTimeoutSeconds != 600 {
		t.Errorf("Expected 600s run timeout, got %d", cfg.Decision.PerRunTimeoutSeconds)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Expected memory cache backend, got %s", cfg.Cache.Backend)
	}
	if cfg.LLM.Provider != "NOOP" {
		t.Errorf("Expected NOOP provider default, got %s", cfg.LLM.Provider)
	}
	if cfg.Bus.RetentionDays != 30 {
		t.Errorf("Expected 30 day bus retention, got %d", cfg.Bus.RetentionDays)
	}

	// Empty allowlist falls back to the configured model.
	if !cfg.ModelAllowed("gpt-4o-mini") {
		t.Error("Expected the default model in the allowlist")
	}
	if cfg.ModelAllowed("other-model") {
		t.Error("Unlisted model must not be allowed")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no symbols": `
mode: simulator
`,
		"bad mode": `
mode: turbo
symbols: [RELIANCE]
`,
		"bad analyst": `
symbols: [RELIANCE]
decision:
  enabled_analysts: [astrologer]
`,
		"bad cache backend": `
symbols: [RELIANCE]
cache:
  backend: memcached
`,
	}
	for name, body := range cases {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestAnalystSetDefaults(t *testing.T) {
	var cfg Config
	set := cfg.AnalystSet()
	if len(set) != 4 {
		t.Fatalf("Expected all four personas, got %v", set)
	}

	cfg.Decision.EnabledAnalysts = []string{"market"}
	set = cfg.AnalystSet()
	if len(set) != 1 || set[0] != "market" {
		t.Errorf("Expected configured subset, got %v", set)
	}
}
