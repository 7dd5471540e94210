package store

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode    string   `yaml:"mode" default:"simulator" validate:"oneof=simulator paper live"`
	Symbols []string `yaml:"symbols" validate:"min=1,dive,required"`

	MarketData struct {
		TickerRefreshSeconds int `yaml:"ticker_refresh_seconds" default:"5" validate:"min=1"`
		OrderBookDepth       int `yaml:"order_book_depth" default:"40" validate:"min=1,max=100"`
		StepTimeoutSeconds   int `yaml:"step_timeout_seconds" default:"3" validate:"min=1"`
	} `yaml:"market_data"`

	Decision struct {
		IntervalMinutes      int      `yaml:"interval_minutes" default:"5" validate:"min=1"`
		InvestDebateRounds   int      `yaml:"invest_debate_rounds" default:"3" validate:"min=1,max=10"`
		RiskDebateRounds     int      `yaml:"risk_debate_rounds" default:"3" validate:"min=1,max=10"`
		PerRunTimeoutSeconds int      `yaml:"per_run_timeout_seconds" default:"600" validate:"min=30"`
		MaxConcurrentRuns    int      `yaml:"max_concurrent_runs" default:"3" validate:"min=1"`
		AllowedModelIDs      []string `yaml:"allowed_model_ids" validate:"min=1"`
		EnabledAnalysts      []string `yaml:"enabled_analysts" validate:"dive,oneof=fundamental market news social"`
		MaxPositionSize      float64  `yaml:"max_position_size" default:"1"`
	} `yaml:"decision"`

	Cache struct {
		Backend   string `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		RedisAddr string `yaml:"redis_addr" default:"localhost:6379"`
		RedisDB   int    `yaml:"redis_db"`
	} `yaml:"cache"`

	Storage struct {
		SQLitePath string `yaml:"sqlite_path" default:"data/autotrader.db"`
	} `yaml:"storage"`

	Broker struct {
		StartingCash    float64 `yaml:"starting_cash" default:"100000"`
		Seed            int64   `yaml:"seed" default:"1"`
		CallTimeoutSecs int     `yaml:"call_timeout_seconds" default:"15" validate:"min=1"`
		AuditEnabled    bool    `yaml:"audit_enabled" default:"true"`
		AuditRetainDays int     `yaml:"audit_retain_days" default:"30"`
	} `yaml:"broker"`

	Exchange struct {
		Kind     string `yaml:"kind" default:"synthetic" validate:"oneof=synthetic kite"`
		Exchange string `yaml:"exchange" default:"NSE"`
	} `yaml:"exchange"`

	LLM struct {
		Provider    string  `yaml:"provider" default:"NOOP" validate:"oneof=OPENAI CLAUDE NOOP"`
		Model       string  `yaml:"model" default:"gpt-4o-mini"`
		MaxTokens   int     `yaml:"max_tokens" default:"1024"`
		Temperature float32 `yaml:"temperature" default:"0.2"`
		TimeoutSecs int     `yaml:"timeout_seconds" default:"120" validate:"min=1"`
	} `yaml:"llm"`

	News struct {
		Enabled     bool `yaml:"enabled" default:"true"`
		MaxArticles int  `yaml:"max_articles" default:"15" validate:"min=1"`
	} `yaml:"news"`

	Bus struct {
		RetentionDays int `yaml:"retention_days" default:"30" validate:"min=1"`
	} `yaml:"bus"`
}

var validate = validator.New()

// AnalystSet returns the configured default analyst set; all four personas
// when the config leaves it empty.
func (c *Config) AnalystSet() []string {
	if len(c.Decision.EnabledAnalysts) > 0 {
		return c.Decision.EnabledAnalysts
	}
	return []string{"fundamental", "market", "news", "social"}
}

func (c *Config) ModelAllowed(modelID string) bool {
	for _, id := range c.Decision.AllowedModelIDs {
		if id == modelID {
			return true
		}
	}
	return false
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if len(c.Decision.AllowedModelIDs) == 0 {
		c.Decision.AllowedModelIDs = []string{c.LLM.Model}
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
