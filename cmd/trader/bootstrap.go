package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llm-autotrader/internal/audit"
	brokerexchange "llm-autotrader/internal/broker/exchange"
	"llm-autotrader/internal/broker/brokerobs"
	brokersim "llm-autotrader/internal/broker/sim"
	"llm-autotrader/internal/cache"
	"llm-autotrader/internal/exchange"
	"llm-autotrader/internal/exchange/kite"
	exchsim "llm-autotrader/internal/exchange/sim"
	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/llm/claude"
	"llm-autotrader/internal/llm/llmobs"
	"llm-autotrader/internal/llm/noop"
	"llm-autotrader/internal/llm/openai"
	"llm-autotrader/internal/logger"
	"llm-autotrader/internal/marketdata"
	"llm-autotrader/internal/metrics"
	"llm-autotrader/internal/runtime"
	"llm-autotrader/internal/store"
	"llm-autotrader/internal/trace"
	"llm-autotrader/internal/types"
)

// initializeSystem initializes environment, logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("TRADER_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// compressOldAudit gzips audit files past the retention window.
func compressOldAudit(ctx context.Context, auditor *audit.Log, cfg *store.Config) {
	if auditor == nil {
		return
	}
	days := cfg.Broker.AuditRetainDays
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			days = n
		}
	}
	if days <= 0 {
		return
	}
	if err := auditor.CompressOlder(days); err != nil {
		logger.Warn(ctx, "Failed to compress old audit logs", "error", err)
	}
}

func buildCache(ctx context.Context, cfg *store.Config) cache.Store {
	if cfg.Cache.Backend == "redis" {
		logger.Info(ctx, "Using redis snapshot cache", "addr", cfg.Cache.RedisAddr)
		return cache.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
	}
	logger.Info(ctx, "Using in-memory snapshot cache")
	return cache.NewMemoryStore()
}

// buildExchange returns the market-data client plus the synthetic client when
// one backs it (used to seed deterministic prices in simulator mode).
func buildExchange(ctx context.Context, cfg *store.Config, rec *metrics.Recorder) (interfaces.ExchangeClient, *exchsim.Client, error) {
	if cfg.Exchange.Kind == "kite" {
		client, err := kite.New(kite.Params{
			APIKey:      os.Getenv("KITE_API_KEY"),
			AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
			Exchange:    cfg.Exchange.Exchange,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info(ctx, "Using kite exchange client", "exchange", cfg.Exchange.Exchange)
		return exchange.WithRetry(client, rec), nil, nil
	}

	synthetic := exchsim.New(cfg.Broker.Seed)
	logger.Info(ctx, "Using synthetic exchange client", "seed", cfg.Broker.Seed)
	return exchange.WithRetry(synthetic, rec), synthetic, nil
}

// cachedPriceSource serves the simulated broker fills from the snapshot cache,
// falling back to the exchange client when the cache is cold.
func cachedPriceSource(store cache.Store, client interfaces.ExchangeClient) brokersim.PriceSource {
	return func(ctx context.Context, symbol string) (float64, error) {
		key := cache.Key{Namespace: marketdata.Namespace, Symbol: symbol, Kind: cache.KindTicker}
		var ticker types.TickerSnapshot
		if _, err := store.GetLenient(ctx, key, &ticker); err == nil && ticker.LastPrice > 0 {
			return ticker.LastPrice, nil
		}
		snap, err := client.FetchTicker(ctx, symbol)
		if err != nil {
			return 0, err
		}
		return snap.LastPrice, nil
	}
}

// buildBrokerFactories binds each runtime mode to its broker variant.
// simulator fills in memory; paper routes through an exchange broker over the
// synthetic feed; live routes through the real exchange client.
func buildBrokerFactories(cfg *store.Config, rec *metrics.Recorder, auditor *audit.Log,
	simBroker *brokersim.Broker, marketClient interfaces.ExchangeClient) map[types.RuntimeMode]runtime.BrokerFactory {

	callTimeout := time.Duration(cfg.Broker.CallTimeoutSecs) * time.Second

	return map[types.RuntimeMode]runtime.BrokerFactory{
		types.ModeSimulator: func() (interfaces.Broker, error) {
			return brokerobs.Wrap(simBroker), nil
		},
		types.ModePaper: func() (interfaces.Broker, error) {
			return brokerobs.Wrap(brokerexchange.New(brokerexchange.Params{
				Name:        "paper",
				Client:      marketClient,
				Metrics:     rec,
				Auditor:     auditor,
				CallTimeout: callTimeout,
			})), nil
		},
		types.ModeLive: func() (interfaces.Broker, error) {
			client, err := kite.New(kite.Params{
				APIKey:      os.Getenv("KITE_API_KEY"),
				AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
				Exchange:    cfg.Exchange.Exchange,
			})
			if err != nil {
				return nil, err
			}
			return brokerobs.Wrap(brokerexchange.New(brokerexchange.Params{
				Name:        "live",
				Client:      exchange.WithRetry(client, rec),
				Metrics:     rec,
				Auditor:     auditor,
				CallTimeout: callTimeout,
			})), nil
		},
	}
}

func buildChat(ctx context.Context, cfg *store.Config, rec *metrics.Recorder) interfaces.Chat {
	timeout := time.Duration(cfg.LLM.TimeoutSecs) * time.Second

	var chat interfaces.Chat
	switch cfg.LLM.Provider {
	case "OPENAI":
		chat = openai.New(cfg.LLM.MaxTokens, cfg.LLM.Temperature, timeout)
	case "CLAUDE":
		chat = claude.New(cfg.LLM.MaxTokens, cfg.LLM.Temperature, timeout)
	default:
		chat = noop.New()
		logger.Warn(ctx, "No LLM provider configured - using noop chat (always HOLD)")
	}
	return llmobs.Wrap(chat, rec)
}

// serveMetrics exposes the prometheus registry when METRICS_ADDR is set.
func serveMetrics(ctx context.Context) {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info(ctx, "Metrics listener started", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.ErrorWithErr(ctx, "Metrics listener stopped", err)
		}
	}()
}
