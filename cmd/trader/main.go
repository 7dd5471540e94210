package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llm-autotrader/internal/audit"
	brokersim "llm-autotrader/internal/broker/sim"
	"llm-autotrader/internal/bus"
	"llm-autotrader/internal/eod"
	"llm-autotrader/internal/logger"
	"llm-autotrader/internal/marketdata"
	"llm-autotrader/internal/metrics"
	"llm-autotrader/internal/news"
	"llm-autotrader/internal/orchestrator"
	"llm-autotrader/internal/persist"
	"llm-autotrader/internal/platform"
	"llm-autotrader/internal/runtime"
	"llm-autotrader/internal/scheduler"
	"llm-autotrader/internal/trace"
	"llm-autotrader/internal/types"
)

func main() {
	if err := initializeSystem(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx)
	if err != nil {
		os.Exit(1)
	}

	rec := metrics.New()
	serveMetrics(ctx)

	var auditor *audit.Log
	if cfg.Broker.AuditEnabled {
		auditor = audit.New(os.Getenv("TRADER_AUDIT_DIR"))
		compressOldAudit(ctx, auditor, cfg)
	}

	snapshots := buildCache(ctx, cfg)
	defer snapshots.Close()

	exchangeClient, _, err := buildExchange(ctx, cfg, rec)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to build exchange client", err)
		os.Exit(1)
	}

	journal, err := persist.Open(cfg.Storage.SQLitePath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open decision journal", err)
		os.Exit(1)
	}
	defer journal.Close()

	eventBus := bus.New(time.Duration(cfg.Bus.RetentionDays) * 24 * time.Hour)
	defer eventBus.Close()
	marketFeed := bus.NewMarketBroadcaster()

	simBroker := brokersim.New(cfg.Broker.StartingCash, cfg.Broker.Seed,
		cachedPriceSource(snapshots, exchangeClient))

	factories := buildBrokerFactories(cfg, rec, auditor, simBroker, exchangeClient)
	modeCtl, err := runtime.New(ctx, journal, types.RuntimeMode(cfg.Mode), factories)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize runtime mode", err)
		os.Exit(1)
	}

	chat := buildChat(ctx, cfg, rec)

	var newsSvc *news.Service
	if cfg.News.Enabled {
		newsSvc = news.NewService(news.ServiceConfig{
			MaxArticles:    cfg.News.MaxArticles,
			CacheDuration:  1 * time.Hour,
			ScraperTimeout: 30 * time.Second,
			Enabled:        true,
		})
	}

	orch := orchestrator.New(orchestrator.Params{
		Chat:            chat,
		Bus:             eventBus,
		Store:           journal,
		Cache:           snapshots,
		News:            newsSvc,
		Metrics:         rec,
		Auditor:         auditor,
		ResolveBroker:   modeCtl.Broker,
		InvestRounds:    cfg.Decision.InvestDebateRounds,
		RiskRounds:      cfg.Decision.RiskDebateRounds,
		MaxPositionSize: cfg.Decision.MaxPositionSize,
	})

	decisions := scheduler.New(scheduler.Params{
		Orchestrator:    orch,
		Metrics:         rec,
		Symbols:         cfg.Symbols,
		Interval:        time.Duration(cfg.Decision.IntervalMinutes) * time.Minute,
		RunTimeout:      time.Duration(cfg.Decision.PerRunTimeoutSeconds) * time.Second,
		DefaultModel:    cfg.LLM.Model,
		AllowedModels:   cfg.Decision.AllowedModelIDs,
		DefaultAnalysts: cfg.AnalystSet(),
		MaxConcurrent:   cfg.Decision.MaxConcurrentRuns,
	})

	marketSched := marketdata.New(marketdata.Params{
		Client:      exchangeClient,
		Store:       snapshots,
		Broadcaster: marketFeed,
		Metrics:     rec,
		Symbols:     cfg.Symbols,
		Interval:    time.Duration(cfg.MarketData.TickerRefreshSeconds) * time.Second,
		StepTimeout: time.Duration(cfg.MarketData.StepTimeoutSeconds) * time.Second,
		Depth:       cfg.MarketData.OrderBookDepth,
		Hook:        simBroker.MatchOpenOrders,
	})

	core := platform.New(decisions, eventBus, marketFeed, snapshots, journal, modeCtl)

	summary := eod.New(journal, "")

	go marketSched.Run(ctx)
	go decisions.Run(ctx)
	go statusLoop(ctx, core, cfg.Symbols)
	go eodLoop(ctx, summary)

	logger.Info(ctx, "Autotrader started",
		"mode", string(modeCtl.Get()),
		"symbols", cfg.Symbols,
		"llm_provider", cfg.LLM.Provider,
	)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	logger.Info(ctx, "Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := trace.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Tracer shutdown failed", "error", err)
	}
}

// eodLoop writes the daily decision rollup once the market close cutoff has
// passed. The CSV on disk is the already-ran marker.
func eodLoop(ctx context.Context, summary *eod.Summarizer) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !summary.ShouldRunNow() {
				continue
			}
			path, err := summary.SummarizeToday(ctx)
			if err != nil {
				logger.ErrorWithErr(ctx, "End-of-day summary failed", err)
				continue
			}
			if path != "" {
				logger.Info(ctx, "End-of-day summary written", "path", path)
			}
		}
	}
}

// statusLoop logs a quote summary each minute, flagging stale reads.
func statusLoop(ctx context.Context, core *platform.Platform, symbols []string) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			quotes := core.GetPrices(ctx, symbols)
			for symbol, q := range quotes {
				logger.Debug(ctx, "Quote",
					"symbol", symbol,
					"price", q.Price,
					"change_pct", q.ChangePct24,
					"stale", q.Stale,
				)
			}
		}
	}
}
