package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes the platform's Prometheus instruments. Exposition is left
// to the embedding process; instruments register on the default registry.
type Recorder struct {
	ticksTotal     *prometheus.CounterVec
	cacheOps       *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	brokerLatency  *prometheus.HistogramVec
	llmLatency     *prometheus.HistogramVec
	llmTokens      *prometheus.CounterVec
	runsTotal      *prometheus.CounterVec
	runsInFlight   prometheus.Gauge
	eventsTotal    *prometheus.CounterVec
	exchangeErrors *prometheus.CounterVec
}

func New() *Recorder {
	return &Recorder{
		ticksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrader_scheduler_ticks_total",
				Help: "Scheduler ticks by scheduler name and result",
			},
			[]string{"scheduler", "result"},
		),
		cacheOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrader_cache_ops_total",
				Help: "Cache operations by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "autotrader_last_price",
				Help: "Last cached price for a symbol",
			},
			[]string{"symbol"},
		),
		brokerLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autotrader_broker_call_duration_seconds",
				Help:    "Broker call latency by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"broker", "operation"},
		),
		llmLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autotrader_llm_call_duration_seconds",
				Help:    "LLM call latency by provider",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),
		llmTokens: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrader_llm_tokens_total",
				Help: "Tokens consumed by provider",
			},
			[]string{"provider"},
		),
		runsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrader_decision_runs_total",
				Help: "Decision runs by terminal status",
			},
			[]string{"status"},
		),
		runsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "autotrader_decision_runs_in_flight",
				Help: "Currently running decision runs",
			},
		),
		eventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrader_bus_events_total",
				Help: "Events published to the run event bus",
			},
			[]string{"stage"},
		),
		exchangeErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrader_exchange_errors_total",
				Help: "Exchange client errors by kind",
			},
			[]string{"kind"},
		),
	}
}

func (r *Recorder) RecordTick(scheduler, result string) {
	r.ticksTotal.WithLabelValues(scheduler, result).Inc()
}

func (r *Recorder) RecordCacheOp(kind, outcome string) {
	r.cacheOps.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordBrokerLatency(broker, op string, seconds float64) {
	r.brokerLatency.WithLabelValues(broker, op).Observe(seconds)
}

func (r *Recorder) RecordLLMCall(provider string, seconds float64, tokens int) {
	r.llmLatency.WithLabelValues(provider).Observe(seconds)
	if tokens > 0 {
		r.llmTokens.WithLabelValues(provider).Add(float64(tokens))
	}
}

func (r *Recorder) RecordRunOutcome(status string) {
	r.runsTotal.WithLabelValues(status).Inc()
}

func (r *Recorder) RunStarted()  { r.runsInFlight.Inc() }
func (r *Recorder) RunFinished() { r.runsInFlight.Dec() }

func (r *Recorder) RecordBusEvent(stage string) {
	r.eventsTotal.WithLabelValues(stage).Inc()
}

func (r *Recorder) RecordExchangeError(kind string) {
	r.exchangeErrors.WithLabelValues(kind).Inc()
}
