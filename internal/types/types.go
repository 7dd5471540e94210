package types

import (
	"strings"
	"time"
)

// NormalizeSymbol uppercases and trims a raw symbol string. Symbols compare
// by bytes after normalization.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

type Timeframe string

const (
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
)

// CandleCount is the number of candles held per timeframe.
func (tf Timeframe) CandleCount() int {
	if tf == Timeframe1h {
		return 100
	}
	return 50
}

type TickerSnapshot struct {
	Symbol      string    `json:"symbol"`
	LastPrice   float64   `json:"last_price"`
	Bid         float64   `json:"bid"`
	Ask         float64   `json:"ask"`
	Volume24h   float64   `json:"volume_24h"`
	High24h     float64   `json:"high_24h"`
	Low24h      float64   `json:"low_24h"`
	Change24h   float64   `json:"change_24h"`
	ChangePct24 float64   `json:"change_pct_24h"`
	ObservedAt  time.Time `json:"observed_at"`
}

type BookLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBookSnapshot holds up to 20 levels per side. Bids are strictly
// descending by price, asks strictly ascending.
type OrderBookSnapshot struct {
	Symbol     string      `json:"symbol"`
	Bids       []BookLevel `json:"bids"`
	Asks       []BookLevel `json:"asks"`
	ObservedAt time.Time   `json:"observed_at"`
}

type FundingRate struct {
	Symbol     string    `json:"symbol"`
	Rate       float64   `json:"rate"`
	NextAt     time.Time `json:"next_at"`
	ObservedAt time.Time `json:"observed_at"`
}

type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

type CandleSeries struct {
	Symbol     string    `json:"symbol"`
	Timeframe  Timeframe `json:"timeframe"`
	Candles    []Candle  `json:"candles"`
	ObservedAt time.Time `json:"observed_at"`
}

type MACD struct {
	Line   float64 `json:"line"`
	Signal float64 `json:"signal"`
	Hist   float64 `json:"hist"`
}

// Indicator fields are pointers: nil means the series did not have enough
// samples for the computation, which is distinct from a zero value.
type ShortTermIndicators struct {
	RSI14    *float64 `json:"rsi14"`
	SMA20    *float64 `json:"sma20"`
	EMA12    *float64 `json:"ema12"`
	EMA26    *float64 `json:"ema26"`
	VolAvg20 *float64 `json:"vol_avg20"`
	MACD     *MACD    `json:"macd"`
}

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

type LongTermIndicators struct {
	SMA50  *float64 `json:"sma50"`
	SMA100 *float64 `json:"sma100"`
	Trend  Trend    `json:"trend"`
}

type Indicators struct {
	ShortTerm  ShortTermIndicators `json:"short_term"`
	LongTerm   LongTermIndicators  `json:"long_term"`
	ComputedAt time.Time           `json:"computed_at"`
}

// MarketData is the aggregated per-symbol view produced by the market data
// scheduler. It is never mutated after construction; each tick replaces it
// wholesale.
type MarketData struct {
	Symbol     string             `json:"symbol"`
	Ticker     *TickerSnapshot    `json:"ticker,omitempty"`
	OrderBook  *OrderBookSnapshot `json:"order_book,omitempty"`
	Funding    *FundingRate       `json:"funding,omitempty"`
	Series15m  *CandleSeries      `json:"series_15m,omitempty"`
	Series1h   *CandleSeries      `json:"series_1h,omitempty"`
	Indicators *Indicators        `json:"indicators,omitempty"`
	ObservedAt time.Time          `json:"observed_at"`
}

type RuntimeMode string

const (
	ModeSimulator RuntimeMode = "simulator"
	ModePaper     RuntimeMode = "paper"
	ModeLive      RuntimeMode = "live"
)

func (m RuntimeMode) Valid() bool {
	switch m {
	case ModeSimulator, ModePaper, ModeLive:
		return true
	}
	return false
}

type DecisionToken string

const (
	TokenBuy     DecisionToken = "BUY"
	TokenSell    DecisionToken = "SELL"
	TokenHold    DecisionToken = "HOLD"
	TokenAbstain DecisionToken = "ABSTAIN"
)

func (t DecisionToken) Valid() bool {
	switch t {
	case TokenBuy, TokenSell, TokenHold, TokenAbstain:
		return true
	}
	return false
}

type Decision struct {
	RunID      string        `json:"run_id"`
	Symbol     string        `json:"symbol"`
	TradeDate  string        `json:"trade_date"`
	Token      DecisionToken `json:"decision_token"`
	Confidence float64       `json:"confidence"`
	Size       float64       `json:"size"`
	Leverage   int           `json:"leverage"`
	Rationale  string        `json:"rationale"`
	RiskPlan   string        `json:"risk_plan"`
	ModelID    string        `json:"model_id"`
	Analysts   []string      `json:"analysts"`
	RawText    string        `json:"raw_text,omitempty"`
	PromptHash string        `json:"prompt_hash"`
	CreatedAt  time.Time     `json:"created_at"`
}

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
	RunTimeout   RunStatus = "timeout"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunTimeout:
		return true
	}
	return false
}

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "inProgress"
	StepCompleted  StepStatus = "completed"
	StepSkipped    StepStatus = "skipped"
	StepFailed     StepStatus = "failed"
)

type ProgressStep struct {
	Name    string     `json:"name"`
	Status  StepStatus `json:"status"`
	Percent int        `json:"percent"`
	At      time.Time  `json:"at"`
}

type DecisionRun struct {
	RunID       string         `json:"run_id"`
	Symbol      string         `json:"symbol"`
	ModelID     string         `json:"model_id"`
	Analysts    []string       `json:"analysts"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Steps       []ProgressStep `json:"steps"`
	Result      *Decision      `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderKind string

const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
)

type OrderStatus string

const (
	OrderAccepted OrderStatus = "accepted"
	OrderOpen     OrderStatus = "open"
	OrderFilled   OrderStatus = "filled"
	OrderCanceled OrderStatus = "canceled"
	OrderRejected OrderStatus = "rejected"
)

type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Kind       OrderKind `json:"kind"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price,omitempty"`
	ReduceOnly bool      `json:"reduce_only"`
	Tag        string    `json:"tag,omitempty"`
}

type Order struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Kind        OrderKind   `json:"kind"`
	Qty         float64     `json:"qty"`
	Price       float64     `json:"price,omitempty"`
	ReduceOnly  bool        `json:"reduce_only"`
	Status      OrderStatus `json:"status"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// Position qty is signed: positive long, negative short.
type Position struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Leverage      int     `json:"leverage"`
}

type Balance struct {
	Cash       float64 `json:"cash"`
	Equity     float64 `json:"equity"`
	UsedMargin float64 `json:"used_margin"`
}

// Outcome labels a past decision once its horizon elapses. Immutable after
// the write.
type Outcome struct {
	DecisionID     int64     `json:"decision_id"`
	Horizon        string    `json:"horizon"`
	RealizedReturn float64   `json:"realized_return"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	Label          string    `json:"label"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewsArticle is one scraped headline plus whatever body text the source
// exposed on its listing page.
type NewsArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content,omitempty"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at,omitempty"`
	Symbol      string `json:"symbol"`
}

// NewsDigest is the headline bundle handed to the news analyst persona.
type NewsDigest struct {
	Symbol    string        `json:"symbol"`
	Articles  []NewsArticle `json:"articles"`
	Tone      NewsTone      `json:"tone"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// NewsTone is the lexicon-based tone summary computed over a digest. Score is
// (positive-negative)/(positive+negative) in [-1, 1]; Uncertainty is the
// share of hedging words among all words scanned.
type NewsTone struct {
	Score         float64 `json:"score"`
	Uncertainty   float64 `json:"uncertainty"`
	Label         string  `json:"label"`
	PositiveHits  int     `json:"positive_hits"`
	NegativeHits  int     `json:"negative_hits"`
	UncertainHits int     `json:"uncertain_hits"`
	WordsScanned  int     `json:"words_scanned"`
}

// PriceQuote is the lenient cache-served read returned by GetPrices.
type PriceQuote struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	ChangePct24 float64   `json:"change_pct_24h"`
	ObservedAt  time.Time `json:"observed_at"`
	Stale       bool      `json:"stale"`
}
