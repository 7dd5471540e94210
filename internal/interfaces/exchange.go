package interfaces

import (
	"context"

	"llm-autotrader/internal/types"
)

// ExchangeClient is the read/write boundary to an exchange. Implementations
// classify failures using the errs package kinds; Transient and RateLimited
// are retried by the caller's backoff policy, Auth and Rejected are terminal.
type ExchangeClient interface {
	FetchTicker(ctx context.Context, symbol string) (types.TickerSnapshot, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBookSnapshot, error)
	FetchFundingRate(ctx context.Context, symbol string) (types.FundingRate, error)
	FetchCandles(ctx context.Context, symbol string, tf types.Timeframe, limit int) (types.CandleSeries, error)
	FetchBalance(ctx context.Context) (types.Balance, error)
	FetchPositions(ctx context.Context) ([]types.Position, error)
	PlaceOrder(ctx context.Context, req types.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	FetchOrder(ctx context.Context, symbol, orderID string) (types.Order, error)
}
