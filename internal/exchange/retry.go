package exchange

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"llm-autotrader/internal/errs"
	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/metrics"
	"llm-autotrader/internal/types"
)

const maxAttempts = 4

// retryClient applies the exchange retry policy: exponential backoff from
// 250ms capped at 5s with ±20% jitter, at most four attempts. Transient,
// RateLimited and Timeout errors retry; everything else surfaces verbatim.
// Exhausted retries surface as Unavailable.
type retryClient struct {
	next    interfaces.ExchangeClient
	metrics *metrics.Recorder
}

var _ interfaces.ExchangeClient = (*retryClient)(nil)

// WithRetry wraps a client with the retry policy. metrics may be nil.
func WithRetry(next interfaces.ExchangeClient, rec *metrics.Recorder) interfaces.ExchangeClient {
	return &retryClient{next: next, metrics: rec}
}

func (r *retryClient) do(ctx context.Context, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.RandomizationFactor = 0.2
	bo.Multiplier = 2

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if r.metrics != nil {
			r.metrics.RecordExchangeError(string(errs.KindOf(err)))
		}
		if !errs.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx))

	if err != nil && errs.Retryable(err) {
		return errs.Wrap(errs.Unavailable, "retries exhausted", err)
	}
	return err
}

func (r *retryClient) FetchTicker(ctx context.Context, symbol string) (types.TickerSnapshot, error) {
	var out types.TickerSnapshot
	err := r.do(ctx, func() error {
		var e error
		out, e = r.next.FetchTicker(ctx, symbol)
		return e
	})
	return out, err
}

func (r *retryClient) FetchOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBookSnapshot, error) {
	var out types.OrderBookSnapshot
	err := r.do(ctx, func() error {
		var e error
		out, e = r.next.FetchOrderBook(ctx, symbol, depth)
		return e
	})
	return out, err
}

func (r *retryClient) FetchFundingRate(ctx context.Context, symbol string) (types.FundingRate, error) {
	var out types.FundingRate
	err := r.do(ctx, func() error {
		var e error
		out, e = r.next.FetchFundingRate(ctx, symbol)
		return e
	})
	return out, err
}

func (r *retryClient) FetchCandles(ctx context.Context, symbol string, tf types.Timeframe, limit int) (types.CandleSeries, error) {
	var out types.CandleSeries
	err := r.do(ctx, func() error {
		var e error
		out, e = r.next.FetchCandles(ctx, symbol, tf, limit)
		return e
	})
	return out, err
}

func (r *retryClient) FetchBalance(ctx context.Context) (types.Balance, error) {
	var out types.Balance
	err := r.do(ctx, func() error {
		var e error
		out, e = r.next.FetchBalance(ctx)
		return e
	})
	return out, err
}

func (r *retryClient) FetchPositions(ctx context.Context) ([]types.Position, error) {
	var out []types.Position
	err := r.do(ctx, func() error {
		var e error
		out, e = r.next.FetchPositions(ctx)
		return e
	})
	return out, err
}

// PlaceOrder is not retried: a timed-out submission may still have been
// accepted by the venue, and a blind retry could double the position.
func (r *retryClient) PlaceOrder(ctx context.Context, req types.OrderRequest) (string, error) {
	return r.next.PlaceOrder(ctx, req)
}

func (r *retryClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return r.do(ctx, func() error {
		return r.next.CancelOrder(ctx, symbol, orderID)
	})
}

func (r *retryClient) FetchOrder(ctx context.Context, symbol, orderID string) (types.Order, error) {
	var out types.Order
	err := r.do(ctx, func() error {
		var e error
		out, e = r.next.FetchOrder(ctx, symbol, orderID)
		return e
	})
	return out, err
}
