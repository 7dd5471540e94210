package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"llm-autotrader/internal/errs"
	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/types"
)

// Client is a deterministic synthetic market feed. Given the same seed and
// call sequence it produces the same data, which keeps simulator runs and
// tests reproducible.
type Client struct {
	mu      sync.Mutex
	rng     *rand.Rand
	prices  map[string]float64
	changes map[string]float64
	orders  map[string]types.Order
	nextID  int64
}

var _ interfaces.ExchangeClient = (*Client)(nil)

func New(seed int64) *Client {
	return &Client{
		rng:     rand.New(rand.NewSource(seed)),
		prices:  make(map[string]float64),
		changes: make(map[string]float64),
		orders:  make(map[string]types.Order),
	}
}

// SeedPrice pins a symbol's last price and 24h change so callers can stage a
// known market state.
func (c *Client) SeedPrice(symbol string, price, changePct float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[types.NormalizeSymbol(symbol)] = price
	c.changes[types.NormalizeSymbol(symbol)] = changePct
}

func (c *Client) priceOf(symbol string) float64 {
	if p, ok := c.prices[symbol]; ok {
		return p
	}
	p := 1000 + c.rng.Float64()*100
	c.prices[symbol] = p
	return p
}

func (c *Client) FetchTicker(_ context.Context, symbol string) (types.TickerSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	symbol = types.NormalizeSymbol(symbol)
	price := c.priceOf(symbol)
	change := c.changes[symbol]
	spread := price * 0.0002
	return types.TickerSnapshot{
		Symbol:      symbol,
		LastPrice:   price,
		Bid:         price - spread,
		Ask:         price + spread,
		Volume24h:   10000 + c.rng.Float64()*90000,
		High24h:     price * 1.02,
		Low24h:      price * 0.98,
		Change24h:   price * change / 100,
		ChangePct24: change,
		ObservedAt:  time.Now(),
	}, nil
}

func (c *Client) FetchOrderBook(_ context.Context, symbol string, depth int) (types.OrderBookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	symbol = types.NormalizeSymbol(symbol)
	price := c.priceOf(symbol)
	if depth > 20 {
		depth = 20
	}

	book := types.OrderBookSnapshot{Symbol: symbol, ObservedAt: time.Now()}
	tick := price * 0.0001
	for i := 1; i <= depth; i++ {
		book.Bids = append(book.Bids, types.BookLevel{
			Price: price - tick*float64(i),
			Qty:   1 + c.rng.Float64()*10,
		})
		book.Asks = append(book.Asks, types.BookLevel{
			Price: price + tick*float64(i),
			Qty:   1 + c.rng.Float64()*10,
		})
	}
	return book, nil
}

func (c *Client) FetchFundingRate(_ context.Context, symbol string) (types.FundingRate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.FundingRate{
		Symbol:     types.NormalizeSymbol(symbol),
		Rate:       (c.rng.Float64() - 0.5) * 0.0002,
		NextAt:     time.Now().Truncate(8 * time.Hour).Add(8 * time.Hour),
		ObservedAt: time.Now(),
	}, nil
}

func (c *Client) FetchCandles(_ context.Context, symbol string, tf types.Timeframe, limit int) (types.CandleSeries, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	symbol = types.NormalizeSymbol(symbol)
	base := c.priceOf(symbol)
	step := 15 * time.Minute
	if tf == types.Timeframe1h {
		step = time.Hour
	}

	now := time.Now().Truncate(step)
	candles := make([]types.Candle, 0, limit)
	for i := limit; i > 0; i-- {
		mid := base * (1 + (c.rng.Float64()-0.5)*0.01)
		hi := mid * (1 + c.rng.Float64()*0.003)
		lo := mid * (1 - c.rng.Float64()*0.003)
		open := lo + (hi-lo)*c.rng.Float64()
		candles = append(candles, types.Candle{
			OpenTime: now.Add(-time.Duration(i) * step),
			Open:     open,
			High:     hi,
			Low:      lo,
			Close:    mid,
			Volume:   c.rng.Float64() * 1000,
		})
	}
	return types.CandleSeries{
		Symbol:     symbol,
		Timeframe:  tf,
		Candles:    candles,
		ObservedAt: time.Now(),
	}, nil
}

func (c *Client) FetchBalance(_ context.Context) (types.Balance, error) {
	return types.Balance{Cash: 100000, Equity: 100000}, nil
}

func (c *Client) FetchPositions(_ context.Context) ([]types.Position, error) {
	return nil, nil
}

func (c *Client) PlaceOrder(_ context.Context, req types.OrderRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.Qty <= 0 {
		return "", errs.New(errs.Rejected, "bad_qty", "quantity must be positive")
	}
	c.nextID++
	id := fmt.Sprintf("SIM-%d", c.nextID)
	c.orders[id] = types.Order{
		ID:          id,
		Symbol:      types.NormalizeSymbol(req.Symbol),
		Side:        req.Side,
		Kind:        req.Kind,
		Qty:         req.Qty,
		Price:       req.Price,
		ReduceOnly:  req.ReduceOnly,
		Status:      types.OrderFilled,
		SubmittedAt: time.Now(),
	}
	return id, nil
}

func (c *Client) CancelOrder(_ context.Context, symbol, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.orders[orderID]
	if !ok {
		return errs.Newf(errs.NotFound, "order %s", orderID)
	}
	o.Status = types.OrderCanceled
	c.orders[orderID] = o
	return nil
}

func (c *Client) FetchOrder(_ context.Context, symbol, orderID string) (types.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.orders[orderID]
	if !ok {
		return types.Order{}, errs.Newf(errs.NotFound, "order %s", orderID)
	}
	return o, nil
}
