package exchange

import (
	"context"
	"math"
	"sync"
	"time"

	"llm-autotrader/internal/audit"
	"llm-autotrader/internal/errs"
	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/metrics"
	"llm-autotrader/internal/types"
)

// Broker routes orders through an ExchangeClient. Positions and balance are
// refetched from the client on every query; nothing is cached here.
type Broker struct {
	name        string
	client      interfaces.ExchangeClient
	metrics     *metrics.Recorder
	auditor     *audit.Log
	callTimeout time.Duration

	mu       sync.Mutex
	symLocks map[string]*sync.Mutex
}

var _ interfaces.Broker = (*Broker)(nil)

type Params struct {
	Name        string
	Client      interfaces.ExchangeClient
	Metrics     *metrics.Recorder
	Auditor     *audit.Log
	CallTimeout time.Duration
}

func New(p Params) *Broker {
	if p.CallTimeout <= 0 {
		p.CallTimeout = 15 * time.Second
	}
	if p.Name == "" {
		p.Name = "exchange"
	}
	return &Broker{
		name:        p.Name,
		client:      p.Client,
		metrics:     p.Metrics,
		auditor:     p.Auditor,
		callTimeout: p.CallTimeout,
		symLocks:    make(map[string]*sync.Mutex),
	}
}

func (b *Broker) Name() string { return b.name }

func (b *Broker) lockSymbol(symbol string) func() {
	b.mu.Lock()
	l, ok := b.symLocks[symbol]
	if !ok {
		l = &sync.Mutex{}
		b.symLocks[symbol] = l
	}
	b.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (b *Broker) timed(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	if b.metrics != nil {
		b.metrics.RecordBrokerLatency(b.name, op, time.Since(start).Seconds())
	}
	if callCtx.Err() == context.DeadlineExceeded {
		return errs.Wrap(errs.Timeout, op+" deadline exceeded", err)
	}
	return err
}

func (b *Broker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Order, error) {
	symbol := types.NormalizeSymbol(req.Symbol)
	req.Symbol = symbol

	unlock := b.lockSymbol(symbol)
	defer unlock()

	var orderID string
	err := b.timed(ctx, "place_order", func(ctx context.Context) error {
		var e error
		orderID, e = b.client.PlaceOrder(ctx, req)
		return e
	})

	if b.auditor != nil {
		b.auditor.AppendOrder(audit.OrderEntry{
			Broker:  b.name,
			Symbol:  symbol,
			Side:    string(req.Side),
			Kind:    string(req.Kind),
			Qty:     req.Qty,
			Price:   req.Price,
			OrderID: orderID,
			OK:      err == nil,
			Error:   errText(err),
			Tag:     req.Tag,
		})
	}
	if err != nil {
		return types.Order{}, err
	}

	return types.Order{
		ID:          orderID,
		Symbol:      symbol,
		Side:        req.Side,
		Kind:        req.Kind,
		Qty:         req.Qty,
		Price:       req.Price,
		ReduceOnly:  req.ReduceOnly,
		Status:      types.OrderAccepted,
		SubmittedAt: time.Now(),
	}, nil
}

func (b *Broker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	symbol = types.NormalizeSymbol(symbol)
	unlock := b.lockSymbol(symbol)
	defer unlock()

	return b.timed(ctx, "cancel_order", func(ctx context.Context) error {
		return b.client.CancelOrder(ctx, symbol, orderID)
	})
}

func (b *Broker) ClosePosition(ctx context.Context, symbol string) (types.Order, error) {
	symbol = types.NormalizeSymbol(symbol)

	positions, err := b.GetPositions(ctx)
	if err != nil {
		return types.Order{}, err
	}

	var open *types.Position
	for i := range positions {
		if positions[i].Symbol == symbol && positions[i].Qty != 0 {
			open = &positions[i]
			break
		}
	}
	if open == nil {
		return types.Order{}, errs.Newf(errs.NoPosition, "no open position for %s", symbol)
	}

	side := types.SideSell
	if open.Qty < 0 {
		side = types.SideBuy
	}
	return b.PlaceOrder(ctx, types.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Kind:       types.OrderMarket,
		Qty:        math.Abs(open.Qty),
		ReduceOnly: true,
		Tag:        "close",
	})
}

func (b *Broker) GetPositions(ctx context.Context) ([]types.Position, error) {
	var out []types.Position
	err := b.timed(ctx, "get_positions", func(ctx context.Context) error {
		var e error
		out, e = b.client.FetchPositions(ctx)
		return e
	})
	return out, err
}

func (b *Broker) GetBalance(ctx context.Context) (types.Balance, error) {
	var out types.Balance
	err := b.timed(ctx, "get_balance", func(ctx context.Context) error {
		var e error
		out, e = b.client.FetchBalance(ctx)
		return e
	})
	return out, err
}

func (b *Broker) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := b.timed(ctx, "get_market_price", func(ctx context.Context) error {
		ticker, e := b.client.FetchTicker(ctx, types.NormalizeSymbol(symbol))
		if e != nil {
			return e
		}
		price = ticker.LastPrice
		return nil
	})
	return price, err
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
