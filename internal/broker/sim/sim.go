package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"llm-autotrader/internal/errs"
	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/types"
)

// PriceSource supplies the mark price used to fill market orders and cross
// queued limit orders. The market data scheduler's cache is the usual source.
type PriceSource func(ctx context.Context, symbol string) (float64, error)

type position struct {
	qty   decimal.Decimal // signed
	entry decimal.Decimal
}

type ledgerEntry struct {
	Order types.Order     `json:"order"`
	Fill  decimal.Decimal `json:"fill"`
	At    time.Time       `json:"at"`
}

// Broker keeps positions, cash and an execution ledger in memory. Market
// orders fill at the cached last price; limit orders queue and match on the
// next price crossing. Deterministic for a given seed.
type Broker struct {
	mu        sync.Mutex
	symLocks  map[string]*sync.Mutex
	cash      decimal.Decimal
	positions map[string]*position
	open      map[string]types.Order
	ledger    []ledgerEntry
	prices    PriceSource
	rng       *rand.Rand
	nextID    int64
}

var _ interfaces.Broker = (*Broker)(nil)

func New(startingCash float64, seed int64, prices PriceSource) *Broker {
	return &Broker{
		symLocks:  make(map[string]*sync.Mutex),
		cash:      decimal.NewFromFloat(startingCash),
		positions: make(map[string]*position),
		open:      make(map[string]types.Order),
		prices:    prices,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (b *Broker) Name() string { return "simulator" }

// lockSymbol serializes operations per symbol without blocking unrelated
// symbols.
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

func (b *Broker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Order, error) {
	symbol := types.NormalizeSymbol(req.Symbol)
	if req.Qty <= 0 {
		return types.Order{}, errs.New(errs.Rejected, "bad_qty", "quantity must be positive")
	}

	unlock := b.lockSymbol(symbol)
	defer unlock()

	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("SIM-%d", b.nextID)
	b.mu.Unlock()

	order := types.Order{
		ID:          id,
		Symbol:      symbol,
		Side:        req.Side,
		Kind:        req.Kind,
		Qty:         req.Qty,
		Price:       req.Price,
		ReduceOnly:  req.ReduceOnly,
		Status:      types.OrderAccepted,
		SubmittedAt: time.Now(),
	}

	if req.Kind == types.OrderLimit {
		b.mu.Lock()
		order.Status = types.OrderOpen
		b.open[id] = order
		b.mu.Unlock()
		return order, nil
	}

	price, err := b.prices(ctx, symbol)
	if err != nil {
		return types.Order{}, errs.Wrap(errs.Rejected, "no market price", err)
	}

	b.mu.Lock()
	// Up to 2bps of seeded slippage on market fills.
	slip := 1 + (b.rng.Float64()-0.5)*0.0004
	b.fill(&order, decimal.NewFromFloat(price*slip))
	b.mu.Unlock()
	return order, nil
}

// fill applies the execution to cash, position and ledger. Caller holds b.mu.
func (b *Broker) fill(order *types.Order, price decimal.Decimal) {
	qty := decimal.NewFromFloat(order.Qty)
	signed := qty
	if order.Side == types.SideSell {
		signed = qty.Neg()
	}

	pos, ok := b.positions[order.Symbol]
	if !ok {
		pos = &position{}
		b.positions[order.Symbol] = pos
	}

	newQty := pos.qty.Add(signed)
	switch {
	case pos.qty.IsZero():
		pos.entry = price
	case pos.qty.Sign() == signed.Sign():
		// Same-direction add: volume-weighted entry.
		total := pos.entry.Mul(pos.qty.Abs()).Add(price.Mul(qty))
		pos.entry = total.Div(pos.qty.Abs().Add(qty))
	case newQty.Sign() != 0 && newQty.Sign() != pos.qty.Sign():
		// Flipped through zero: remaining quantity opens at the fill price.
		pos.entry = price
	}
	pos.qty = newQty
	if pos.qty.IsZero() {
		delete(b.positions, order.Symbol)
	}

	b.cash = b.cash.Sub(price.Mul(signed))
	order.Status = types.OrderFilled
	order.Price, _ = price.Float64()
	b.ledger = append(b.ledger, ledgerEntry{Order: *order, Fill: price, At: time.Now()})
}

// MatchOpenOrders crosses queued limit orders against the current price.
// The market data scheduler calls this once per tick.
func (b *Broker) MatchOpenOrders(ctx context.Context, symbol string) {
	symbol = types.NormalizeSymbol(symbol)
	price, err := b.prices(ctx, symbol)
	if err != nil {
		return
	}
	p := decimal.NewFromFloat(price)

	unlock := b.lockSymbol(symbol)
	defer unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, order := range b.open {
		if order.Symbol != symbol {
			continue
		}
		limit := decimal.NewFromFloat(order.Price)
		crossed := (order.Side == types.SideBuy && p.LessThanOrEqual(limit)) ||
			(order.Side == types.SideSell && p.GreaterThanOrEqual(limit))
		if crossed {
			b.fill(&order, limit)
			delete(b.open, id)
		}
	}
}

func (b *Broker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.open[orderID]; !ok {
		return errs.Newf(errs.NotFound, "order %s", orderID)
	}
	delete(b.open, orderID)
	return nil
}

func (b *Broker) ClosePosition(ctx context.Context, symbol string) (types.Order, error) {
	symbol = types.NormalizeSymbol(symbol)

	b.mu.Lock()
	pos, ok := b.positions[symbol]
	if !ok || pos.qty.IsZero() {
		b.mu.Unlock()
		return types.Order{}, errs.Newf(errs.NoPosition, "no open position for %s", symbol)
	}
	side := types.SideSell
	if pos.qty.Sign() < 0 {
		side = types.SideBuy
	}
	qty, _ := pos.qty.Abs().Float64()
	b.mu.Unlock()

	return b.PlaceOrder(ctx, types.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Kind:       types.OrderMarket,
		Qty:        qty,
		ReduceOnly: true,
		Tag:        "close",
	})
}

func (b *Broker) GetPositions(ctx context.Context) ([]types.Position, error) {
	b.mu.Lock()
	snapshot := make(map[string]position, len(b.positions))
	for sym, pos := range b.positions {
		snapshot[sym] = *pos
	}
	b.mu.Unlock()

	out := make([]types.Position, 0, len(snapshot))
	for sym, pos := range snapshot {
		mark, err := b.prices(ctx, sym)
		if err != nil {
			mark, _ = pos.entry.Float64()
		}
		qty, _ := pos.qty.Float64()
		entry, _ := pos.entry.Float64()
		upnl := decimal.NewFromFloat(mark).Sub(pos.entry).Mul(pos.qty)
		upnlF, _ := upnl.Float64()
		out = append(out, types.Position{
			Symbol:        sym,
			Qty:           qty,
			EntryPrice:    entry,
			MarkPrice:     mark,
			UnrealizedPnL: upnlF,
			Leverage:      1,
		})
	}
	return out, nil
}

func (b *Broker) GetBalance(ctx context.Context) (types.Balance, error) {
	positions, err := b.GetPositions(ctx)
	if err != nil {
		return types.Balance{}, err
	}

	b.mu.Lock()
	cash, _ := b.cash.Float64()
	b.mu.Unlock()

	equity := cash
	for _, p := range positions {
		equity += p.MarkPrice * p.Qty
	}
	return types.Balance{Cash: cash, Equity: equity}, nil
}

func (b *Broker) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	p, err := b.prices(ctx, types.NormalizeSymbol(symbol))
	if err != nil || math.IsNaN(p) {
		return 0, errs.Wrap(errs.Unavailable, "no market price", err)
	}
	return p, nil
}

// Ledger returns a copy of the execution history.
func (b *Broker) Ledger() []types.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Order, len(b.ledger))
	for i, e := range b.ledger {
		out[i] = e.Order
	}
	return out
}
