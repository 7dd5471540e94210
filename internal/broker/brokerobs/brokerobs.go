package brokerobs

import (
	"context"

	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/logger"
	"llm-autotrader/internal/trace"
	"llm-autotrader/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

func (ob *observableBroker) Name() string { return ob.broker.Name() }

func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Order, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Submitting order",
		"broker", ob.broker.Name(),
		"symbol", req.Symbol,
		"side", req.Side,
		"kind", req.Kind,
		"qty", req.Qty,
	)

	order, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Order submission failed", err,
			"broker", ob.broker.Name(),
			"symbol", req.Symbol,
			"side", req.Side,
		)
		return types.Order{}, err
	}

	logger.Trade(ctx, order.Symbol, string(order.Side), order.Qty, order.Price, order.ID,
		"broker", ob.broker.Name(),
		"tag", req.Tag,
	)
	return order, nil
}

func (ob *observableBroker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	ctx, span := trace.StartSpan(ctx, "broker.CancelOrder")
	defer span.End()

	err := ob.broker.CancelOrder(ctx, symbol, orderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Order cancel failed", err, "symbol", symbol, "order_id", orderID)
		return err
	}

	logger.InfoSkip(ctx, 1, "Order cancelled", "symbol", symbol, "order_id", orderID)
	return nil
}

func (ob *observableBroker) ClosePosition(ctx context.Context, symbol string) (types.Order, error) {
	ctx, span := trace.StartSpan(ctx, "broker.ClosePosition")
	defer span.End()

	order, err := ob.broker.ClosePosition(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Close position failed", err, "symbol", symbol)
		return types.Order{}, err
	}

	logger.InfoSkip(ctx, 1, "Position closed",
		"symbol", symbol,
		"order_id", order.ID,
		"side", order.Side,
		"qty", order.Qty,
	)
	return order, nil
}

func (ob *observableBroker) GetPositions(ctx context.Context) ([]types.Position, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetPositions")
	defer span.End()

	positions, err := ob.broker.GetPositions(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch positions", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Positions fetched", "count", len(positions))
	return positions, nil
}

func (ob *observableBroker) GetBalance(ctx context.Context) (types.Balance, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetBalance")
	defer span.End()

	balance, err := ob.broker.GetBalance(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch balance", err)
		return types.Balance{}, err
	}

	logger.DebugSkip(ctx, 1, "Balance fetched", "cash", balance.Cash, "equity", balance.Equity)
	return balance, nil
}

func (ob *observableBroker) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetMarketPrice")
	defer span.End()

	price, err := ob.broker.GetMarketPrice(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch market price", err, "symbol", symbol)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "Market price fetched", "symbol", symbol, "price", price)
	return price, nil
}
