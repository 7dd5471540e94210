package interfaces

import (
	"context"

	"llm-autotrader/internal/types"
)

// Broker is the order-routing capability set. PlaceOrder returns once the
// order is accepted, not necessarily filled. Concurrent calls on the same
// symbol are serialized by the implementation.
type Broker interface {
	Name() string
	PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	// ClosePosition resolves the open position's sign and issues a reduceOnly
	// opposite-side market order for the absolute quantity. Fails with
	// NoPosition when none exists.
	ClosePosition(ctx context.Context, symbol string) (types.Order, error)
	GetPositions(ctx context.Context) ([]types.Position, error)
	GetBalance(ctx context.Context) (types.Balance, error)
	GetMarketPrice(ctx context.Context, symbol string) (float64, error)
}
