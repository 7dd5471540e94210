package runtime

import (
	"context"
	"sync"

	"llm-autotrader/internal/errs"
	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/logger"
	"llm-autotrader/internal/persist"
	"llm-autotrader/internal/types"
)

// BrokerFactory builds the broker variant serving a mode. Factories run once
// per transition; the controller holds the product until the next swap.
type BrokerFactory func() (interfaces.Broker, error)

// Controller is the journaled runtime-mode singleton. Transitions are
// serialized by setMu; the state lock covers only the in-memory swap so
// readers never wait behind a factory build or journal write.
type Controller struct {
	store     *persist.Store
	factories map[types.RuntimeMode]BrokerFactory

	setMu sync.Mutex

	mu     sync.RWMutex
	mode   types.RuntimeMode
	broker interfaces.Broker
}

// New restores the journaled mode (or falls back to initial) and builds the
// matching broker.
func New(ctx context.Context, store *persist.Store, initial types.RuntimeMode, factories map[types.RuntimeMode]BrokerFactory) (*Controller, error) {
	if !initial.Valid() {
		return nil, errs.New(errs.InvalidInput, "bad_mode", "invalid initial runtime mode")
	}

	mode, err := store.GetRuntimeMode(ctx, initial)
	if err != nil {
		return nil, err
	}
	factory, ok := factories[mode]
	if !ok {
		return nil, errs.New(errs.InvalidInput, "no_factory", "no broker factory bound for mode "+string(mode))
	}
	broker, err := factory()
	if err != nil {
		return nil, err
	}

	// Journal the effective mode so a fresh database records the fallback too.
	if err := store.SetRuntimeMode(ctx, mode); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Runtime mode restored", "mode", string(mode), "broker", broker.Name())
	return &Controller{
		store:     store,
		factories: factories,
		mode:      mode,
		broker:    broker,
	}, nil
}

func (c *Controller) Get() types.RuntimeMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Broker returns the currently active broker. Callers that must not split
// work across a transition capture the returned value once.
func (c *Controller) Broker() interfaces.Broker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.broker
}

// Transition is the result of a Set call.
type Transition struct {
	Prior   types.RuntimeMode `json:"prior"`
	Current types.RuntimeMode `json:"current"`
}

// Set journals and applies a mode change, swapping the active broker. Setting
// the current mode is an idempotent no-op.
func (c *Controller) Set(ctx context.Context, mode types.RuntimeMode) (Transition, error) {
	if !mode.Valid() {
		return Transition{}, errs.New(errs.InvalidInput, "bad_mode", "unknown runtime mode")
	}

	c.setMu.Lock()
	defer c.setMu.Unlock()

	prior := c.Get()
	if mode == prior {
		return Transition{Prior: prior, Current: prior}, nil
	}

	factory, ok := c.factories[mode]
	if !ok {
		return Transition{}, errs.New(errs.InvalidInput, "no_factory", "no broker factory bound for mode "+string(mode))
	}
	broker, err := factory()
	if err != nil {
		return Transition{}, err
	}

	if err := c.store.SetRuntimeMode(ctx, mode); err != nil {
		return Transition{}, err
	}

	c.mu.Lock()
	c.mode = mode
	c.broker = broker
	c.mu.Unlock()

	logger.Info(ctx, "Runtime mode changed",
		"prior", string(prior), "current", string(mode), "broker", broker.Name())
	return Transition{Prior: prior, Current: mode}, nil
}
