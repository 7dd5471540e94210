package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned when a key is absent or its TTL has elapsed.
var ErrMiss = errors.New("cache: miss")

// Kind names a snapshot family. Each kind carries its own TTL discipline.
type Kind string

const (
	KindTicker     Kind = "ticker"
	KindOrderBook  Kind = "orderbook"
	KindFunding    Kind = "funding"
	KindCandles15m Kind = "candles15m"
	KindCandles1h  Kind = "candles1h"
	KindIndicators Kind = "indicators"
)

// TTL returns the freshness window for the kind.
func (k Kind) TTL() time.Duration {
	switch k {
	case KindTicker, KindOrderBook:
		return 10 * time.Second
	case KindFunding, KindCandles1h:
		return 300 * time.Second
	case KindCandles15m, KindIndicators:
		return 60 * time.Second
	}
	return 60 * time.Second
}

// retainFactor controls how long an expired entry stays readable through
// GetLenient before the janitor drops it.
const retainFactor = 10

type Key struct {
	Namespace string
	Symbol    string
	Kind      Kind
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Namespace, k.Symbol, k.Kind)
}

// Hit describes a successful read.
type Hit struct {
	WrittenAt time.Time
	Age       time.Duration
	Stale     bool
}

// Store is the snapshot cache. Writes replace atomically per key; readers
// never observe a torn value. Expiration is lazy on read and opportunistically
// swept.
type Store interface {
	// Put replaces the value under key, recording writtenAt = now and the
	// kind's TTL.
	Put(ctx context.Context, key Key, value any) error
	// Get unmarshals the value into dest. Returns ErrMiss when absent or
	// expired.
	Get(ctx context.Context, key Key, dest any) (Hit, error)
	// GetLenient behaves like Get but still returns expired values within the
	// retention window, flagging them stale.
	GetLenient(ctx context.Context, key Key, dest any) (Hit, error)
	// Keys lists live keys under a namespace. Diagnostics only.
	Keys(ctx context.Context, namespace string) ([]string, error)
	Close() error
}
