package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is a held distributed lock.
type Lock interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release()
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// StateCache mirrors the latest fused market state so other processes can
// read it.
type StateCache interface {
	SetState(ctx context.Context, strategy string, state MarketState) error
	GetState(ctx context.Context, strategy, symbol string) (MarketState, error)
}
