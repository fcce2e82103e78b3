// Package journal delivers audit records to a domain.Journal off the trading
// path.
package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/metrics"
)

const (
	defaultQueueSize = 1024
	writeTimeout     = 5 * time.Second
)

type op struct {
	name string
	fn   func(ctx context.Context) error
}

// Async queues journal writes and applies them on a single goroutine. Every
// method returns immediately; a full queue drops the record.
type Async struct {
	inner  domain.Journal
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan op
}

// NewAsync wraps inner. queueSize <= 0 uses the default.
func NewAsync(inner domain.Journal, queueSize int, logger *slog.Logger) *Async {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Async{
		inner:  inner,
		logger: logger.With(slog.String("component", "journal")),
		queue:  make(chan op, queueSize),
	}
}

func (a *Async) enqueue(name string, fn func(ctx context.Context) error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		metrics.JournalWrites.WithLabelValues(name, "dropped").Inc()
		return
	}
	select {
	case a.queue <- op{name: name, fn: fn}:
	default:
		metrics.JournalWrites.WithLabelValues(name, "dropped").Inc()
		a.logger.Warn("journal queue full, dropping", slog.String("op", name))
	}
}

// Run applies queued writes until ctx is cancelled, then flushes whatever is
// buffered.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.drain(context.WithoutCancel(ctx))
			return nil
		case o, ok := <-a.queue:
			if !ok {
				return nil
			}
			a.apply(ctx, o)
		}
	}
}

func (a *Async) drain(ctx context.Context) {
	for {
		select {
		case o, ok := <-a.queue:
			if !ok {
				return
			}
			a.apply(ctx, o)
		default:
			return
		}
	}
}

func (a *Async) apply(ctx context.Context, o op) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := o.fn(ctx); err != nil {
		metrics.JournalWrites.WithLabelValues(o.name, "error").Inc()
		a.logger.Error("journal write failed",
			slog.String("op", o.name),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.JournalWrites.WithLabelValues(o.name, "ok").Inc()
}

// Close stops accepting records, applies the rest and closes the inner
// journal. Records written after Close are dropped.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	for o := range a.queue {
		a.apply(context.Background(), o)
	}
	return a.inner.Close()
}

func (a *Async) LogDecision(_ context.Context, d domain.Decision) error {
	a.enqueue("decision", func(ctx context.Context) error { return a.inner.LogDecision(ctx, d) })
	return nil
}

func (a *Async) LogTrade(_ context.Context, t domain.TradeRecord) error {
	a.enqueue("trade", func(ctx context.Context) error { return a.inner.LogTrade(ctx, t) })
	return nil
}

func (a *Async) LogSnapshot(_ context.Context, s domain.SnapshotRecord) error {
	a.enqueue("snapshot", func(ctx context.Context) error { return a.inner.LogSnapshot(ctx, s) })
	return nil
}

func (a *Async) OpenPosition(_ context.Context, p domain.Position) error {
	a.enqueue("open_position", func(ctx context.Context) error { return a.inner.OpenPosition(ctx, p) })
	return nil
}

func (a *Async) ClosePosition(_ context.Context, c domain.PositionClose) error {
	a.enqueue("close_position", func(ctx context.Context) error { return a.inner.ClosePosition(ctx, c) })
	return nil
}

func (a *Async) UpdatePositionExtremes(_ context.Context, id string, high, low float64) error {
	a.enqueue("extremes", func(ctx context.Context) error { return a.inner.UpdatePositionExtremes(ctx, id, high, low) })
	return nil
}

// DailyStats reads through to the inner journal when it supports stats.
func (a *Async) DailyStats(ctx context.Context, day time.Time) (domain.DailyStats, error) {
	if r, ok := a.inner.(domain.StatsReader); ok {
		return r.DailyStats(ctx, day)
	}
	return domain.DailyStats{Date: day.UTC().Format(time.DateOnly)}, nil
}

var (
	_ domain.Journal     = (*Async)(nil)
	_ domain.StatsReader = (*Async)(nil)
)
