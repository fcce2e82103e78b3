// Package feed keeps the reference-price and order-book streams connected and
// hands every decoded message to the trading loop.
package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/metrics"
	"github.com/alanyoungcy/updownbot/internal/platform/binance"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
)

const (
	// DefaultReconnectDelay is the pause after a dropped connection.
	DefaultReconnectDelay = 2 * time.Second
	// DefaultIdleDelay is how long the book feed waits for tokens to appear.
	DefaultIdleDelay = 5 * time.Second
)

// TradeSource streams reference trades over one connection.
type TradeSource interface {
	Stream(ctx context.Context, coins []string, handle binance.TickHandler) error
}

// BookSource streams top-of-book updates over one connection until stop is
// closed.
type BookSource interface {
	Stream(ctx context.Context, tokens []string, handle polymarket.BookHandler, stop <-chan struct{}) error
}

// TokenSet is the live set of outcome tokens to subscribe to.
type TokenSet interface {
	Tokens() []string
	// Changed returns a channel closed when Tokens changes.
	Changed() <-chan struct{}
}

// Option tunes a feed's timing.
type Option func(*timing)

type timing struct {
	reconnect time.Duration
	idle      time.Duration
}

// WithReconnectDelay overrides DefaultReconnectDelay.
func WithReconnectDelay(d time.Duration) Option {
	return func(t *timing) { t.reconnect = d }
}

// WithIdleDelay overrides DefaultIdleDelay.
func WithIdleDelay(d time.Duration) Option {
	return func(t *timing) { t.idle = d }
}

func newTiming(opts []Option) timing {
	t := timing{reconnect: DefaultReconnectDelay, idle: DefaultIdleDelay}
	for _, o := range opts {
		o(&t)
	}
	return t
}

// ReferenceFeed keeps the reference trade stream for a set of coins alive.
type ReferenceFeed struct {
	source TradeSource
	coins  []string
	onTick func(context.Context, domain.ReferenceTick)
	logger *slog.Logger
	timing timing
}

// NewReferenceFeed creates a feed for coins. onTick runs on the read
// goroutine and must not block for long.
func NewReferenceFeed(source TradeSource, coins []string, onTick func(context.Context, domain.ReferenceTick), logger *slog.Logger, opts ...Option) *ReferenceFeed {
	return &ReferenceFeed{
		source: source,
		coins:  coins,
		onTick: onTick,
		logger: logger.With(slog.String("component", "reference_feed")),
		timing: newTiming(opts),
	}
}

// Run streams until ctx is cancelled, reconnecting after every failure.
func (f *ReferenceFeed) Run(ctx context.Context) error {
	handle := func(tick domain.ReferenceTick) {
		metrics.FeedMessages.WithLabelValues("reference", "trade").Inc()
		f.onTick(ctx, tick)
	}
	for {
		f.logger.Info("reference feed connecting", slog.Any("coins", f.coins))
		err := f.source.Stream(ctx, f.coins, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.FeedReconnects.WithLabelValues("reference").Inc()
		f.logger.Warn("reference feed disconnected, reconnecting", slog.Any("error", err))
		if !sleep(ctx, f.timing.reconnect) {
			return ctx.Err()
		}
	}
}

// BookFeed keeps the order-book stream subscribed to the current token set
// and resubscribes whenever the set changes.
type BookFeed struct {
	source BookSource
	tokens TokenSet
	onBook func(context.Context, domain.BookUpdate)
	logger *slog.Logger
	timing timing
}

// NewBookFeed creates a book feed. onBook runs on the read goroutine.
func NewBookFeed(source BookSource, tokens TokenSet, onBook func(context.Context, domain.BookUpdate), logger *slog.Logger, opts ...Option) *BookFeed {
	return &BookFeed{
		source: source,
		tokens: tokens,
		onBook: onBook,
		logger: logger.With(slog.String("component", "book_feed")),
		timing: newTiming(opts),
	}
}

// Run streams until ctx is cancelled.
func (f *BookFeed) Run(ctx context.Context) error {
	handle := func(u domain.BookUpdate) {
		metrics.FeedMessages.WithLabelValues("book", "update").Inc()
		f.onBook(ctx, u)
	}
	for {
		// Take the change channel first so a swap between the two calls
		// still ends this subscription.
		changed := f.tokens.Changed()
		tokens := f.tokens.Tokens()
		if len(tokens) == 0 {
			f.logger.Debug("no tokens to subscribe, waiting")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-changed:
			case <-time.After(f.timing.idle):
			}
			continue
		}

		f.logger.Info("book feed subscribing", slog.Int("tokens", len(tokens)))
		err := f.source.Stream(ctx, tokens, handle, changed)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			f.logger.Info("token set changed, resubscribing")
			continue
		}
		metrics.FeedReconnects.WithLabelValues("book").Inc()
		f.logger.Warn("book feed disconnected, reconnecting", slog.String("error", err.Error()))
		if !sleep(ctx, f.timing.reconnect) {
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
