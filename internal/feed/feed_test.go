package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/platform/binance"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTrades struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTrades) Stream(ctx context.Context, coins []string, handle binance.TickHandler) error {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	handle(domain.ReferenceTick{Symbol: coins[0], Price: float64(n)})
	if n < 3 {
		return errors.New("dropped")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestReferenceFeedReconnects(t *testing.T) {
	src := &fakeTrades{}
	ticks := make(chan domain.ReferenceTick, 8)
	f := NewReferenceFeed(src, []string{"BTC"}, func(_ context.Context, tk domain.ReferenceTick) { ticks <- tk },
		testLogger(), WithReconnectDelay(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.Run(ctx) }()

	for want := 1.0; want <= 3; want++ {
		select {
		case tk := <-ticks:
			assert.Equal(t, want, tk.Price)
		case <-time.After(2 * time.Second):
			t.Fatal("missing tick")
		}
	}
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

type fakeTokens struct {
	mu      sync.Mutex
	tokens  []string
	changed chan struct{}
}

func newFakeTokens(tokens ...string) *fakeTokens {
	return &fakeTokens{tokens: tokens, changed: make(chan struct{})}
}

func (f *fakeTokens) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func (f *fakeTokens) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

func (f *fakeTokens) set(tokens ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = tokens
	close(f.changed)
	f.changed = make(chan struct{})
}

type fakeBooks struct {
	subs chan []string
	fail bool
}

func (f *fakeBooks) Stream(ctx context.Context, tokens []string, handle polymarket.BookHandler, stop <-chan struct{}) error {
	f.subs <- tokens
	handle(domain.BookUpdate{TokenID: tokens[0], Bid: 0.5, HasBid: true})
	if f.fail {
		return errors.New("dropped")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return nil
	}
}

func TestBookFeedResubscribesOnChange(t *testing.T) {
	tokens := newFakeTokens()
	src := &fakeBooks{subs: make(chan []string, 4)}
	updates := make(chan domain.BookUpdate, 4)
	f := NewBookFeed(src, tokens, func(_ context.Context, u domain.BookUpdate) { updates <- u },
		testLogger(), WithIdleDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.Run(ctx) }()

	// Empty token set waits; the change wakes it.
	tokens.set("up1", "dn1")
	require.Equal(t, []string{"up1", "dn1"}, <-src.subs)
	assert.Equal(t, "up1", (<-updates).TokenID)

	tokens.set("up2", "dn2")
	select {
	case got := <-src.subs:
		assert.Equal(t, []string{"up2", "dn2"}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no resubscribe")
	}

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestBookFeedReconnectsAfterError(t *testing.T) {
	tokens := newFakeTokens("a", "b")
	src := &fakeBooks{subs: make(chan []string, 8), fail: true}
	f := NewBookFeed(src, tokens, func(context.Context, domain.BookUpdate) {}, testLogger(),
		WithReconnectDelay(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case got := <-src.subs:
			assert.Equal(t, []string{"a", "b"}, got)
		case <-time.After(2 * time.Second):
			t.Fatal("no reconnect")
		}
	}
	cancel()
	// Drain so a pending Stream call is not blocked on a full channel.
	go func() {
		for range src.subs {
		}
	}()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
