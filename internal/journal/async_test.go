package journal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/store/sqlite"
)

type recorder struct {
	mu     sync.Mutex
	ops    []string
	closed bool
	block  chan struct{}
	fail   bool
}

func (r *recorder) add(name string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, name)
	if r.fail {
		return errors.New("disk full")
	}
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

func (r *recorder) LogDecision(context.Context, domain.Decision) error { return r.add("decision") }
func (r *recorder) LogTrade(context.Context, domain.TradeRecord) error { return r.add("trade") }
func (r *recorder) LogSnapshot(context.Context, domain.SnapshotRecord) error {
	return r.add("snapshot")
}
func (r *recorder) OpenPosition(context.Context, domain.Position) error { return r.add("open") }
func (r *recorder) ClosePosition(context.Context, domain.PositionClose) error {
	return r.add("close")
}
func (r *recorder) UpdatePositionExtremes(context.Context, string, float64, float64) error {
	return r.add("extremes")
}
func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAsyncAppliesInOrder(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, 16, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = a.Run(ctx); close(done) }()

	ctx0 := context.Background()
	require.NoError(t, a.LogDecision(ctx0, domain.Decision{ID: "d1"}))
	require.NoError(t, a.LogSnapshot(ctx0, domain.SnapshotRecord{}))
	require.NoError(t, a.LogTrade(ctx0, domain.TradeRecord{}))
	require.NoError(t, a.OpenPosition(ctx0, domain.Position{ID: "p1"}))
	require.NoError(t, a.UpdatePositionExtremes(ctx0, "p1", 0.6, 0.4))
	require.NoError(t, a.ClosePosition(ctx0, domain.PositionClose{ID: "p1"}))

	want := []string{"decision", "snapshot", "trade", "open", "extremes", "close"}
	assert.Eventually(t, func() bool { return len(rec.names()) == len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, rec.names())

	cancel()
	<-done
	require.NoError(t, a.Close())
	assert.True(t, rec.closed)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, 2, testLogger())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, a.LogDecision(ctx, domain.Decision{}))
	}
	// No Run goroutine: Close flushes what fit in the queue.
	require.NoError(t, a.Close())
	assert.Len(t, rec.names(), 2)

	require.NoError(t, a.LogTrade(ctx, domain.TradeRecord{}))
	assert.Len(t, rec.names(), 2, "writes after close are dropped")
	require.NoError(t, a.Close())
}

func TestAsyncDoesNotBlockCaller(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	a := NewAsync(rec, 4, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, a.LogDecision(context.Background(), domain.Decision{}))
	}
	assert.Less(t, time.Since(start), time.Second)
	close(rec.block)
}

func TestAsyncSurvivesWriteErrors(t *testing.T) {
	rec := &recorder{fail: true}
	a := NewAsync(rec, 4, testLogger())
	require.NoError(t, a.LogDecision(context.Background(), domain.Decision{}))
	require.NoError(t, a.LogTrade(context.Background(), domain.TradeRecord{}))
	require.NoError(t, a.Close())
	assert.Equal(t, []string{"decision", "trade"}, rec.names())
}

func TestAsyncDailyStatsReadsThrough(t *testing.T) {
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	a := NewAsync(db, 4, testLogger())
	day := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, a.ClosePosition(context.Background(), domain.PositionClose{ID: "x", RealizedPnL: 1.5, ClosedAt: day}))
	a.drain(context.Background())

	st, err := a.DailyStats(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalTrades)
	assert.InDelta(t, 1.5, st.TotalPnL, 1e-9)
	require.NoError(t, a.Close())

	plain := NewAsync(&recorder{}, 1, testLogger())
	st, err = plain.DailyStats(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01", st.Date)
}
