// Package supervisor keeps a strategy instance's instruments current and
// reports on it: discovery at startup, forced exits and rollover near expiry,
// periodic rediscovery, and the status line.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/executor"
	"github.com/alanyoungcy/updownbot/internal/market"
	"github.com/alanyoungcy/updownbot/internal/risk"
)

// Discoverer finds the live instrument for a symbol.
type Discoverer interface {
	Discover(ctx context.Context, symbol string) (domain.Instrument, error)
}

// Config holds the loop timings.
type Config struct {
	StatusInterval  time.Duration
	CheckInterval   time.Duration
	RefreshInterval time.Duration
	ExpiryWindow    time.Duration
	RolloverDelay   time.Duration
	ArchiveInterval time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		StatusInterval:  10 * time.Second,
		CheckInterval:   5 * time.Second,
		RefreshInterval: 10 * time.Minute,
		ExpiryWindow:    5 * time.Second,
		RolloverDelay:   10 * time.Second,
		ArchiveInterval: 5 * time.Minute,
	}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// WithSink adds a destination for every status report.
func WithSink(sink Sink) Option {
	return func(s *Supervisor) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// WithStateCache mirrors each instrument's fused state on every report.
func WithStateCache(c domain.StateCache) Option {
	return func(s *Supervisor) { s.states = c }
}

// WithArchive uploads the latest status to object storage every
// ArchiveInterval under prefix.
func WithArchive(w domain.BlobWriter, prefix string) Option {
	return func(s *Supervisor) {
		s.archive = w
		s.archivePrefix = prefix
	}
}

// WithStats adds the journal's daily aggregates to the final summary.
func WithStats(r domain.StatsReader) Option {
	return func(s *Supervisor) { s.stats = r }
}

// Supervisor runs the status and refresh loops of one strategy instance.
type Supervisor struct {
	cfg    Config
	coord  *executor.Coordinator
	board  *market.Board
	gate   *risk.Gate
	disc   Discoverer
	logger *slog.Logger
	now    func() time.Time

	sinks         []Sink
	states        domain.StateCache
	archive       domain.BlobWriter
	archivePrefix string
	stats         domain.StatsReader

	started time.Time

	// Refresh state; only the Run goroutine touches it.
	pending     map[string]time.Time // symbol -> rediscover at
	lastRefresh time.Time

	mu         sync.Mutex
	latest     Status
	lastTicks  int64
	lastReport time.Time
}

// New creates a Supervisor for coord, which must trade on board.
func New(cfg Config, coord *executor.Coordinator, gate *risk.Gate, disc Discoverer, logger *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		coord:   coord,
		board:   coord.Board(),
		gate:    gate,
		disc:    disc,
		logger:  logger.With(slog.String("component", "supervisor"), slog.String("strategy", coord.Strategy())),
		now:     time.Now,
		pending: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	s.started = s.now()
	s.lastReport = s.started
	return s
}

// Bootstrap discovers every symbol's instrument and takes over this
// strategy's ledger entries. Symbols without an instrument are retried by the
// refresh loop. Only a cancelled ctx is an error.
func (s *Supervisor) Bootstrap(ctx context.Context) error {
	now := s.now()
	s.lastRefresh = now
	found := 0
	for _, sym := range s.board.Symbols() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.rediscover(ctx, sym) {
			found++
			continue
		}
		s.pending[sym] = now.Add(s.cfg.RolloverDelay)
	}
	if found == 0 {
		s.logger.WarnContext(ctx, "no active instruments at startup, retrying in the refresh loop",
			slog.Int("symbols", len(s.board.Symbols())),
		)
	}
	s.releaseOrphans(ctx)
	return nil
}

// releaseOrphans drops ledger entries of this strategy whose instrument is
// no longer tracked, once every symbol has a live instrument. Their markets
// have settled, so nothing remains to sell.
func (s *Supervisor) releaseOrphans(ctx context.Context) {
	if len(s.pending) > 0 {
		return
	}
	held := make(map[string]bool)
	for _, p := range s.coord.Positions() {
		held[p.ID] = true
	}
	live := make(map[string]bool)
	for _, st := range s.board.Snapshots() {
		live[st.ID] = true
	}
	for _, e := range s.gate.Positions() {
		// Entries on a live instrument may belong to an entry still in flight.
		if e.Strategy != s.coord.Strategy() || held[e.ID] || live[e.InstrumentID] {
			continue
		}
		s.logger.WarnContext(ctx, "releasing orphaned ledger entry",
			slog.String("position_id", e.ID),
			slog.String("instrument_id", e.InstrumentID),
			slog.String("label", e.Label),
			slog.Float64("notional", e.Notional),
		)
		s.gate.ClosePosition(e.ID, e.EntryPrice, 0)
	}
}

// Run drives the status, refresh and archive loops until ctx is cancelled,
// then logs the final summary.
func (s *Supervisor) Run(ctx context.Context) error {
	status := time.NewTicker(s.cfg.StatusInterval)
	defer status.Stop()
	check := time.NewTicker(s.cfg.CheckInterval)
	defer check.Stop()

	var archiveC <-chan time.Time
	if s.archive != nil && s.cfg.ArchiveInterval > 0 {
		t := time.NewTicker(s.cfg.ArchiveInterval)
		defer t.Stop()
		archiveC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			s.Summary(context.WithoutCancel(ctx))
			return nil
		case <-status.C:
			s.Report(ctx)
		case <-check.C:
			s.Refresh(ctx)
		case <-archiveC:
			if err := s.Archive(ctx); err != nil {
				s.logger.WarnContext(ctx, "status archive failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Refresh force-closes positions on instruments about to expire, schedules
// their rediscovery, runs due rediscoveries and the periodic refresh.
func (s *Supervisor) Refresh(ctx context.Context) {
	now := s.now()
	s.coord.Cleanup()

	for _, st := range s.board.Snapshots() {
		if _, waiting := s.pending[st.Symbol]; waiting {
			continue
		}
		if st.ID == "" {
			s.pending[st.Symbol] = now
			continue
		}
		if st.Expiry.IsZero() || st.Expiry.Sub(now) > s.cfg.ExpiryWindow {
			continue
		}
		s.logger.InfoContext(ctx, "instrument expiring",
			slog.String("symbol", st.Symbol),
			slog.String("instrument_id", st.ID),
			slog.Duration("time_left", st.TimeLeft(now)),
		)
		if s.coord.ForceClose(ctx, st.Symbol) {
			s.logger.InfoContext(ctx, "force-closed position before expiry", slog.String("symbol", st.Symbol))
		}
		s.pending[st.Symbol] = now.Add(s.cfg.RolloverDelay)
	}

	for _, sym := range s.board.Symbols() {
		at, ok := s.pending[sym]
		if !ok || now.Before(at) {
			continue
		}
		if s.rediscover(ctx, sym) {
			delete(s.pending, sym)
		} else {
			s.pending[sym] = now.Add(s.cfg.RolloverDelay)
		}
	}

	if s.cfg.RefreshInterval > 0 && now.Sub(s.lastRefresh) >= s.cfg.RefreshInterval {
		s.lastRefresh = now
		for _, sym := range s.board.Symbols() {
			if _, waiting := s.pending[sym]; !waiting {
				s.rediscover(ctx, sym)
			}
		}
	}
	s.releaseOrphans(ctx)
}

// rediscover looks up sym and swaps the instrument in when its id changed.
// It reports whether sym now has a live instrument.
func (s *Supervisor) rediscover(ctx context.Context, sym string) bool {
	inst, err := s.disc.Discover(ctx, sym)
	if err != nil {
		s.logger.WarnContext(ctx, "instrument discovery failed",
			slog.String("symbol", sym),
			slog.String("error", err.Error()),
		)
		return false
	}
	now := s.now()
	if !inst.Expiry.IsZero() && inst.Expiry.Sub(now) <= s.cfg.ExpiryWindow {
		s.logger.DebugContext(ctx, "discovered instrument already expiring",
			slog.String("symbol", sym),
			slog.String("instrument_id", inst.ID),
		)
		return false
	}

	cur, _ := s.board.Snapshot(sym)
	if cur.ID == inst.ID {
		return true
	}
	if cur.ID != "" {
		s.coord.ForceClose(ctx, sym)
	}
	s.board.Replace(inst)
	s.logger.InfoContext(ctx, "instrument attached",
		slog.String("symbol", sym),
		slog.String("instrument_id", inst.ID),
		slog.String("previous_id", cur.ID),
		slog.String("slug", inst.Slug),
		slog.Time("expiry", inst.Expiry),
	)
	if ids := s.coord.Adopt(s.gate.Positions()); len(ids) > 0 {
		s.logger.InfoContext(ctx, "resumed positions", slog.Int("count", len(ids)))
	}
	return true
}

// pendingSymbols returns the symbols awaiting rediscovery in board order.
// Only the Run goroutine touches pending.
func (s *Supervisor) pendingSymbols() []string {
	out := make([]string, 0, len(s.pending))
	for _, sym := range s.board.Symbols() {
		if _, ok := s.pending[sym]; ok {
			out = append(out, sym)
		}
	}
	return out
}
