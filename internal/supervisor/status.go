package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/executor"
	"github.com/alanyoungcy/updownbot/internal/fairvalue"
	"github.com/alanyoungcy/updownbot/internal/risk"
)

// PositionStatus is an open position valued at the current bid.
type PositionStatus struct {
	ID            string  `json:"id"`
	Outcome       string  `json:"outcome"`
	EntryPrice    float64 `json:"entry_price"`
	Bid           float64 `json:"bid"`
	HighWater     float64 `json:"high_water"`
	Shares        float64 `json:"shares"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Status        string  `json:"status"`
}

// InstrumentStatus is one line of the status report.
type InstrumentStatus struct {
	Symbol         string          `json:"symbol"`
	InstrumentID   string          `json:"instrument_id"`
	Slug           string          `json:"slug"`
	TimeLeft       float64         `json:"time_left_s"`
	Reference      float64         `json:"reference"`
	Baseline       float64         `json:"baseline"`
	MovePct        float64         `json:"move_pct"`
	UpBid          float64         `json:"up_bid"`
	UpAsk          float64         `json:"up_ask"`
	DownBid        float64         `json:"down_bid"`
	DownAsk        float64         `json:"down_ask"`
	FairUp         float64         `json:"fair_up"`
	FairDown       float64         `json:"fair_down"`
	Edge           float64         `json:"edge"`
	EdgeSide       string          `json:"edge_side,omitempty"`
	Ready          bool            `json:"ready"`
	ReferenceTicks int64           `json:"reference_ticks"`
	BookTicks      int64           `json:"book_ticks"`
	Position       *PositionStatus `json:"position,omitempty"`
}

// Status is the periodic report of one strategy instance.
type Status struct {
	Strategy       string             `json:"strategy"`
	Time           time.Time          `json:"time"`
	Uptime         float64            `json:"uptime_s"`
	Instruments    []InstrumentStatus `json:"instruments"`
	ReferenceTicks int64              `json:"reference_ticks"`
	BookMessages   int64              `json:"book_messages"`
	TicksPerSec    float64            `json:"ticks_per_sec"`
	Decisions      executor.Stats     `json:"decisions"`
	Risk           risk.Status        `json:"risk"`
}

// Snapshot builds a report without publishing it.
func (s *Supervisor) Snapshot() Status {
	now := s.now()
	cfg := s.coord.Config()
	model := s.coord.Model()

	positions := make(map[string]domain.Position)
	for _, p := range s.coord.Positions() {
		positions[p.Symbol] = p
	}

	st := Status{
		Strategy:  s.coord.Strategy(),
		Time:      now.UTC(),
		Uptime:    now.Sub(s.started).Seconds(),
		Decisions: s.coord.Stats(),
		Risk:      s.gate.GetStatus(),
	}
	for _, ms := range s.board.Snapshots() {
		fairUp, fairDown := model.Evaluate(ms)
		line := InstrumentStatus{
			Symbol:       ms.Symbol,
			InstrumentID: ms.ID,
			Slug:         ms.Slug,
			TimeLeft:     ms.TimeLeft(now).Seconds(),
			Reference:    ms.Reference,
			Baseline:     ms.Baseline,
			MovePct:      ms.Move() * 100,
			UpBid:        ms.UpBid,
			UpAsk:        ms.UpAsk,
			DownBid:      ms.DownBid,
			DownAsk:      ms.DownAsk,
			FairUp:       fairUp,
			FairDown:     fairDown,
			Ready:        ms.HasData(cfg.MinReferenceTicks),

			ReferenceTicks: ms.ReferenceTicks,
			BookTicks:      ms.BookTicks,
		}
		if opp, ok := model.Detect(ms); ok {
			line.Edge = opp.Edge
			line.EdgeSide = string(opp.Outcome)
		} else {
			upEdge, downEdge := fairvalue.Edges(ms, fairUp, fairDown)
			line.Edge = max(upEdge, downEdge)
		}
		if p, ok := positions[ms.Symbol]; ok {
			bid := p.LastBid
			if b := ms.ExitBid(p.Outcome); p.InstrumentID == ms.ID && b > 0 {
				bid = b
			}
			line.Position = &PositionStatus{
				ID:            p.ID,
				Outcome:       string(p.Outcome),
				EntryPrice:    p.EntryPrice,
				Bid:           bid,
				HighWater:     p.HighWater,
				Shares:        p.Shares,
				UnrealizedPnL: p.UnrealizedPnL(bid),
				Status:        string(p.Status),
			}
		}
		st.Instruments = append(st.Instruments, line)
	}

	bs := s.board.Stats()
	st.ReferenceTicks = bs.ReferenceTicks
	st.BookMessages = bs.BookMessages

	s.mu.Lock()
	if elapsed := now.Sub(s.lastReport).Seconds(); elapsed > 0 {
		st.TicksPerSec = float64(bs.ReferenceTicks-s.lastTicks) / elapsed
	}
	s.mu.Unlock()
	return st
}

// Report logs the status lines, mirrors state to the cache and sends the
// report to every sink.
func (s *Supervisor) Report(ctx context.Context) Status {
	st := s.Snapshot()

	s.mu.Lock()
	s.latest = st
	s.lastTicks = st.ReferenceTicks
	s.lastReport = st.Time
	s.mu.Unlock()

	for _, line := range st.Instruments {
		attrs := []any{
			slog.String("symbol", line.Symbol),
			slog.String("time_left", formatLeft(line.TimeLeft)),
			slog.String("up", fmt.Sprintf("%.2f/%.2f", line.UpBid, line.UpAsk)),
			slog.String("down", fmt.Sprintf("%.2f/%.2f", line.DownBid, line.DownAsk)),
			slog.String("move_pct", fmt.Sprintf("%+.3f", line.MovePct)),
			slog.String("edge", fmt.Sprintf("%+.3f", line.Edge)),
		}
		if line.InstrumentID == "" {
			attrs = append(attrs, slog.Bool("instrument", false))
		}
		if p := line.Position; p != nil {
			attrs = append(attrs,
				slog.String("position", p.Outcome),
				slog.String("pnl", fmt.Sprintf("%+.2f", p.UnrealizedPnL)),
			)
		}
		s.logger.InfoContext(ctx, "market", attrs...)
	}
	s.logger.InfoContext(ctx, "status",
		slog.Int64("ticks", st.ReferenceTicks),
		slog.String("ticks_per_sec", fmt.Sprintf("%.1f", st.TicksPerSec)),
		slog.Int64("edge_checks", st.Decisions.EdgeChecks),
		slog.Int64("trades", st.Decisions.Entries),
		slog.Int64("exits", st.Decisions.Exits),
		slog.Int("open_positions", st.Risk.Positions),
		slog.Int("orders_in_flight", st.Risk.InFlight),
		slog.String("daily_pnl", fmt.Sprintf("%+.2f", st.Risk.DailyPnL)),
		slog.Bool("halted", st.Risk.Halted),
	)

	if s.states != nil {
		for _, ms := range s.board.Snapshots() {
			if ms.ID == "" {
				continue
			}
			if err := s.states.SetState(ctx, st.Strategy, ms); err != nil {
				s.logger.DebugContext(ctx, "state cache update failed", slog.String("error", err.Error()))
				break
			}
		}
	}
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, st); err != nil {
			s.logger.DebugContext(ctx, "status sink failed", slog.String("error", err.Error()))
		}
	}
	return st
}

// Latest returns the most recent report. Before the first report it builds
// a fresh one.
func (s *Supervisor) Latest() Status {
	s.mu.Lock()
	st := s.latest
	s.mu.Unlock()
	if st.Time.IsZero() {
		return s.Snapshot()
	}
	return st
}

// Summary logs the shutdown summary.
func (s *Supervisor) Summary(ctx context.Context) {
	st := s.Snapshot()
	attrs := []any{
		slog.Duration("uptime", time.Duration(st.Uptime*float64(time.Second)).Round(time.Second)),
		slog.Int64("ticks", st.ReferenceTicks),
		slog.Int64("book_messages", st.BookMessages),
		slog.Int64("edge_checks", st.Decisions.EdgeChecks),
		slog.Int64("entries", st.Decisions.Entries),
		slog.Int64("dry_runs", st.Decisions.DryRuns),
		slog.Int64("rejections", st.Decisions.Rejections),
		slog.Int64("exits", st.Decisions.Exits),
		slog.Int64("stuck_exits", st.Decisions.StuckExits),
		slog.Int("open_positions", len(s.coord.Positions())),
		slog.String("daily_pnl", fmt.Sprintf("%+.2f", st.Risk.DailyPnL)),
	}
	if s.stats != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		day, err := s.stats.DailyStats(ctx, st.Time)
		cancel()
		if err == nil {
			attrs = append(attrs,
				slog.Int("journal_trades", day.TotalTrades),
				slog.Int("journal_wins", day.WinningTrades),
				slog.Int("journal_losses", day.LosingTrades),
				slog.String("journal_pnl", fmt.Sprintf("%+.2f", day.TotalPnL)),
			)
		}
	}
	s.logger.InfoContext(ctx, "session summary", attrs...)
}

func formatLeft(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
