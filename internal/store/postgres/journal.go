package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Journal implements domain.Journal using PostgreSQL.
type Journal struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewJournal creates a Journal backed by the given connection pool. The
// schema must already be applied with RunMigrations.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool, now: time.Now}
}

// Close is a no-op; the pool belongs to the Client.
func (j *Journal) Close() error { return nil }

// LogDecision records an entry or exit decision.
func (j *Journal) LogDecision(ctx context.Context, d domain.Decision) error {
	signals, err := json.Marshal(d.Signals)
	if err != nil {
		return fmt.Errorf("postgres: encode signals: %w", err)
	}
	const q = `
		INSERT INTO decisions (id, ts, strategy, action, symbol, label, instrument_id,
			token_id, outcome, signals, result, rejection_reason, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`
	_, err = j.pool.Exec(ctx, q,
		d.ID, d.Time.UTC(), d.Strategy, string(d.Action), d.Symbol, d.Label, d.InstrumentID,
		d.TokenID, string(d.Outcome), signals, string(d.Result), d.RejectionReason, d.Notes,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert decision %s: %w", d.ID, err)
	}
	return nil
}

// LogTrade records a submitted order.
func (j *Journal) LogTrade(ctx context.Context, t domain.TradeRecord) error {
	const q = `
		INSERT INTO trades (decision_id, ts, strategy, side, instrument_id, token_id, outcome,
			price, shares, notional, order_id, status, fill_price, fees)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := j.pool.Exec(ctx, q,
		t.DecisionID, t.Time.UTC(), t.Strategy, string(t.Side), t.InstrumentID, t.TokenID, string(t.Outcome),
		t.Price, t.Shares, t.Notional, t.OrderID, string(t.Status), t.FillPrice, t.Fees,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade: %w", err)
	}
	return nil
}

// LogSnapshot records the fused book at decision time.
func (j *Journal) LogSnapshot(ctx context.Context, s domain.SnapshotRecord) error {
	const q = `
		INSERT INTO snapshots (decision_id, ts, strategy, symbol, instrument_id, reference, baseline,
			up_bid, up_ask, down_bid, down_ask, fair_up, fair_down, time_left_s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := j.pool.Exec(ctx, q,
		s.DecisionID, s.Time.UTC(), s.Strategy, s.Symbol, s.InstrumentID, s.Reference, s.Baseline,
		s.UpBid, s.UpAsk, s.DownBid, s.DownAsk, s.FairUp, s.FairDown, s.TimeLeft.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot: %w", err)
	}
	return nil
}

// OpenPosition upserts an open position with peak and trough at the entry
// price.
func (j *Journal) OpenPosition(ctx context.Context, p domain.Position) error {
	const q = `
		INSERT INTO positions (id, strategy, symbol, label, instrument_id, token_id, outcome,
			entry_price, entry_fair, entry_edge, shares, notional, entry_order_id, opened_at,
			status, peak_price, trough_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 'open', $8, $8)
		ON CONFLICT (id) DO UPDATE SET
			entry_price    = EXCLUDED.entry_price,
			shares         = EXCLUDED.shares,
			notional       = EXCLUDED.notional,
			entry_order_id = EXCLUDED.entry_order_id,
			status         = 'open'`
	_, err := j.pool.Exec(ctx, q,
		p.ID, p.Strategy, p.Symbol, p.Label, p.InstrumentID, p.TokenID, string(p.Outcome),
		p.EntryPrice, p.EntryFair, p.EntryEdge, p.Shares, p.Notional, p.OrderID, p.OpenedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
	}
	return nil
}

// ClosePosition marks a position closed and folds its PnL into the day's
// stats in one transaction. An unknown id still counts towards the stats.
func (j *Journal) ClosePosition(ctx context.Context, c domain.PositionClose) error {
	closedAt := c.ClosedAt
	if closedAt.IsZero() {
		closedAt = j.now()
	}
	closedAt = closedAt.UTC()

	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin close %s: %w", c.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var openedAt time.Time
	err = tx.QueryRow(ctx, `SELECT opened_at FROM positions WHERE id = $1 FOR UPDATE`, c.ID).Scan(&openedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("postgres: load position %s: %w", c.ID, err)
	default:
		const q = `
			UPDATE positions SET status = 'closed', exit_price = $1, exit_reason = $2,
				exit_order_id = $3, realized_pnl = $4, hold_seconds = $5, closed_at = $6
			WHERE id = $7`
		_, err = tx.Exec(ctx, q,
			c.ExitPrice, string(c.Reason), c.OrderID, c.RealizedPnL,
			closedAt.Sub(openedAt).Seconds(), closedAt, c.ID,
		)
		if err != nil {
			return fmt.Errorf("postgres: update position %s: %w", c.ID, err)
		}
	}

	if err := upsertDailyStats(ctx, tx, closedAt, c.RealizedPnL); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit close %s: %w", c.ID, err)
	}
	return nil
}

func upsertDailyStats(ctx context.Context, tx pgx.Tx, at time.Time, pnl float64) error {
	var win, loss int
	var profit, lossAmt float64
	if pnl > 0 {
		win, profit = 1, pnl
	} else if pnl < 0 {
		loss, lossAmt = 1, pnl
	}
	const q = `
		INSERT INTO daily_stats AS d (date, total_trades, winning_trades, losing_trades, total_pnl,
			gross_profit, gross_loss, best_trade, worst_trade)
		VALUES ($1, 1, $2, $3, $4, $5, $6, $4, $4)
		ON CONFLICT (date) DO UPDATE SET
			total_trades   = d.total_trades + 1,
			winning_trades = d.winning_trades + EXCLUDED.winning_trades,
			losing_trades  = d.losing_trades + EXCLUDED.losing_trades,
			total_pnl      = d.total_pnl + EXCLUDED.total_pnl,
			gross_profit   = d.gross_profit + EXCLUDED.gross_profit,
			gross_loss     = d.gross_loss + EXCLUDED.gross_loss,
			best_trade     = GREATEST(d.best_trade, EXCLUDED.best_trade),
			worst_trade    = LEAST(d.worst_trade, EXCLUDED.worst_trade)`
	if _, err := tx.Exec(ctx, q, utcDay(at), win, loss, pnl, profit, lossAmt); err != nil {
		return fmt.Errorf("postgres: upsert daily stats: %w", err)
	}
	return nil
}

// UpdatePositionExtremes widens the stored peak and trough of an open
// position.
func (j *Journal) UpdatePositionExtremes(ctx context.Context, id string, high, low float64) error {
	const q = `
		UPDATE positions SET
			peak_price   = GREATEST(COALESCE(peak_price, 0), $1),
			trough_price = LEAST(COALESCE(trough_price, 1), $2)
		WHERE id = $3 AND status = 'open'`
	if _, err := j.pool.Exec(ctx, q, high, low, id); err != nil {
		return fmt.Errorf("postgres: update extremes %s: %w", id, err)
	}
	return nil
}

// DailyStats returns the aggregated closes for the UTC day containing t.
func (j *Journal) DailyStats(ctx context.Context, t time.Time) (domain.DailyStats, error) {
	day := utcDay(t)
	st := domain.DailyStats{Date: day.Format(time.DateOnly)}
	const q = `
		SELECT total_trades, winning_trades, losing_trades, total_pnl, gross_profit, gross_loss,
			best_trade, worst_trade
		FROM daily_stats WHERE date = $1`
	err := j.pool.QueryRow(ctx, q, day).Scan(&st.TotalTrades, &st.WinningTrades, &st.LosingTrades,
		&st.TotalPnL, &st.GrossProfit, &st.GrossLoss, &st.BestTrade, &st.WorstTrade)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return domain.DailyStats{}, fmt.Errorf("postgres: daily stats %s: %w", st.Date, err)
	}
	return st, nil
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var (
	_ domain.Journal     = (*Journal)(nil)
	_ domain.StatsReader = (*Journal)(nil)
)
