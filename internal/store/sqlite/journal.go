// Package sqlite implements the trade journal on an embedded SQLite file
// using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Journal implements domain.Journal.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the journal at path with WAL enabled and the schema
// applied. ":memory:" gives a private in-memory journal.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One connection: SQLite has a single writer, and an in-memory database
	// exists per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (1)`); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// LogDecision records an entry or exit decision.
func (j *Journal) LogDecision(ctx context.Context, d domain.Decision) error {
	signals, err := json.Marshal(d.Signals)
	if err != nil {
		return fmt.Errorf("sqlite: encode signals: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO decisions (id, ts, strategy, action, symbol, label, instrument_id,
			token_id, outcome, signals, result, rejection_reason, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, millis(d.Time), d.Strategy, string(d.Action), d.Symbol, d.Label, d.InstrumentID,
		d.TokenID, string(d.Outcome), string(signals), string(d.Result), d.RejectionReason, d.Notes,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert decision %s: %w", d.ID, err)
	}
	return nil
}

// LogTrade records a submitted order.
func (j *Journal) LogTrade(ctx context.Context, t domain.TradeRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (decision_id, ts, strategy, side, instrument_id, token_id, outcome,
			price, shares, notional, order_id, status, fill_price, fees)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.DecisionID, millis(t.Time), t.Strategy, string(t.Side), t.InstrumentID, t.TokenID, string(t.Outcome),
		t.Price, t.Shares, t.Notional, t.OrderID, string(t.Status), t.FillPrice, t.Fees,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert trade: %w", err)
	}
	return nil
}

// LogSnapshot records the fused book at decision time.
func (j *Journal) LogSnapshot(ctx context.Context, s domain.SnapshotRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO snapshots (decision_id, ts, strategy, symbol, instrument_id, reference, baseline,
			up_bid, up_ask, down_bid, down_ask, fair_up, fair_down, time_left_s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.DecisionID, millis(s.Time), s.Strategy, s.Symbol, s.InstrumentID, s.Reference, s.Baseline,
		s.UpBid, s.UpAsk, s.DownBid, s.DownAsk, s.FairUp, s.FairDown, s.TimeLeft.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert snapshot: %w", err)
	}
	return nil
}

// OpenPosition records a new position. Peak and trough start at the entry
// price.
func (j *Journal) OpenPosition(ctx context.Context, p domain.Position) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO positions (id, strategy, symbol, label, instrument_id, token_id, outcome,
			entry_price, entry_fair, entry_edge, shares, notional, entry_order_id, opened_at,
			status, peak_price, trough_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'open', ?, ?)`,
		p.ID, p.Strategy, p.Symbol, p.Label, p.InstrumentID, p.TokenID, string(p.Outcome),
		p.EntryPrice, p.EntryFair, p.EntryEdge, p.Shares, p.Notional, p.OrderID, millis(p.OpenedAt),
		p.EntryPrice, p.EntryPrice,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert position %s: %w", p.ID, err)
	}
	return nil
}

// ClosePosition marks a position closed with its exit details and folds the
// realized PnL into the day's stats. An unknown id still counts towards the
// daily stats.
func (j *Journal) ClosePosition(ctx context.Context, c domain.PositionClose) error {
	closedAt := c.ClosedAt
	if closedAt.IsZero() {
		closedAt = j.now()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin close %s: %w", c.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	var openedAt int64
	err = tx.QueryRowContext(ctx, `SELECT opened_at FROM positions WHERE id = ?`, c.ID).Scan(&openedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("sqlite: load position %s: %w", c.ID, err)
	default:
		hold := closedAt.Sub(time.UnixMilli(openedAt)).Seconds()
		_, err = tx.ExecContext(ctx, `
			UPDATE positions SET status = 'closed', exit_price = ?, exit_reason = ?, exit_order_id = ?,
				realized_pnl = ?, hold_seconds = ?, closed_at = ?
			WHERE id = ?`,
			c.ExitPrice, string(c.Reason), c.OrderID, c.RealizedPnL, hold, millis(closedAt), c.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: update position %s: %w", c.ID, err)
		}
	}

	if err := upsertDailyStats(ctx, tx, closedAt, c.RealizedPnL); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit close %s: %w", c.ID, err)
	}
	return nil
}

func upsertDailyStats(ctx context.Context, tx *sql.Tx, at time.Time, pnl float64) error {
	var win, loss int
	var profit, lossAmt float64
	if pnl > 0 {
		win, profit = 1, pnl
	} else if pnl < 0 {
		loss, lossAmt = 1, pnl
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO daily_stats (date, total_trades, winning_trades, losing_trades, total_pnl,
			gross_profit, gross_loss, best_trade, worst_trade)
		VALUES (?, 1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_trades   = total_trades + 1,
			winning_trades = winning_trades + excluded.winning_trades,
			losing_trades  = losing_trades + excluded.losing_trades,
			total_pnl      = total_pnl + excluded.total_pnl,
			gross_profit   = gross_profit + excluded.gross_profit,
			gross_loss     = gross_loss + excluded.gross_loss,
			best_trade     = MAX(best_trade, excluded.best_trade),
			worst_trade    = MIN(worst_trade, excluded.worst_trade)`,
		at.UTC().Format(time.DateOnly), win, loss, pnl, profit, lossAmt, pnl, pnl,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert daily stats: %w", err)
	}
	return nil
}

// UpdatePositionExtremes widens the stored peak and trough of an open
// position.
func (j *Journal) UpdatePositionExtremes(ctx context.Context, id string, high, low float64) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE positions SET
			peak_price   = MAX(COALESCE(peak_price, 0), ?),
			trough_price = MIN(COALESCE(trough_price, 1), ?)
		WHERE id = ? AND status = 'open'`,
		high, low, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update extremes %s: %w", id, err)
	}
	return nil
}

// DailyStats returns the aggregated closes for the UTC day containing t.
func (j *Journal) DailyStats(ctx context.Context, t time.Time) (domain.DailyStats, error) {
	st := domain.DailyStats{Date: t.UTC().Format(time.DateOnly)}
	err := j.db.QueryRowContext(ctx, `
		SELECT total_trades, winning_trades, losing_trades, total_pnl, gross_profit, gross_loss,
			best_trade, worst_trade
		FROM daily_stats WHERE date = ?`, st.Date,
	).Scan(&st.TotalTrades, &st.WinningTrades, &st.LosingTrades, &st.TotalPnL,
		&st.GrossProfit, &st.GrossLoss, &st.BestTrade, &st.WorstTrade)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return domain.DailyStats{}, fmt.Errorf("sqlite: daily stats %s: %w", st.Date, err)
	}
	return st, nil
}

var _ domain.Journal = (*Journal)(nil)
