package sqlite

// schemaSQL creates the journal tables. Safe to run repeatedly.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS decisions (
    id               TEXT PRIMARY KEY,
    ts               INTEGER NOT NULL,
    strategy         TEXT NOT NULL,
    action           TEXT NOT NULL,
    symbol           TEXT,
    label            TEXT,
    instrument_id    TEXT,
    token_id         TEXT,
    outcome          TEXT,
    signals          TEXT,
    result           TEXT NOT NULL,
    rejection_reason TEXT,
    notes            TEXT
);

CREATE TABLE IF NOT EXISTS trades (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    decision_id   TEXT,
    ts            INTEGER NOT NULL,
    strategy      TEXT NOT NULL,
    side          TEXT NOT NULL,
    instrument_id TEXT,
    token_id      TEXT,
    outcome       TEXT,
    price         REAL NOT NULL,
    shares        REAL NOT NULL,
    notional      REAL NOT NULL,
    order_id      TEXT,
    status        TEXT,
    fill_price    REAL,
    fees          REAL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS positions (
    id             TEXT PRIMARY KEY,
    strategy       TEXT NOT NULL,
    symbol         TEXT,
    label          TEXT,
    instrument_id  TEXT,
    token_id       TEXT,
    outcome        TEXT,
    entry_price    REAL NOT NULL,
    entry_fair     REAL,
    entry_edge     REAL,
    shares         REAL NOT NULL,
    notional       REAL NOT NULL,
    entry_order_id TEXT,
    opened_at      INTEGER NOT NULL,
    status         TEXT NOT NULL DEFAULT 'open',
    peak_price     REAL,
    trough_price   REAL,
    exit_price     REAL,
    exit_reason    TEXT,
    exit_order_id  TEXT,
    realized_pnl   REAL,
    hold_seconds   REAL,
    closed_at      INTEGER
);

CREATE TABLE IF NOT EXISTS snapshots (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    decision_id   TEXT,
    ts            INTEGER NOT NULL,
    strategy      TEXT NOT NULL,
    symbol        TEXT,
    instrument_id TEXT,
    reference     REAL,
    baseline      REAL,
    up_bid        REAL,
    up_ask        REAL,
    down_bid      REAL,
    down_ask      REAL,
    fair_up       REAL,
    fair_down     REAL,
    time_left_s   REAL
);

CREATE TABLE IF NOT EXISTS daily_stats (
    date           TEXT PRIMARY KEY,
    total_trades   INTEGER NOT NULL DEFAULT 0,
    winning_trades INTEGER NOT NULL DEFAULT 0,
    losing_trades  INTEGER NOT NULL DEFAULT 0,
    total_pnl      REAL NOT NULL DEFAULT 0,
    gross_profit   REAL NOT NULL DEFAULT 0,
    gross_loss     REAL NOT NULL DEFAULT 0,
    best_trade     REAL NOT NULL DEFAULT 0,
    worst_trade    REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_decisions_strategy ON decisions(strategy);
CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
CREATE INDEX IF NOT EXISTS idx_positions_strategy ON positions(strategy);
`
