// Package config defines the top-level configuration for the up/down bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by UPDOWN_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Binance    BinanceConfig    `toml:"binance"`
	Risk       RiskConfig       `toml:"risk"`
	Strategies []StrategyConfig `toml:"strategies"`
	Refresh    RefreshConfig    `toml:"refresh"`
	Journal    JournalConfig    `toml:"journal"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	SafeAddress      string `toml:"safe_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string  `toml:"clob_host"`
	GammaHost     string  `toml:"gamma_host"`
	WsHost        string  `toml:"ws_host"`
	ChainID       int     `toml:"chain_id"`
	SignatureType int     `toml:"signature_type"`
	OrdersPerSec  float64 `toml:"orders_per_sec"`
	OrderBurst    int     `toml:"order_burst"`
}

// BinanceConfig holds the reference-price stream endpoint.
type BinanceConfig struct {
	WsHost string `toml:"ws_host"`
	Quote  string `toml:"quote"`
}

// RiskConfig holds the limits enforced by the shared risk gate. Amounts are
// in USDC, prices are outcome probabilities.
type RiskConfig struct {
	MinTrade         float64  `toml:"min_trade"`
	MaxTrade         float64  `toml:"max_trade"`
	// DefaultTrade is the trade_size of strategies that omit one.
	DefaultTrade     float64  `toml:"default_trade"`
	MaxPositions     int      `toml:"max_positions"`
	MaxPerMarket     float64  `toml:"max_per_market"`
	MaxTotalExposure float64  `toml:"max_total_exposure"`
	DailyLossLimit   float64  `toml:"daily_loss_limit"`
	DailyTradeLimit  int      `toml:"daily_trade_limit"`
	TradeCooldown    duration `toml:"trade_cooldown"`
	GlobalCooldown   duration `toml:"global_cooldown"`
	MinPrice         float64  `toml:"min_price"`
	MaxPrice         float64  `toml:"max_price"`
	StateFile        string   `toml:"state_file"`
}

// StrategyConfig holds one fair-value strategy instance. A positive
// sensitivity trades momentum, a negative one trades mean reversion.
type StrategyConfig struct {
	Name               string   `toml:"name"`
	Coins              []string `toml:"coins"`
	Sensitivity        float64  `toml:"sensitivity"`
	EdgeThreshold      float64  `toml:"edge_threshold"`
	TradeSize          float64  `toml:"trade_size"`
	TakeProfit         float64  `toml:"take_profit"`
	StopLoss           float64  `toml:"stop_loss"`
	DryRun             bool     `toml:"dry_run"`
	MinTimeLeft        duration `toml:"min_time_left"`
	EntryCooldown      duration `toml:"entry_cooldown"`
	ClosingWindow      duration `toml:"closing_window"`
	TrailingActivation float64  `toml:"trailing_activation"`
	TrailingGiveback   float64  `toml:"trailing_giveback"`
	MinReferenceTicks  int      `toml:"min_reference_ticks"`
	EntrySlippage      float64  `toml:"entry_slippage"`
	MaxBuyPrice        float64  `toml:"max_buy_price"`
	ExitSlippage       float64  `toml:"exit_slippage"`
	ExitRetrySlippage  float64  `toml:"exit_retry_slippage"`
}

// RefreshConfig controls the supervisor loops.
type RefreshConfig struct {
	StatusInterval duration `toml:"status_interval"`
	CheckInterval  duration `toml:"check_interval"`
	Interval       duration `toml:"interval"`
	ExpiryWindow   duration `toml:"expiry_window"`
	RolloverDelay  duration `toml:"rollover_delay"`
	Window         duration `toml:"window"`
}

// JournalConfig selects the audit journal backend.
type JournalConfig struct {
	// Driver is one of "sqlite", "postgres" or "none".
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
	QueueSize  int    `toml:"queue_size"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	Prefix          string   `toml:"prefix"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled        bool     `toml:"enabled"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	APIKey         string   `toml:"api_key"`
	RequestsPerSec float64  `toml:"requests_per_sec"`
	Burst          int      `toml:"burst"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// DefaultStrategy returns the momentum strategy used when the configuration
// file does not declare any [[strategies]].
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		Name:               "momentum",
		Coins:              []string{"BTC", "ETH", "SOL", "XRP"},
		Sensitivity:        300,
		EdgeThreshold:      0.04,
		TradeSize:          10,
		TakeProfit:         0.10,
		StopLoss:           0.08,
		MinTimeLeft:        duration{30 * time.Second},
		EntryCooldown:      duration{20 * time.Second},
		ClosingWindow:      duration{60 * time.Second},
		TrailingActivation: 0.05,
		TrailingGiveback:   0.03,
		MinReferenceTicks:  5,
		EntrySlippage:      0.02,
		MaxBuyPrice:        0.95,
		ExitSlippage:       0.01,
		ExitRetrySlippage:  0.03,
	}
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
			OrdersPerSec:  5,
			OrderBurst:    2,
		},
		Binance: BinanceConfig{
			WsHost: "wss://stream.binance.com:9443",
			Quote:  "USDT",
		},
		Risk: RiskConfig{
			MinTrade:         5,
			MaxTrade:         25,
			DefaultTrade:     10,
			MaxPositions:     10,
			MaxPerMarket:     50,
			MaxTotalExposure: 200,
			DailyLossLimit:   50,
			DailyTradeLimit:  50,
			TradeCooldown:    duration{30 * time.Second},
			GlobalCooldown:   duration{5 * time.Second},
			MinPrice:         0.05,
			MaxPrice:         0.95,
			StateFile:        "risk_state.json",
		},
		Refresh: RefreshConfig{
			StatusInterval: duration{10 * time.Second},
			CheckInterval:  duration{5 * time.Second},
			Interval:       duration{10 * time.Minute},
			ExpiryWindow:   duration{5 * time.Second},
			RolloverDelay:  duration{10 * time.Second},
			Window:         duration{15 * time.Minute},
		},
		Journal: JournalConfig{
			Driver:     "sqlite",
			SQLitePath: "trade_journal.db",
			QueueSize:  1024,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			LockTTL:    duration{30 * time.Second},
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "updownbot",
			ForcePathStyle:  true,
			Prefix:          "status",
			ArchiveInterval: duration{15 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:        true,
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000"},
			RequestsPerSec: 10,
			Burst:          20,
		},
		Notify: NotifyConfig{
			Events: []string{"entry_filled", "position_closed", "position_stuck", "trading_halted"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":    true,
	"paper":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validJournalDrivers = map[string]bool{
	"sqlite":   true,
	"postgres": true,
	"none":     true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, paper, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet is only required when real orders are placed.
	if strings.EqualFold(c.Mode, "live") {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode live")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType < 0 || c.Polymarket.SignatureType > 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 0, 1 or 2, got %d", c.Polymarket.SignatureType))
	}
	if c.Polymarket.OrdersPerSec <= 0 {
		errs = append(errs, "polymarket: orders_per_sec must be > 0")
	}
	if c.Binance.WsHost == "" {
		errs = append(errs, "binance: ws_host must not be empty")
	}

	errs = append(errs, c.Risk.validate()...)

	if len(c.Strategies) == 0 {
		errs = append(errs, "strategies: at least one [[strategies]] entry is required")
	}
	names := make(map[string]bool, len(c.Strategies))
	for i, s := range c.Strategies {
		prefix := fmt.Sprintf("strategies[%d]", i)
		if s.Name == "" {
			errs = append(errs, prefix+": name must not be empty")
		} else if names[s.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate name %q", prefix, s.Name))
		}
		names[s.Name] = true
		errs = append(errs, s.validate(prefix)...)
	}

	if c.Refresh.CheckInterval.Duration <= 0 || c.Refresh.StatusInterval.Duration <= 0 {
		errs = append(errs, "refresh: check_interval and status_interval must be > 0")
	}
	if c.Refresh.Window.Duration <= 0 {
		errs = append(errs, "refresh: window must be > 0")
	}

	if !validJournalDrivers[strings.ToLower(c.Journal.Driver)] {
		errs = append(errs, fmt.Sprintf("journal: unknown driver %q (valid: sqlite, postgres, none)", c.Journal.Driver))
	}
	if strings.EqualFold(c.Journal.Driver, "sqlite") && c.Journal.SQLitePath == "" {
		errs = append(errs, "journal: sqlite_path must not be empty")
	}
	if strings.EqualFold(c.Journal.Driver, "postgres") {
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (r RiskConfig) validate() []string {
	var errs []string
	if r.MinTrade <= 0 || r.MaxTrade < r.MinTrade {
		errs = append(errs, "risk: require 0 < min_trade <= max_trade")
	}
	if r.MaxPositions < 1 {
		errs = append(errs, "risk: max_positions must be >= 1")
	}
	if r.MaxPerMarket <= 0 || r.MaxTotalExposure <= 0 {
		errs = append(errs, "risk: max_per_market and max_total_exposure must be > 0")
	}
	if r.DailyLossLimit <= 0 {
		errs = append(errs, "risk: daily_loss_limit must be > 0")
	}
	if r.DailyTradeLimit < 1 {
		errs = append(errs, "risk: daily_trade_limit must be >= 1")
	}
	if r.MinPrice < 0 || r.MaxPrice > 1 || r.MinPrice >= r.MaxPrice {
		errs = append(errs, "risk: require 0 <= min_price < max_price <= 1")
	}
	return errs
}

func (s StrategyConfig) validate(prefix string) []string {
	var errs []string
	if len(s.Coins) == 0 {
		errs = append(errs, prefix+": coins must not be empty")
	}
	if s.Sensitivity == 0 {
		errs = append(errs, prefix+": sensitivity must be non-zero")
	}
	if s.EdgeThreshold <= 0 {
		errs = append(errs, prefix+": edge_threshold must be > 0")
	}
	if s.TradeSize <= 0 {
		errs = append(errs, prefix+": trade_size must be > 0")
	}
	if s.TakeProfit <= 0 || s.StopLoss <= 0 {
		errs = append(errs, prefix+": take_profit and stop_loss must be > 0")
	}
	if s.MaxBuyPrice <= 0 || s.MaxBuyPrice > 1 {
		errs = append(errs, prefix+": max_buy_price must be in (0, 1]")
	}
	return errs
}
