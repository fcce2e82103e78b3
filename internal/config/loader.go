package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies UPDOWN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyStrategyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyStrategyDefaults fills zero-valued strategy fields from
// DefaultStrategy. TOML array tables decode into fresh zero values, so the
// defaults cannot be pre-seeded the way scalar sections are. A missing
// trade_size falls back to risk.default_trade.
func applyStrategyDefaults(cfg *Config) {
	def := DefaultStrategy()
	if cfg.Risk.DefaultTrade > 0 {
		def.TradeSize = cfg.Risk.DefaultTrade
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = []StrategyConfig{def}
		return
	}
	for i := range cfg.Strategies {
		s := &cfg.Strategies[i]
		if len(s.Coins) == 0 {
			s.Coins = append([]string(nil), def.Coins...)
		}
		for j, c := range s.Coins {
			s.Coins[j] = strings.ToUpper(strings.TrimSpace(c))
		}
		fillFloat(&s.EdgeThreshold, def.EdgeThreshold)
		fillFloat(&s.TradeSize, def.TradeSize)
		fillFloat(&s.TakeProfit, def.TakeProfit)
		fillFloat(&s.StopLoss, def.StopLoss)
		fillFloat(&s.TrailingActivation, def.TrailingActivation)
		fillFloat(&s.TrailingGiveback, def.TrailingGiveback)
		fillFloat(&s.EntrySlippage, def.EntrySlippage)
		fillFloat(&s.MaxBuyPrice, def.MaxBuyPrice)
		fillFloat(&s.ExitSlippage, def.ExitSlippage)
		fillFloat(&s.ExitRetrySlippage, def.ExitRetrySlippage)
		fillDuration(&s.MinTimeLeft, def.MinTimeLeft)
		fillDuration(&s.EntryCooldown, def.EntryCooldown)
		fillDuration(&s.ClosingWindow, def.ClosingWindow)
		if s.MinReferenceTicks == 0 {
			s.MinReferenceTicks = def.MinReferenceTicks
		}
	}
}

func fillFloat(dst *float64, v float64) {
	if *dst == 0 {
		*dst = v
	}
}

func fillDuration(dst *duration, v duration) {
	if dst.Duration == 0 {
		*dst = v
	}
}

// applyEnvOverrides reads well-known UPDOWN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "UPDOWN_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.SafeAddress, "UPDOWN_WALLET_SAFE_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "UPDOWN_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "UPDOWN_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "UPDOWN_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "UPDOWN_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "UPDOWN_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "UPDOWN_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "UPDOWN_POLYMARKET_SIGNATURE_TYPE")
	setFloat64(&cfg.Polymarket.OrdersPerSec, "UPDOWN_POLYMARKET_ORDERS_PER_SEC")

	// ── Binance ──
	setStr(&cfg.Binance.WsHost, "UPDOWN_BINANCE_WS_HOST")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxTrade, "UPDOWN_RISK_MAX_TRADE")
	setInt(&cfg.Risk.MaxPositions, "UPDOWN_RISK_MAX_POSITIONS")
	setFloat64(&cfg.Risk.MaxTotalExposure, "UPDOWN_RISK_MAX_TOTAL_EXPOSURE")
	setFloat64(&cfg.Risk.DailyLossLimit, "UPDOWN_RISK_DAILY_LOSS_LIMIT")
	setInt(&cfg.Risk.DailyTradeLimit, "UPDOWN_RISK_DAILY_TRADE_LIMIT")
	setDuration(&cfg.Risk.TradeCooldown, "UPDOWN_RISK_TRADE_COOLDOWN")
	setDuration(&cfg.Risk.GlobalCooldown, "UPDOWN_RISK_GLOBAL_COOLDOWN")
	setStr(&cfg.Risk.StateFile, "UPDOWN_RISK_STATE_FILE")

	// ── Journal ──
	setStr(&cfg.Journal.Driver, "UPDOWN_JOURNAL_DRIVER")
	setStr(&cfg.Journal.SQLitePath, "UPDOWN_JOURNAL_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "UPDOWN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "UPDOWN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UPDOWN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UPDOWN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UPDOWN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UPDOWN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UPDOWN_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "UPDOWN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "UPDOWN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "UPDOWN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWN_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWN_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "UPDOWN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "UPDOWN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UPDOWN_S3_REGION")
	setStr(&cfg.S3.Bucket, "UPDOWN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "UPDOWN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UPDOWN_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "UPDOWN_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "UPDOWN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "UPDOWN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "UPDOWN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "UPDOWN_SERVER_API_KEY")
	setFloat64(&cfg.Server.RequestsPerSec, "UPDOWN_SERVER_REQUESTS_PER_SEC")
	setInt(&cfg.Server.Burst, "UPDOWN_SERVER_BURST")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "UPDOWN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "UPDOWN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "UPDOWN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "UPDOWN_MODE")
	setStr(&cfg.LogLevel, "UPDOWN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
