package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/executor"
	"github.com/alanyoungcy/updownbot/internal/feed"
	"github.com/alanyoungcy/updownbot/internal/market"
	"github.com/alanyoungcy/updownbot/internal/platform/binance"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
	"github.com/alanyoungcy/updownbot/internal/risk"
	"github.com/alanyoungcy/updownbot/internal/server"
	"github.com/alanyoungcy/updownbot/internal/server/handler"
	"github.com/alanyoungcy/updownbot/internal/server/ws"
	"github.com/alanyoungcy/updownbot/internal/supervisor"
)

const (
	defaultLockTTL  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// instance is one strategy with its board, coordinator and supervisor.
type instance struct {
	name  string
	board *market.Board
	coord *executor.Coordinator
	sup   *supervisor.Supervisor
}

// newPlacer returns the order placer for mode. Live mode derives CLOB
// credentials and registers a cancel-all on shutdown.
func (a *App) newPlacer(ctx context.Context, mode string) (executor.OrderPlacer, error) {
	if mode != "live" {
		return executor.NewPaperPlacer(a.logger), nil
	}

	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, err
	}
	signer, err := crypto.NewSigner(key, a.cfg.Polymarket.ChainID)
	if err != nil {
		return nil, err
	}
	clob := polymarket.NewClobClient(a.cfg.Polymarket.ClobHost, signer, a.cfg.Wallet.SafeAddress, a.cfg.Polymarket.SignatureType)
	if _, err := clob.DeriveAPIKey(ctx); err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	a.logger.InfoContext(ctx, "clob credentials derived", slog.String("address", signer.Address().Hex()))

	a.closers = append(a.closers, func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := clob.CancelAll(cctx); err != nil {
			a.logger.Warn("cancel all orders failed", slog.String("error", err.Error()))
			return
		}
		a.logger.Info("cancelled all open orders")
	})

	return executor.NewClobPlacer(clob, a.cfg.Polymarket.OrdersPerSec, a.cfg.Polymarket.OrderBurst, a.logger), nil
}

// runInstances builds every configured strategy around one shared risk gate
// and runs feeds, supervisors, the journal writer, notifications and the HTTP
// surface until ctx is cancelled.
func (a *App) runInstances(ctx context.Context, mode string, deps *Dependencies, placer executor.OrderPlacer) error {
	a.logger.InfoContext(ctx, "starting "+mode+" mode")

	g, ctx := errgroup.WithContext(ctx)

	// Monitor mode never trades, so it must not touch the persisted ledger.
	var gateOpts []risk.Option
	if mode != "monitor" && a.cfg.Risk.StateFile != "" {
		gateOpts = append(gateOpts, risk.WithStore(risk.NewFileStore(a.cfg.Risk.StateFile)))
	}
	gate := risk.New(riskConfig(a.cfg.Risk), a.logger, gateOpts...)

	gamma := polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost, polymarket.WithWindow(a.cfg.Refresh.Window.Duration))

	names := make([]string, 0, len(a.cfg.Strategies))
	channels := make([]string, 0, len(a.cfg.Strategies))
	for _, sc := range a.cfg.Strategies {
		names = append(names, sc.Name)
		channels = append(channels, supervisor.StatusChannel(sc.Name))
	}

	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:       mode,
			Strategies: names,
			Channels:   channels,
			StartedAt:  time.Now().UTC(),
		})
	}

	instances := make([]*instance, 0, len(a.cfg.Strategies))
	for _, sc := range a.cfg.Strategies {
		if deps.LockManager != nil {
			if err := a.holdLock(ctx, g, deps.LockManager, sc.Name); err != nil {
				return err
			}
		}
		instances = append(instances, a.newInstance(sc, mode, gate, placer, gamma, deps, hub))
	}

	for _, inst := range instances {
		if err := inst.sup.Bootstrap(ctx); err != nil {
			return err
		}
	}

	// One reference connection serves every strategy.
	ref := feed.NewReferenceFeed(
		binance.NewTradeStream(a.cfg.Binance.WsHost, a.cfg.Binance.Quote),
		referenceCoins(a.cfg.Strategies),
		func(ctx context.Context, tick domain.ReferenceTick) {
			for _, inst := range instances {
				inst.coord.OnReference(ctx, tick)
			}
		},
		a.logger,
	)
	g.Go(func() error {
		return ref.Run(ctx)
	})

	wsURL := marketWSURL(a.cfg.Polymarket.WsHost)
	for _, inst := range instances {
		log := a.logger.With(slog.String("strategy", inst.name))
		books := feed.NewBookFeed(polymarket.NewWSClient(wsURL, log), inst.board, inst.coord.OnBook, log)
		g.Go(func() error {
			return books.Run(ctx)
		})
		g.Go(func() error {
			return inst.sup.Run(ctx)
		})
	}

	if deps.Journal != nil {
		g.Go(func() error {
			return deps.Journal.Run(ctx)
		})
	}
	g.Go(func() error {
		return deps.Notifier.Run(ctx)
	})

	if hub != nil {
		sources := make([]handler.StatusSource, 0, len(instances))
		for _, inst := range instances {
			sources = append(sources, inst.sup)
		}
		a.startHTTPServer(ctx, g, mode, hub, gate, sources, deps.Stats())
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newInstance builds the board, coordinator and supervisor of one strategy.
func (a *App) newInstance(sc config.StrategyConfig, mode string, gate *risk.Gate, placer executor.OrderPlacer, disc supervisor.Discoverer, deps *Dependencies, hub *ws.Hub) *instance {
	logger := a.logger.With(slog.String("strategy", sc.Name))
	board := market.NewBoard(sc.Coins, time.Now)

	coordOpts := []executor.Option{executor.WithAlerter(deps.Notifier)}
	if deps.Journal != nil {
		coordOpts = append(coordOpts, executor.WithJournal(deps.Journal))
	}
	coord := executor.New(coordinatorConfig(sc, mode), board, gate, placer, logger, coordOpts...)

	var supOpts []supervisor.Option
	switch {
	case deps.SignalBus != nil:
		// The hub relays the bus channel, so publishing to both would
		// duplicate frames.
		supOpts = append(supOpts, supervisor.WithSink(supervisor.NewBusSink(deps.SignalBus)))
	case hub != nil:
		supOpts = append(supOpts, supervisor.WithSink(hubSink(hub)))
	}
	if deps.StateCache != nil {
		supOpts = append(supOpts, supervisor.WithStateCache(deps.StateCache))
	}
	if deps.BlobWriter != nil {
		supOpts = append(supOpts, supervisor.WithArchive(deps.BlobWriter, a.cfg.S3.Prefix))
	}
	if stats := deps.Stats(); stats != nil {
		supOpts = append(supOpts, supervisor.WithStats(stats))
	}
	sup := supervisor.New(supervisorConfig(a.cfg), coord, gate, disc, logger, supOpts...)

	logger.Info("strategy instance ready",
		slog.Any("coins", sc.Coins),
		slog.Float64("sensitivity", sc.Sensitivity),
		slog.Float64("edge_threshold", sc.EdgeThreshold),
		slog.Bool("dry_run", sc.DryRun),
	)
	return &instance{name: sc.Name, board: board, coord: coord, sup: sup}
}

// holdLock acquires the single-instance lock for strategy and keeps it alive
// from the run group. Losing the lock stops the bot.
func (a *App) holdLock(ctx context.Context, g *errgroup.Group, locks domain.LockManager, strategy string) error {
	ttl := a.cfg.Redis.LockTTL.Duration
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	key := instanceLockKey(strategy)
	lock, err := locks.Acquire(ctx, key, ttl)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: strategy %q is already running elsewhere: %w", strategy, err)
		}
		return fmt.Errorf("app: acquire instance lock: %w", err)
	}
	a.closers = append(a.closers, lock.Release)
	a.logger.InfoContext(ctx, "instance lock acquired", slog.String("key", key), slog.Duration("ttl", ttl))

	g.Go(func() error {
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				err := lock.Refresh(ctx, ttl)
				if errors.Is(err, domain.ErrLockHeld) {
					return fmt.Errorf("app: instance lock %s lost: %w", key, err)
				}
				if err != nil && ctx.Err() == nil {
					a.logger.WarnContext(ctx, "instance lock refresh failed",
						slog.String("key", key),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
	return nil
}

// startHTTPServer adds the HTTP server and the hub to g. The server is shut
// down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, mode string, hub *ws.Hub, gate *risk.Gate, sources []handler.StatusSource, stats domain.StatsReader) {
	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		APIKey:         a.cfg.Server.APIKey,
		RequestsPerSec: a.cfg.Server.RequestsPerSec,
		Burst:          a.cfg.Server.Burst,
	}, server.Handlers{
		Health: handler.NewHealthHandler(mode),
		Status: handler.NewStatusHandler(mode, sources, gate, stats, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// hubSink publishes reports straight to the hub when no bus is attached.
func hubSink(hub *ws.Hub) supervisor.Sink {
	return supervisor.SinkFunc(func(ctx context.Context, st supervisor.Status) error {
		payload, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("app: encode status: %w", err)
		}
		return hub.Publish(ctx, supervisor.StatusChannel(st.Strategy), payload)
	})
}

func instanceLockKey(strategy string) string {
	return "updown:instance:" + strategy
}

// referenceCoins is the union of all strategies' coins in first-seen order.
func referenceCoins(strategies []config.StrategyConfig) []string {
	seen := make(map[string]bool)
	var coins []string
	for _, s := range strategies {
		for _, c := range s.Coins {
			c = strings.ToUpper(c)
			if !seen[c] {
				seen[c] = true
				coins = append(coins, c)
			}
		}
	}
	return coins
}

// marketWSURL appends the market channel path to the CLOB WebSocket host.
func marketWSURL(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.HasSuffix(host, "/ws/market") {
		return host
	}
	return host + "/ws/market"
}

func riskConfig(c config.RiskConfig) risk.Config {
	return risk.Config{
		MinTrade:         c.MinTrade,
		MaxTrade:         c.MaxTrade,
		MaxPositions:     c.MaxPositions,
		MaxPerMarket:     c.MaxPerMarket,
		MaxTotalExposure: c.MaxTotalExposure,
		DailyLossLimit:   c.DailyLossLimit,
		DailyTradeLimit:  c.DailyTradeLimit,
		TradeCooldown:    c.TradeCooldown.Duration,
		GlobalCooldown:   c.GlobalCooldown.Duration,
		MinPrice:         c.MinPrice,
		MaxPrice:         c.MaxPrice,
	}
}

// coordinatorConfig maps a strategy section onto the coordinator. Monitor
// mode disables entries.
func coordinatorConfig(s config.StrategyConfig, mode string) executor.Config {
	cfg := executor.DefaultConfig()
	cfg.Strategy = s.Name
	cfg.Sensitivity = s.Sensitivity
	cfg.EdgeThreshold = s.EdgeThreshold
	cfg.TradeSize = s.TradeSize
	cfg.TakeProfit = s.TakeProfit
	cfg.StopLoss = s.StopLoss
	cfg.DryRun = s.DryRun
	cfg.EntriesEnabled = mode != "monitor"
	cfg.MinTimeLeft = s.MinTimeLeft.Duration
	cfg.EntryCooldown = s.EntryCooldown.Duration
	cfg.ClosingWindow = s.ClosingWindow.Duration
	cfg.TrailingActivation = s.TrailingActivation
	cfg.TrailingGiveback = s.TrailingGiveback
	cfg.MinReferenceTicks = s.MinReferenceTicks
	cfg.EntrySlippage = s.EntrySlippage
	cfg.MaxBuyPrice = s.MaxBuyPrice
	cfg.ExitSlippage = s.ExitSlippage
	cfg.ExitRetrySlippage = s.ExitRetrySlippage
	return cfg
}

func supervisorConfig(c *config.Config) supervisor.Config {
	cfg := supervisor.DefaultConfig()
	cfg.StatusInterval = c.Refresh.StatusInterval.Duration
	cfg.CheckInterval = c.Refresh.CheckInterval.Duration
	if d := c.Refresh.Interval.Duration; d > 0 {
		cfg.RefreshInterval = d
	}
	cfg.ExpiryWindow = c.Refresh.ExpiryWindow.Duration
	cfg.RolloverDelay = c.Refresh.RolloverDelay.Duration
	if d := c.S3.ArchiveInterval.Duration; d > 0 {
		cfg.ArchiveInterval = d
	}
	return cfg
}
