package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/metrics"
)

// OrderPlacer submits a single limit order and reports the venue's answer.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// OrderClient is the venue client a ClobPlacer drives.
type OrderClient interface {
	PostOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// ClobPlacer submits orders to the CLOB through a shared rate limiter.
type ClobPlacer struct {
	client  OrderClient
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClobPlacer wraps client. ordersPerSec <= 0 disables rate limiting.
func NewClobPlacer(client OrderClient, ordersPerSec float64, burst int, logger *slog.Logger) *ClobPlacer {
	limit := rate.Inf
	if ordersPerSec > 0 {
		limit = rate.Limit(ordersPerSec)
	}
	if burst < 1 {
		burst = 1
	}
	return &ClobPlacer{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(slog.String("component", "clob_placer")),
	}
}

// PlaceOrder waits for a rate-limit token and posts the order.
func (p *ClobPlacer) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.OrderResult{}, fmt.Errorf("executor: rate limit: %w", err)
	}

	start := time.Now()
	res, err := p.client.PostOrder(ctx, req)
	metrics.OrderLatency.WithLabelValues(string(req.Side)).Observe(time.Since(start).Seconds())

	status := res.Status
	if err != nil && status == "" {
		status = domain.OrderStatusFailed
	}
	metrics.OrdersTotal.WithLabelValues(string(req.Side), string(status)).Inc()

	if err != nil {
		p.logger.Warn("order failed",
			slog.String("strategy", req.Strategy),
			slog.String("token", req.TokenID),
			slog.String("side", string(req.Side)),
			slog.Float64("price", req.Price),
			slog.Float64("size", req.Size),
			slog.String("error", err.Error()),
		)
		return res, err
	}
	p.logger.Info("order placed",
		slog.String("strategy", req.Strategy),
		slog.String("order_id", res.OrderID),
		slog.String("side", string(req.Side)),
		slog.Float64("price", req.Price),
		slog.Float64("size", req.Size),
		slog.String("status", string(res.Status)),
	)
	return res, nil
}

// PaperPlacer fills every order immediately at its limit price without
// touching the venue.
type PaperPlacer struct {
	now    func() time.Time
	logger *slog.Logger
}

// NewPaperPlacer creates a simulated placer.
func NewPaperPlacer(logger *slog.Logger) *PaperPlacer {
	return &PaperPlacer{
		now:    time.Now,
		logger: logger.With(slog.String("component", "paper_placer")),
	}
}

// PlaceOrder returns a simulated fill.
func (p *PaperPlacer) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderResult{}, err
	}
	if req.Price <= 0 || req.Size <= 0 {
		return domain.OrderResult{Status: domain.OrderStatusFailed}, fmt.Errorf("executor: %w: price %.4f size %.4f", domain.ErrInvalidOrder, req.Price, req.Size)
	}
	res := domain.OrderResult{
		Success:     true,
		OrderID:     "paper-" + uuid.NewString(),
		Status:      domain.OrderStatusSimulated,
		FilledPrice: req.Price,
		SubmittedAt: p.now().UTC(),
	}
	metrics.OrdersTotal.WithLabelValues(string(req.Side), string(res.Status)).Inc()
	p.logger.Info("paper fill",
		slog.String("strategy", req.Strategy),
		slog.String("order_id", res.OrderID),
		slog.String("side", string(req.Side)),
		slog.Float64("price", req.Price),
		slog.Float64("size", req.Size),
	)
	return res, nil
}
