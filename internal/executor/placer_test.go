package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

type stubClient struct {
	calls []time.Time
	err   error
}

func (s *stubClient) PostOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	s.calls = append(s.calls, time.Now())
	if s.err != nil {
		return domain.OrderResult{}, s.err
	}
	return domain.OrderResult{Success: true, OrderID: "0xabc", Status: domain.OrderStatusLive, FilledPrice: req.Price}, nil
}

func TestClobPlacerPassesThrough(t *testing.T) {
	client := &stubClient{}
	p := NewClobPlacer(client, 0, 0, discard())

	res, err := p.PlaceOrder(context.Background(), domain.OrderRequest{TokenID: "t", Side: domain.OrderSideBuy, Price: 0.5, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", res.OrderID)
	assert.Len(t, client.calls, 1)

	client.err = domain.ErrOrderRejected
	_, err = p.PlaceOrder(context.Background(), domain.OrderRequest{TokenID: "t", Side: domain.OrderSideSell, Price: 0.5, Size: 10})
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}

func TestClobPlacerRateLimitHonoursContext(t *testing.T) {
	client := &stubClient{}
	p := NewClobPlacer(client, 0.001, 1, discard())

	req := domain.OrderRequest{TokenID: "t", Side: domain.OrderSideBuy, Price: 0.5, Size: 10}
	_, err := p.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.PlaceOrder(ctx, req)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "rate limit"))
	assert.Len(t, client.calls, 1)
}

func TestPaperPlacer(t *testing.T) {
	p := NewPaperPlacer(discard())

	res, err := p.PlaceOrder(context.Background(), domain.OrderRequest{Side: domain.OrderSideBuy, Price: 0.52, Size: 20})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.OrderStatusSimulated, res.Status)
	assert.True(t, strings.HasPrefix(res.OrderID, "paper-"))
	assert.Equal(t, 0.52, res.FilledPrice)

	_, err = p.PlaceOrder(context.Background(), domain.OrderRequest{Side: domain.OrderSideBuy, Price: 0, Size: 20})
	assert.True(t, errors.Is(err, domain.ErrInvalidOrder))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.PlaceOrder(ctx, domain.OrderRequest{Side: domain.OrderSideBuy, Price: 0.5, Size: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
