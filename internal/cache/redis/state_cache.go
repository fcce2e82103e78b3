package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// stateTTL expires a symbol's state once its strategy stops refreshing it.
const stateTTL = 10 * time.Minute

// StateCache implements domain.StateCache with one Redis hash per strategy
// and symbol at "state:{strategy}:{symbol}".
type StateCache struct {
	rdb *redis.Client
}

// NewStateCache creates a StateCache backed by the given Client.
func NewStateCache(c *Client) *StateCache {
	return &StateCache{rdb: c.rdb}
}

func stateKey(strategy, symbol string) string {
	return "state:" + strategy + ":" + strings.ToUpper(symbol)
}

// SetState stores the latest fused state.
func (sc *StateCache) SetState(ctx context.Context, strategy string, st domain.MarketState) error {
	key := stateKey(strategy, st.Symbol)
	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, stateFields(st))
	pipe.Expire(ctx, key, stateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set state %s: %w", key, err)
	}
	return nil
}

// GetState returns the cached state, or domain.ErrNotFound.
func (sc *StateCache) GetState(ctx context.Context, strategy, symbol string) (domain.MarketState, error) {
	key := stateKey(strategy, symbol)
	vals, err := sc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.MarketState{}, fmt.Errorf("redis: get state %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.MarketState{}, domain.ErrNotFound
	}
	st, err := parseState(vals)
	if err != nil {
		return domain.MarketState{}, fmt.Errorf("redis: get state %s: %w", key, err)
	}
	return st, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func stateFields(st domain.MarketState) map[string]any {
	return map[string]any{
		"symbol":     st.Symbol,
		"id":         st.ID,
		"slug":       st.Slug,
		"up_token":   st.UpToken,
		"down_token": st.DownToken,
		"expiry":     strconv.FormatInt(st.Expiry.UnixMilli(), 10),
		"reference":  formatFloat(st.Reference),
		"baseline":   formatFloat(st.Baseline),
		"up_bid":     formatFloat(st.UpBid),
		"up_ask":     formatFloat(st.UpAsk),
		"down_bid":   formatFloat(st.DownBid),
		"down_ask":   formatFloat(st.DownAsk),
		"ticks":      strconv.FormatInt(st.ReferenceTicks, 10),
		"book_ticks": strconv.FormatInt(st.BookTicks, 10),
		"ts":         strconv.FormatInt(st.UpdatedAt.UnixNano(), 10),
	}
}

func parseState(vals map[string]string) (domain.MarketState, error) {
	st := domain.MarketState{
		Instrument: domain.Instrument{
			Symbol:    vals["symbol"],
			ID:        vals["id"],
			Slug:      vals["slug"],
			UpToken:   vals["up_token"],
			DownToken: vals["down_token"],
		},
	}
	floats := map[string]*float64{
		"reference": &st.Reference,
		"baseline":  &st.Baseline,
		"up_bid":    &st.UpBid,
		"up_ask":    &st.UpAsk,
		"down_bid":  &st.DownBid,
		"down_ask":  &st.DownAsk,
	}
	for field, dst := range floats {
		v, err := strconv.ParseFloat(vals[field], 64)
		if err != nil {
			return domain.MarketState{}, fmt.Errorf("parse %s: %w", field, err)
		}
		*dst = v
	}
	var expiryMs, tsNano int64
	ints := map[string]*int64{
		"expiry": &expiryMs,
		"ticks":  &st.ReferenceTicks,
		"ts":     &tsNano,
	}
	for field, dst := range ints {
		v, err := strconv.ParseInt(vals[field], 10, 64)
		if err != nil {
			return domain.MarketState{}, fmt.Errorf("parse %s: %w", field, err)
		}
		*dst = v
	}
	// Entries written before book ticks were tracked lack the field.
	if raw, ok := vals["book_ticks"]; ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.MarketState{}, fmt.Errorf("parse book_ticks: %w", err)
		}
		st.BookTicks = v
	}
	st.Expiry = time.UnixMilli(expiryMs).UTC()
	st.UpdatedAt = time.Unix(0, tsNano).UTC()
	return st, nil
}

var _ domain.StateCache = (*StateCache)(nil)
