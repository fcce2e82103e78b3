package redis

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func TestStateFieldsRoundTrip(t *testing.T) {
	in := domain.MarketState{
		Instrument: domain.Instrument{
			ID:        "0xcond",
			Symbol:    "BTC",
			Slug:      "btc-updown-15m-1772445600",
			UpToken:   "111",
			DownToken: "222",
			Expiry:    time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC),
		},
		Reference:      97123.45,
		Baseline:       97000,
		UpBid:          0.55,
		UpAsk:          0.57,
		DownBid:        0.43,
		DownAsk:        0.45,
		ReferenceTicks: 42,
		BookTicks:      311,
		UpdatedAt:      time.Date(2026, 3, 2, 10, 3, 4, 500, time.UTC),
	}

	raw := stateFields(in)
	vals := make(map[string]string, len(raw))
	for k, v := range raw {
		vals[k] = v.(string)
	}
	out, err := parseState(vals)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParseStateRejectsGarbage(t *testing.T) {
	_, err := parseState(map[string]string{"symbol": "BTC", "reference": "x"})
	assert.Error(t, err)
}

func TestParseStateWithoutBookTicks(t *testing.T) {
	raw := stateFields(domain.MarketState{Instrument: domain.Instrument{Symbol: "ETH"}, UpAsk: 1, DownAsk: 1, BookTicks: 9})
	vals := make(map[string]string, len(raw))
	for k, v := range raw {
		vals[k] = v.(string)
	}
	delete(vals, "book_ticks")

	st, err := parseState(vals)
	require.NoError(t, err)
	assert.Equal(t, "ETH", st.Symbol)
	assert.Zero(t, st.BookTicks)

	vals["book_ticks"] = "many"
	_, err = parseState(vals)
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	opts := options(ClientConfig{Addr: "cache:6379", DB: 2, PoolSize: 8, MaxRetries: 3})
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "updownbot", opts.ClientName)
	assert.Equal(t, 8, opts.PoolSize)
	assert.Equal(t, 3, opts.MaxRetries)
	assert.Nil(t, opts.TLSConfig)

	opts = options(ClientConfig{Addr: "cache:6380", TLSEnabled: true})
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "state:momentum:BTC", stateKey("momentum", "btc"))
	assert.Equal(t, "lock:updownbot:momentum", lockKey("updownbot:momentum"))
	assert.True(t, hasPattern("updown:status:*"))
	assert.False(t, hasPattern("updown:status:momentum"))
}
