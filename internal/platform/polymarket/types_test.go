package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceLevelShapes(t *testing.T) {
	var levels []PriceLevel
	require.NoError(t, json.Unmarshal([]byte(`[
		{"price":"0.45","size":"100"},
		{"price":0.44,"size":5},
		["0.43","7"],
		[0.42],
		"0.41",
		0.40
	]`), &levels))

	require.Len(t, levels, 6)
	assert.Equal(t, PriceLevel{Kind: LevelObject, Price: 0.45, Size: 100}, levels[0])
	assert.Equal(t, PriceLevel{Kind: LevelObject, Price: 0.44, Size: 5}, levels[1])
	assert.Equal(t, PriceLevel{Kind: LevelPair, Price: 0.43, Size: 7}, levels[2])
	assert.Equal(t, PriceLevel{Kind: LevelPair, Price: 0.42}, levels[3])
	assert.Equal(t, PriceLevel{Kind: LevelScalar, Price: 0.41}, levels[4])
	assert.Equal(t, PriceLevel{Kind: LevelScalar, Price: 0.40}, levels[5])

	var bad PriceLevel
	assert.Error(t, json.Unmarshal([]byte(`[]`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &bad))
}

func TestDecodeFrameBookUsesBestLevels(t *testing.T) {
	frame := `{"event_type":"book","asset_id":"up","timestamp":"1767268800000",
		"bids":[{"price":"0.40","size":"1"},{"price":"0.43","size":"1"},{"price":"0.41","size":"1"}],
		"asks":[["0.49","2"],["0.46","2"],["0.48","2"]]}`

	updates, err := DecodeFrame([]byte(frame))
	require.NoError(t, err)
	require.Len(t, updates, 1)

	u := updates[0]
	assert.Equal(t, "up", u.TokenID)
	assert.True(t, u.HasBid)
	assert.True(t, u.HasAsk)
	assert.InDelta(t, 0.43, u.Bid, 1e-12)
	assert.InDelta(t, 0.46, u.Ask, 1e-12)
	assert.Equal(t, time.UnixMilli(1767268800000).UTC(), u.Timestamp)
}

func TestDecodeFrameEmptySideLeftUnset(t *testing.T) {
	updates, err := DecodeFrame([]byte(`{"event_type":"book","asset_id":"dn","bids":[],"asks":["0.6"]}`))
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.False(t, updates[0].HasBid)
	assert.True(t, updates[0].HasAsk)
	assert.InDelta(t, 0.6, updates[0].Ask, 1e-12)
}

func TestDecodeFramePriceChange(t *testing.T) {
	t.Run("top level", func(t *testing.T) {
		updates, err := DecodeFrame([]byte(`{"event_type":"price_change","asset_id":"up","best_bid":"0.52","best_ask":"0.55"}`))
		require.NoError(t, err)
		require.Len(t, updates, 1)
		assert.Equal(t, domain.BookUpdate{TokenID: "up", Bid: 0.52, HasBid: true, Ask: 0.55, HasAsk: true}, updates[0])
	})

	t.Run("nested", func(t *testing.T) {
		updates, err := DecodeFrame([]byte(`{"event_type":"price_change","market":"0xc","price_changes":[
			{"asset_id":"up","best_bid":"0.5","best_ask":"0.53"},
			{"asset_id":"dn","best_bid":"0.46"}
		]}`))
		require.NoError(t, err)
		require.Len(t, updates, 2)
		assert.Equal(t, "dn", updates[1].TokenID)
		assert.True(t, updates[1].HasBid)
		// An absent best_ask leaves the side untouched.
		assert.False(t, updates[1].HasAsk)
	})

	t.Run("emptied sides are applied", func(t *testing.T) {
		updates, err := DecodeFrame([]byte(`{"event_type":"price_change","asset_id":"up","best_bid":"0","best_ask":"1"}`))
		require.NoError(t, err)
		require.Len(t, updates, 1)
		assert.Equal(t, domain.BookUpdate{TokenID: "up", Bid: 0, HasBid: true, Ask: 1, HasAsk: true}, updates[0])
	})

	t.Run("null fields are absent", func(t *testing.T) {
		updates, err := DecodeFrame([]byte(`{"event_type":"price_change","asset_id":"up","best_bid":null,"best_ask":"0.7"}`))
		require.NoError(t, err)
		require.Len(t, updates, 1)
		assert.False(t, updates[0].HasBid)
		assert.True(t, updates[0].HasAsk)
		assert.InDelta(t, 0.7, updates[0].Ask, 1e-12)
	})
}

func TestDecodeFrameArrayAndNoise(t *testing.T) {
	frame := `[
		{"event_type":"book","asset_id":"up","bids":[["0.3","1"]],"asks":[["0.35","1"]]},
		{"event_type":"last_trade_price","asset_id":"up","price":"0.31"},
		"PONG",
		{"event_type":"price_change","asset_id":"dn","best_bid":0.6,"best_ask":0.64}
	]`
	updates, err := DecodeFrame([]byte(frame))
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "up", updates[0].TokenID)
	assert.Equal(t, "dn", updates[1].TokenID)

	updates, err = DecodeFrame([]byte("PONG"))
	assert.NoError(t, err)
	assert.Empty(t, updates)

	_, err = DecodeFrame([]byte(`[{"event_type":"book"`))
	assert.Error(t, err)
}

func TestDecodeFrameSkipsBadEvents(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		tokens []string
		errs   int
	}{
		{
			name: "bad book first",
			frame: `[
				{"event_type":"book","asset_id":"a","bids":[{"price":"abc","size":"1"}],"asks":[]},
				{"event_type":"price_change","asset_id":"b","best_bid":"0.4","best_ask":"0.45"}
			]`,
			tokens: []string{"b"},
			errs:   1,
		},
		{
			name: "bad price change between good books",
			frame: `[
				{"event_type":"book","asset_id":"a","bids":[["0.3","1"]],"asks":[["0.35","1"]]},
				{"event_type":"price_change","asset_id":"b","best_bid":"x"},
				{"event_type":"book","asset_id":"c","bids":[["0.6","1"]],"asks":[["0.62","1"]]}
			]`,
			tokens: []string{"a", "c"},
			errs:   1,
		},
		{
			name: "every event bad",
			frame: `[
				{"event_type":"book","asset_id":"a","bids":"nope"},
				{"event_type":"price_change","asset_id":"b","best_ask":[]}
			]`,
			errs: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updates, err := DecodeFrame([]byte(tt.frame))
			require.Error(t, err)
			var joined interface{ Unwrap() []error }
			require.ErrorAs(t, err, &joined)
			assert.Len(t, joined.Unwrap(), tt.errs)

			var tokens []string
			for _, u := range updates {
				tokens = append(tokens, u.TokenID)
			}
			assert.Equal(t, tt.tokens, tokens)
		})
	}
}

func TestAPIMarketToInstrument(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 12, 15, 0, 0, time.UTC)
	m := APIMarket{
		ConditionID:  "0xcond",
		Slug:         "btc-updown-15m-1767268800",
		Question:     "Bitcoin Up or Down?",
		Outcomes:     `["Down","Up"]`,
		ClobTokenIDs: `["222","111"]`,
		EndDate:      "2026-01-01T12:15:00Z",
	}
	inst, err := m.ToInstrument("btc", fallback.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "0xcond", inst.ID)
	assert.Equal(t, "BTC", inst.Symbol)
	assert.Equal(t, "111", inst.UpToken)
	assert.Equal(t, "222", inst.DownToken)
	assert.Equal(t, fallback, inst.Expiry)

	m.EndDate = ""
	inst, err = m.ToInstrument("btc", fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, inst.Expiry)

	m.Outcomes = `["Yes"]`
	_, err = m.ToInstrument("btc", fallback)
	assert.Error(t, err)
}

func TestFlexBool(t *testing.T) {
	var m APIMarket
	require.NoError(t, json.Unmarshal([]byte(`{"acceptingOrders":"true","closed":false}`), &m))
	assert.True(t, bool(m.AcceptingOrders))
	assert.False(t, bool(m.Closed))
}

func TestOrderAmounts(t *testing.T) {
	buy, err := OrderAmounts(domain.OrderSideBuy, 0.46, 21.739)
	require.NoError(t, err)
	assert.Equal(t, "0.46", buy.Price.String())
	assert.Equal(t, "21.73", buy.Size.String())
	assert.Equal(t, "9995800", buy.Maker.StringFixed(0)) // 0.46 * 21.73 = 9.9958 USDC
	assert.Equal(t, "21730000", buy.Taker.StringFixed(0))

	sell, err := OrderAmounts(domain.OrderSideSell, 0.5, 10)
	require.NoError(t, err)
	assert.Equal(t, "10000000", sell.Maker.StringFixed(0))
	assert.Equal(t, "5000000", sell.Taker.StringFixed(0))

	_, err = OrderAmounts(domain.OrderSideBuy, 1.0, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	_, err = OrderAmounts(domain.OrderSideBuy, 0.5, 0.001)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	_, err = OrderAmounts("HOLD", 0.5, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}
