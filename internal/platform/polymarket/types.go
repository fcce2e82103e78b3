package polymarket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether a flag is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool      `json:"success"`
	ErrorMsg    string    `json:"errorMsg,omitempty"`
	OrderID     string    `json:"orderID,omitempty"`
	Status      string    `json:"status,omitempty"`
	MakingAmt   flexFloat `json:"makingAmount,omitempty"`
	TakingAmt   flexFloat `json:"takingAmount,omitempty"`
	ShouldRetry bool      `json:"shouldRetry,omitempty"`
}

// ToDomainOrderResult converts an APIOrderResult to a domain.OrderResult.
func (r *APIOrderResult) ToDomainOrderResult() domain.OrderResult {
	result := domain.OrderResult{
		Success: r.Success,
		OrderID: r.OrderID,
		Message: r.ErrorMsg,
	}
	switch strings.ToLower(r.Status) {
	case "matched":
		result.Status = domain.OrderStatusMatched
	case "live":
		result.Status = domain.OrderStatusLive
	case "delayed", "unmatched":
		result.Status = domain.OrderStatusDelayed
	default:
		if r.Success {
			result.Status = domain.OrderStatusLive
		} else {
			result.Status = domain.OrderStatusFailed
		}
	}
	return result
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is a market as returned by the Gamma API. Several list-valued
// fields arrive as JSON-encoded strings.
type APIMarket struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	ConditionID     string   `json:"conditionId"`
	Slug            string   `json:"slug"`
	Active          flexBool `json:"active"`
	Closed          flexBool `json:"closed"`
	AcceptingOrders flexBool `json:"acceptingOrders"`
	Outcomes        string   `json:"outcomes"`     // e.g. "[\"Up\",\"Down\"]"
	ClobTokenIDs    string   `json:"clobTokenIds"` // e.g. "[\"123\",\"456\"]"
	EndDate         string   `json:"endDate"`
}

// ToInstrument maps the market's outcomes to Up/Down tokens. fallbackExpiry
// is used when endDate is missing or unparseable.
func (m *APIMarket) ToInstrument(symbol string, fallbackExpiry time.Time) (domain.Instrument, error) {
	var outcomes, tokens []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return domain.Instrument{}, fmt.Errorf("decode outcomes %q: %w", m.Outcomes, err)
	}
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokens); err != nil {
		return domain.Instrument{}, fmt.Errorf("decode clobTokenIds: %w", err)
	}
	if len(outcomes) != len(tokens) || len(tokens) < 2 {
		return domain.Instrument{}, fmt.Errorf("outcomes/tokens mismatch: %d vs %d", len(outcomes), len(tokens))
	}

	inst := domain.Instrument{
		ID:       m.ConditionID,
		Symbol:   strings.ToUpper(symbol),
		Slug:     m.Slug,
		Question: m.Question,
		Expiry:   fallbackExpiry,
	}
	for i, o := range outcomes {
		switch strings.ToLower(o) {
		case "up", "yes":
			inst.UpToken = tokens[i]
		case "down", "no":
			inst.DownToken = tokens[i]
		}
	}
	if inst.UpToken == "" || inst.DownToken == "" {
		return domain.Instrument{}, fmt.Errorf("outcomes %v lack Up/Down", outcomes)
	}
	if inst.ID == "" {
		inst.ID = m.Slug
	}
	if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		inst.Expiry = t
	}
	return inst, nil
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSCommand is the JSON payload sent to the market channel to subscribe.
type WSCommand struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}

// LevelKind tags the wire shape a PriceLevel was decoded from.
type LevelKind uint8

const (
	// LevelObject is {"price": "0.5", "size": "10"}.
	LevelObject LevelKind = iota + 1
	// LevelPair is ["0.5", "10"].
	LevelPair
	// LevelScalar is a bare price with no size.
	LevelScalar
)

// PriceLevel is one book level in any of the shapes the feed emits.
type PriceLevel struct {
	Kind  LevelKind
	Price float64
	Size  float64
}

// UnmarshalJSON decodes every supported level shape into one value.
func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty price level")
	}
	switch data[0] {
	case '{':
		var obj struct {
			Price flexFloat `json:"price"`
			Size  flexFloat `json:"size"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("price level object: %w", err)
		}
		*l = PriceLevel{Kind: LevelObject, Price: float64(obj.Price), Size: float64(obj.Size)}
	case '[':
		var pair []flexFloat
		if err := json.Unmarshal(data, &pair); err != nil {
			return fmt.Errorf("price level pair: %w", err)
		}
		if len(pair) == 0 {
			return fmt.Errorf("price level pair is empty")
		}
		*l = PriceLevel{Kind: LevelPair, Price: float64(pair[0])}
		if len(pair) > 1 {
			l.Size = float64(pair[1])
		}
	default:
		var p flexFloat
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("price level scalar: %w", err)
		}
		*l = PriceLevel{Kind: LevelScalar, Price: float64(p)}
	}
	return nil
}

// BookMessage is a full book snapshot for one asset.
type BookMessage struct {
	EventType string       `json:"event_type"`
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp string       `json:"timestamp"`
}

// Top returns the best bid and ask. A side with no levels is left unset.
// Levels are scanned in full since the venue does not guarantee ordering.
func (b *BookMessage) Top() domain.BookUpdate {
	u := domain.BookUpdate{TokenID: b.AssetID, Timestamp: parseTimestamp(b.Timestamp)}
	for _, lvl := range b.Bids {
		if !u.HasBid || lvl.Price > u.Bid {
			u.Bid, u.HasBid = lvl.Price, true
		}
	}
	for _, lvl := range b.Asks {
		if !u.HasAsk || lvl.Price < u.Ask {
			u.Ask, u.HasAsk = lvl.Price, true
		}
	}
	return u
}

// PriceChange carries best bid/ask for one asset. A nil field was absent from
// the message.
type PriceChange struct {
	AssetID string     `json:"asset_id"`
	BestBid *flexFloat `json:"best_bid"`
	BestAsk *flexFloat `json:"best_ask"`
}

// PriceChangeMessage is an incremental update. Older frames carry a single
// asset at the top level; newer ones nest a price_changes array.
type PriceChangeMessage struct {
	EventType    string        `json:"event_type"`
	Market       string        `json:"market"`
	Timestamp    string        `json:"timestamp"`
	PriceChanges []PriceChange `json:"price_changes"`
	PriceChange
}

// Updates returns one BookUpdate per asset. Every side present in the message
// is applied as sent, so a best_bid of 0 or a best_ask of 1 clears that side
// to "no quote". Absent sides are left untouched.
func (p *PriceChangeMessage) Updates() []domain.BookUpdate {
	ts := parseTimestamp(p.Timestamp)
	changes := p.PriceChanges
	if len(changes) == 0 && p.AssetID != "" {
		changes = []PriceChange{p.PriceChange}
	}
	out := make([]domain.BookUpdate, 0, len(changes))
	for _, c := range changes {
		u := domain.BookUpdate{TokenID: c.AssetID, Timestamp: ts}
		if c.BestBid != nil {
			u.Bid, u.HasBid = max(float64(*c.BestBid), 0), true
		}
		if c.BestAsk != nil {
			u.Ask, u.HasAsk = min(float64(*c.BestAsk), 1), true
			if u.Ask <= 0 {
				u.Ask = 1
			}
		}
		out = append(out, u)
	}
	return out
}

// DecodeFrame turns one market-channel frame into book updates. A frame may be
// a single event object or an array of them; unknown events are skipped. An
// event that fails to decode is dropped and reported in the joined error while
// the rest of the frame is still returned.
func DecodeFrame(raw []byte) ([]domain.BookUpdate, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	var events []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, fmt.Errorf("polymarket/ws: decode frame: %w", err)
		}
	} else {
		events = []json.RawMessage{raw}
	}

	var (
		out  []domain.BookUpdate
		errs []error
	)
	for i, ev := range events {
		var envelope struct {
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(ev, &envelope); err != nil {
			// Non-object entries such as "PONG" are ignored.
			continue
		}
		switch envelope.EventType {
		case "book":
			var book BookMessage
			if err := json.Unmarshal(ev, &book); err != nil {
				errs = append(errs, fmt.Errorf("polymarket/ws: decode book at %d: %w", i, err))
				continue
			}
			out = append(out, book.Top())
		case "price_change":
			var pc PriceChangeMessage
			if err := json.Unmarshal(ev, &pc); err != nil {
				errs = append(errs, fmt.Errorf("polymarket/ws: decode price_change at %d: %w", i, err))
				continue
			}
			out = append(out, pc.Updates()...)
		}
	}
	return out, errors.Join(errs...)
}

// parseTimestamp accepts unix milliseconds, unix seconds or RFC3339.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
