package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// DefaultWindow is the length of one up/down market.
const DefaultWindow = 15 * time.Minute

// GammaClient is the REST client for the Polymarket Gamma API, used to find
// the up/down market that is currently trading for a coin.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	window     time.Duration
	now        func() time.Time
}

// GammaOption configures a GammaClient.
type GammaOption func(*GammaClient)

// WithWindow overrides the market window length.
func WithWindow(d time.Duration) GammaOption {
	return func(g *GammaClient) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithGammaClock overrides the clock used to compute the current window.
func WithGammaClock(now func() time.Time) GammaOption {
	return func(g *GammaClient) { g.now = now }
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, opts ...GammaOption) *GammaClient {
	g := &GammaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Slug returns the market slug for symbol in the window containing t, e.g.
// "btc-updown-15m-1767268800".
func (g *GammaClient) Slug(symbol string, t time.Time) string {
	start := t.Truncate(g.window).Unix()
	return fmt.Sprintf("%s-updown-%dm-%d", strings.ToLower(symbol), int(g.window/time.Minute), start)
}

// Discover returns the active up/down instrument for symbol. The market of
// the current window is preferred; if it no longer accepts orders the next
// window is tried. domain.ErrNoActiveInstrument is returned when neither is
// tradable.
func (g *GammaClient) Discover(ctx context.Context, symbol string) (domain.Instrument, error) {
	now := g.now()
	for _, t := range []time.Time{now, now.Add(g.window)} {
		slug := g.Slug(symbol, t)
		m, err := g.GetMarketBySlug(ctx, slug)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.Instrument{}, err
		}
		if bool(m.Closed) || !bool(m.AcceptingOrders) {
			continue
		}
		inst, err := m.ToInstrument(symbol, now.Add(g.window))
		if err != nil {
			return domain.Instrument{}, fmt.Errorf("polymarket/gamma: market %s: %w", slug, err)
		}
		if !inst.Expiry.After(now) {
			continue
		}
		return inst, nil
	}
	return domain.Instrument{}, fmt.Errorf("polymarket/gamma: %s: %w", symbol, domain.ErrNoActiveInstrument)
}

// GetMarketBySlug returns a single market looked up by its URL slug.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug string) (APIMarket, error) {
	path := "/markets/slug/" + url.PathEscape(slug)

	body, err := g.doGet(ctx, path)
	if err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}

	var m APIMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}
	return m, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
