// Package market holds the fused per-instrument state of one strategy
// instance.
package market

import (
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

type tokenRef struct {
	symbol  string
	outcome domain.Outcome
}

// Stats counts feed traffic since the board was created.
type Stats struct {
	ReferenceTicks int64
	BookMessages   int64
}

// Board maps each tracked symbol to its MarketState. It is safe for
// concurrent use; readers get copies.
type Board struct {
	now func() time.Time

	mu      sync.RWMutex
	symbols []string
	states  map[string]*domain.MarketState
	tokens  map[string]tokenRef
	changed chan struct{}
	stats   Stats
}

// NewBoard creates a board tracking symbols. No instrument is attached until
// Replace is called.
func NewBoard(symbols []string, now func() time.Time) *Board {
	if now == nil {
		now = time.Now
	}
	b := &Board{
		now:     now,
		states:  make(map[string]*domain.MarketState, len(symbols)),
		tokens:  make(map[string]tokenRef),
		changed: make(chan struct{}),
	}
	for _, sym := range symbols {
		sym = strings.ToUpper(sym)
		if _, ok := b.states[sym]; ok {
			continue
		}
		st := domain.NewMarketState(domain.Instrument{Symbol: sym})
		b.states[sym] = &st
		b.symbols = append(b.symbols, sym)
	}
	return b
}

// Symbols returns the tracked symbols in configuration order.
func (b *Board) Symbols() []string {
	return append([]string(nil), b.symbols...)
}

// ApplyReference records a reference trade for the tick's symbol. The first
// price seen after an instrument change becomes the baseline.
func (b *Board) ApplyReference(tick domain.ReferenceTick) (domain.MarketState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[strings.ToUpper(tick.Symbol)]
	if !ok || tick.Price <= 0 {
		return domain.MarketState{}, false
	}
	st.Reference = tick.Price
	if st.Baseline == 0 {
		st.Baseline = tick.Price
	}
	st.ReferenceTicks++
	st.UpdatedAt = b.stamp(tick.Timestamp)
	b.stats.ReferenceTicks++
	return *st, true
}

// ApplyBook applies a top-of-book update to the outcome owning its token.
// found is false for tokens that belong to no tracked instrument; changed is
// false when the update repeats the current quotes.
func (b *Board) ApplyBook(u domain.BookUpdate) (state domain.MarketState, found, changed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ref, ok := b.tokens[u.TokenID]
	if !ok {
		return domain.MarketState{}, false, false
	}
	st := b.states[ref.symbol]
	st.BookTicks++
	b.stats.BookMessages++

	bid, ask := &st.UpBid, &st.UpAsk
	if ref.outcome == domain.OutcomeDown {
		bid, ask = &st.DownBid, &st.DownAsk
	}
	if u.HasBid && *bid != u.Bid {
		*bid = u.Bid
		changed = true
	}
	if u.HasAsk && *ask != u.Ask {
		*ask = u.Ask
		changed = true
	}
	if changed {
		st.UpdatedAt = b.stamp(u.Timestamp)
	}
	return *st, true, changed
}

func (b *Board) stamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return b.now()
	}
	return ts
}

// Replace attaches a new instrument to its symbol, discarding every quote,
// the reference baseline and the tick count. It returns the previous state.
func (b *Board) Replace(inst domain.Instrument) (domain.MarketState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	inst.Symbol = strings.ToUpper(inst.Symbol)
	prev, ok := b.states[inst.Symbol]
	if !ok {
		return domain.MarketState{}, false
	}
	old := *prev

	for tok, ref := range b.tokens {
		if ref.symbol == inst.Symbol {
			delete(b.tokens, tok)
		}
	}
	st := domain.NewMarketState(inst)
	b.states[inst.Symbol] = &st
	if inst.UpToken != "" {
		b.tokens[inst.UpToken] = tokenRef{symbol: inst.Symbol, outcome: domain.OutcomeUp}
	}
	if inst.DownToken != "" {
		b.tokens[inst.DownToken] = tokenRef{symbol: inst.Symbol, outcome: domain.OutcomeDown}
	}

	close(b.changed)
	b.changed = make(chan struct{})
	return old, true
}

// Changed returns a channel closed the next time the token set changes.
func (b *Board) Changed() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.changed
}

// Tokens returns every subscribed outcome token.
func (b *Board) Tokens() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.tokens))
	for _, sym := range b.symbols {
		st := b.states[sym]
		if st.UpToken != "" {
			out = append(out, st.UpToken)
		}
		if st.DownToken != "" {
			out = append(out, st.DownToken)
		}
	}
	return out
}

// Snapshot returns a copy of the state for symbol.
func (b *Board) Snapshot(symbol string) (domain.MarketState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.states[strings.ToUpper(symbol)]
	if !ok {
		return domain.MarketState{}, false
	}
	return *st, true
}

// Snapshots returns copies of every state in symbol order.
func (b *Board) Snapshots() []domain.MarketState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.MarketState, 0, len(b.symbols))
	for _, sym := range b.symbols {
		out = append(out, *b.states[sym])
	}
	return out
}

// Stats returns the traffic counters.
func (b *Board) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}
