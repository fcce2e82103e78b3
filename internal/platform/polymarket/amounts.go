package polymarket

import (
	"fmt"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// usdcDecimals is the on-chain scale for both USDC and outcome shares.
	usdcDecimals   = 6
	priceDecimals  = 2
	sizeDecimals   = 2
	amountDecimals = 4
)

// Amounts are the integer maker/taker quantities signed into an order.
type Amounts struct {
	Price decimal.Decimal
	Size  decimal.Decimal
	Maker decimal.Decimal // base units
	Taker decimal.Decimal // base units
}

// OrderAmounts converts a float price/size pair into venue amounts. Price is
// rounded to the tick, size is truncated so the order never exceeds the
// requested quantity. A BUY gives USDC for shares, a SELL the reverse.
func OrderAmounts(side domain.OrderSide, price, size float64) (Amounts, error) {
	p := decimal.NewFromFloat(price).Round(priceDecimals)
	s := decimal.NewFromFloat(size).Truncate(sizeDecimals)
	if !p.IsPositive() || p.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Amounts{}, fmt.Errorf("%w: price %s outside (0, 1)", domain.ErrInvalidOrder, p)
	}
	if !s.IsPositive() {
		return Amounts{}, fmt.Errorf("%w: size %v rounds to zero", domain.ErrInvalidOrder, size)
	}

	usdc := p.Mul(s).Truncate(amountDecimals).Shift(usdcDecimals)
	shares := s.Shift(usdcDecimals)

	a := Amounts{Price: p, Size: s}
	switch side {
	case domain.OrderSideBuy:
		a.Maker, a.Taker = usdc, shares
	case domain.OrderSideSell:
		a.Maker, a.Taker = shares, usdc
	default:
		return Amounts{}, fmt.Errorf("%w: side %q", domain.ErrInvalidOrder, side)
	}
	return a, nil
}
