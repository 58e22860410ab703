package match

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Price is a fixed-point price in minor units (PriceDecimals implied decimals).
// It is used directly as the ordering and equality key of price levels.
type Price int64

var maxPrice = decimal.NewFromInt(math.MaxInt64)

// ParsePrice converts a decimal string such as "10.25" into a Price.
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	return PriceFromDecimal(d)
}

// MustParsePrice is like ParsePrice but panics on error.
func MustParsePrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PriceFromDecimal converts d into minor units. Zero, negative and
// over-precise values are rejected.
func PriceFromDecimal(d decimal.Decimal) (Price, error) {
	if d.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPrice, d.String())
	}

	scaled := d.Shift(PriceDecimals)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: at most %d decimals allowed, got %s", ErrInvalidPrice, PriceDecimals, d.String())
	}
	if scaled.GreaterThan(maxPrice) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidPrice, d.String())
	}

	return Price(scaled.IntPart()), nil
}

// Decimal returns the price in whole units.
func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -PriceDecimals)
}

// String renders the price with at least two decimals, e.g. "10.20" or "10.2525".
func (p Price) String() string {
	d := p.Decimal()
	if p%100 == 0 {
		return d.StringFixed(2)
	}
	return d.String()
}

// MarshalText renders the price as a decimal string so JSON never carries minor units.
func (p Price) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts any valid price, plus zero which stands for "no price"
// (an empty side of TopOfBook, a market order).
func (p *Price) UnmarshalText(text []byte) error {
	d, err := decimal.NewFromString(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidPrice, text)
	}
	if d.IsZero() {
		*p = 0
		return nil
	}
	v, err := PriceFromDecimal(d)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
