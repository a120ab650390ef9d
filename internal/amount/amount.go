package amount

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ethOffset converts between wei (1e18) and the 1e8 int64 offset scale.
var ethOffset = decimal.New(1, 10) // 1e10

// ethWeiScale is the wei denomination of one ETH.
var ethWeiScale = decimal.New(1, 18)

// Amount is a signed, currency-tagged monetary value in canonical minor
// units. For Ethereum the exact wei value lives in Big (Units is the
// 1e8-offset approximation); for every other currency Units is exact
// and Big is unset.
type Amount struct {
	Units    int64               `json:"units"`
	Currency Currency            `json:"currency"`
	Big      decimal.NullDecimal `json:"big,omitempty"`
}

// Zero returns the zero amount for a currency. Ethereum zeros carry an
// explicit big value so later arithmetic stays on the exact path.
func Zero(cur Currency) Amount {
	a := Amount{Currency: cur}
	if cur == CurrencyETH {
		a.Big = decimal.NewNullDecimal(decimal.Zero)
	}
	return a
}

// FromUnits builds an amount from native-scale minor units. For Ethereum
// the units are interpreted at the 1e8 offset scale and expanded to wei.
func FromUnits(cur Currency, units int64) Amount {
	a := Amount{Units: units, Currency: cur}
	if cur == CurrencyETH {
		a.Big = decimal.NewNullDecimal(decimal.NewFromInt(units).Mul(ethOffset))
	}
	return a
}

// FromWeiString builds an Ethereum amount from an exact wei integer string.
func FromWeiString(wei string) (Amount, error) {
	d, err := decimal.NewFromString(wei)
	if err != nil {
		return Amount{}, fmt.Errorf("parse wei amount %q: %w", wei, err)
	}
	return fromWei(d), nil
}

func fromWei(d decimal.Decimal) Amount {
	return Amount{
		Units:    d.Div(ethOffset).Truncate(0).IntPart(),
		Currency: CurrencyETH,
		Big:      decimal.NewNullDecimal(d),
	}
}

// FromFractional builds an amount from a whole-coin value.
func FromFractional(cur Currency, v float64) Amount {
	if cur == CurrencyETH {
		return fromWei(decimal.NewFromFloat(v).Mul(ethWeiScale).Truncate(0))
	}
	return FromUnits(cur, int64(v*float64(cur.Scale())))
}

// HasBig reports whether the exact big-integer path is populated.
func (a Amount) HasBig() bool {
	return a.Big.Valid
}

func (a Amount) checkCurrency(b Amount) {
	if a.Currency != b.Currency {
		panic(fmt.Sprintf("amount currency mismatch: %s vs %s", a.Currency, b.Currency))
	}
}

// Add returns a+b. Both operands must share a currency.
func (a Amount) Add(b Amount) Amount {
	a.checkCurrency(b)
	if a.Big.Valid && b.Big.Valid {
		return fromWei(a.Big.Decimal.Add(b.Big.Decimal))
	}
	out := a
	out.Big = decimal.NullDecimal{}
	out.Units = a.Units + b.Units
	return out
}

// Sub returns a-b. Both operands must share a currency.
func (a Amount) Sub(b Amount) Amount {
	return a.Add(b.Neg())
}

// MulInt scales the amount by an integer factor.
func (a Amount) MulInt(n int64) Amount {
	if a.Big.Valid {
		return fromWei(a.Big.Decimal.Mul(decimal.NewFromInt(n)))
	}
	out := a
	out.Units = a.Units * n
	return out
}

// Neg returns the negated amount.
func (a Amount) Neg() Amount {
	return a.MulInt(-1)
}

// Cmp compares a against b: -1, 0, or +1. Falls back to the int64
// approximation when either side lacks the big path.
func (a Amount) Cmp(b Amount) int {
	a.checkCurrency(b)
	if a.Big.Valid && b.Big.Valid {
		return a.Big.Decimal.Cmp(b.Big.Decimal)
	}
	switch {
	case a.Units < b.Units:
		return -1
	case a.Units > b.Units:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	if a.Big.Valid {
		return a.Big.Decimal.IsZero()
	}
	return a.Units == 0
}

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool {
	if a.Big.Valid {
		return a.Big.Decimal.IsNegative()
	}
	return a.Units < 0
}

// UnitsOr returns the int64 minor-unit view: the 1e8-offset reduction of
// the big value for Ethereum, Units otherwise.
func (a Amount) UnitsOr() int64 {
	if a.Currency == CurrencyETH && a.Big.Valid {
		return a.Big.Decimal.Div(ethOffset).Truncate(0).IntPart()
	}
	return a.Units
}

// Fractional renders the amount in whole coins.
func (a Amount) Fractional() float64 {
	if a.Currency == CurrencyETH && a.Big.Valid {
		f, _ := a.Big.Decimal.Div(ethWeiScale).Float64()
		return f
	}
	return float64(a.Units) / float64(a.Currency.Scale())
}

// Equal reports exact equality of currency and value.
func (a Amount) Equal(b Amount) bool {
	return a.Currency == b.Currency && a.Cmp(b) == 0
}

func (a Amount) String() string {
	return fmt.Sprintf("%.8f %s", a.Fractional(), a.Currency)
}
