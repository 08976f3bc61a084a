// Package money wraps apd decimals with the rounding rules used for billing.
package money

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

const precision = 34

// Decimal is an immutable base-10 number.
type Decimal struct {
	value apd.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{}

// NewDecimal parses a decimal string such as "1.50".
func NewDecimal(s string) (Decimal, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal: %w", err)
	}
	return Decimal{value: d}, nil
}

// MustDecimal is NewDecimal for constants known to be valid.
func MustDecimal(s string) Decimal {
	d, err := NewDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewDecimalFromInt64 returns i as a decimal.
func NewDecimalFromInt64(i int64) Decimal {
	var d apd.Decimal
	d.SetInt64(i)
	return Decimal{value: d}
}

// NewDecimalFromFloat converts a stored float column value using its shortest
// decimal representation, so 0.45 becomes exactly 0.45.
func NewDecimalFromFloat(f float64) Decimal {
	d, err := NewDecimal(strconv.FormatFloat(f, 'f', -1, 64))
	if err != nil {
		return Decimal{}
	}
	return d
}

func (d Decimal) String() string {
	return d.value.Text('f')
}

// Float64 converts the decimal back for persistence in numeric columns.
func (d Decimal) Float64() float64 {
	f, err := d.value.Float64()
	if err != nil {
		return 0
	}
	return f
}

func (d Decimal) IsZero() bool {
	return d.value.IsZero()
}

// Sign returns -1, 0 or 1.
func (d Decimal) Sign() int {
	return d.value.Sign()
}

func (d Decimal) Cmp(other Decimal) int {
	return d.value.Cmp(&other.value)
}

// Add returns the sum of d and other.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(precision)
	ctx.Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Sub returns d minus other.
func (d Decimal) Sub(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(precision)
	ctx.Sub(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Mul returns the product of d and other.
func (d Decimal) Mul(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(precision)
	ctx.Mul(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Div returns the quotient of d divided by other.
func (d Decimal) Div(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(precision)
	ctx.Quo(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// RoundHalfUp rounds to the given number of fractional digits, ties away from zero.
func (d Decimal) RoundHalfUp(places int32) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(precision)
	ctx.Rounding = apd.RoundHalfUp
	ctx.Quantize(&result, &d.value, -places)
	return Decimal{value: result}
}

// Round2 rounds to the nearest cent.
func (d Decimal) Round2() Decimal {
	return d.RoundHalfUp(2)
}

// RoundToTenCents rounds to the nearest 0.10, i.e. round(x*10)/10.
func (d Decimal) RoundToTenCents() Decimal {
	return d.RoundHalfUp(1)
}
