// Package charge turns metered liters and a tariff into invoice amounts.
package charge

import (
	"errors"

	tariffdomain "github.com/smallbiznis/tirta/internal/tariff/domain"
	"github.com/smallbiznis/tirta/pkg/money"
)

var (
	ErrZeroConsumption = errors.New("zero_consumption")
	// ErrNegativeConsumption is usually a replaced or rolled-back meter.
	ErrNegativeConsumption = errors.New("negative_consumption")
)

var litersPerCubicMeter = money.MustDecimal("1000")

// Adjustments are optional extra lines added to the total.
type Adjustments struct {
	Additional float64
	Discounts  float64
}

type Charges struct {
	ConsumptionM3     float64
	WaterCharge       float64
	SewerageCharge    float64
	FixedCharge       float64
	Taxes             float64
	AdditionalCharges float64
	Discounts         float64
	Total             float64
}

// Compute rounds the water and sewerage lines half up to cents, keeps the
// fixed charge as configured and rounds the total half up to ten cents.
// Taxes are not applied.
func Compute(liters float64, tariff tariffdomain.Tariff) (Charges, error) {
	return ComputeWithAdjustments(liters, tariff, Adjustments{})
}

func ComputeWithAdjustments(liters float64, tariff tariffdomain.Tariff, adj Adjustments) (Charges, error) {
	m3 := money.NewDecimalFromFloat(liters).Div(litersPerCubicMeter)
	switch {
	case m3.IsZero():
		return Charges{}, ErrZeroConsumption
	case m3.Sign() < 0:
		return Charges{}, ErrNegativeConsumption
	}

	water := m3.Mul(money.NewDecimalFromFloat(tariff.WaterCharge)).Round2()
	sewerage := m3.Mul(money.NewDecimalFromFloat(tariff.SewerageCharge)).Round2()
	fixed := money.NewDecimalFromFloat(tariff.FixedCharge)
	taxes := money.Zero
	additional := money.NewDecimalFromFloat(adj.Additional)
	discounts := money.NewDecimalFromFloat(adj.Discounts)

	total := water.Add(sewerage).Add(fixed).Add(taxes).Add(additional).Sub(discounts).RoundToTenCents()

	return Charges{
		ConsumptionM3:     m3.Float64(),
		WaterCharge:       water.Float64(),
		SewerageCharge:    sewerage.Float64(),
		FixedCharge:       fixed.Float64(),
		Taxes:             taxes.Float64(),
		AdditionalCharges: additional.Float64(),
		Discounts:         discounts.Float64(),
		Total:             total.Float64(),
	}, nil
}

// Total recomputes the rounded total from stored components.
func Total(water, sewerage, fixed, taxes, additional, discounts float64) float64 {
	return money.NewDecimalFromFloat(water).
		Add(money.NewDecimalFromFloat(sewerage)).
		Add(money.NewDecimalFromFloat(fixed)).
		Add(money.NewDecimalFromFloat(taxes)).
		Add(money.NewDecimalFromFloat(additional)).
		Sub(money.NewDecimalFromFloat(discounts)).
		RoundToTenCents().
		Float64()
}
