// Package indicators wraps cinar/indicator trend computations over decimal series.
package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
)

// CalculateEMA calculates the Exponential Moving Average for the given period.
// The result skips the warm-up window, so it holds len(closes)-period+1 values.
func CalculateEMA(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid EMA period %d", period)
	}
	if len(closes) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(closes))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	out := ema.Compute(helper.SliceToChan(decimalsToFloat64(closes)))

	return float64ToDecimals(helper.ChanToSlice(out)), nil
}

// LastEMA returns the most recent EMA value for every requested period, in order.
func LastEMA(closes []decimal.Decimal, periods ...int) ([]decimal.Decimal, error) {
	last := make([]decimal.Decimal, 0, len(periods))
	for _, period := range periods {
		series, err := CalculateEMA(closes, period)
		if err != nil {
			return nil, fmt.Errorf("EMA%d: %w", period, err)
		}
		if len(series) == 0 {
			return nil, fmt.Errorf("EMA%d: empty series", period)
		}
		last = append(last, series[len(series)-1])
	}

	return last, nil
}

func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i], _ = d.Float64()
	}
	return result
}

func float64ToDecimals(floats []float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(floats))
	for i, f := range floats {
		result[i] = decimal.NewFromFloat(f)
	}
	return result
}
