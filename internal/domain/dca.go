package domain

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const deviationPrecision = 2

var one = decimal.NewFromInt(1)

// Policy DCA parameters applied within a single evaluation.
type Policy struct {
	// SafetyOrderSize quote size of the first safety order.
	SafetyOrderSize decimal.Decimal
	// SafetyOrderBaseDeviation price deviation (percent) of the first safety order.
	SafetyOrderBaseDeviation decimal.Decimal
	// VolumeScale size multiplier of each further safety order.
	VolumeScale decimal.Decimal
	// StepScale deviation multiplier of each further safety order.
	StepScale       decimal.Decimal
	MaxSafetyOrders int
	// DynamicDCA places safety orders on actual PNL confirmed by a strategy plugin.
	DynamicDCA        bool
	TakeProfitPercent decimal.Decimal
	// DynamicTakeProfitDecay lowers take profit by this percent per safety order; 0 disables.
	DynamicTakeProfitDecay decimal.Decimal
	StopLossPercent        decimal.Decimal
	// TrailingTakeProfitPercent 0 disables trailing take profit.
	TrailingTakeProfitPercent decimal.Decimal
	// MaxActiveDeals open positions cap of the active tier; 0 means no tier cap.
	MaxActiveDeals int
	// Tier autopilot tier the policy was derived from.
	Tier TierName
}

// Validate reports every unusable parameter at once.
func (p Policy) Validate() error {
	var err error
	if !p.SafetyOrderSize.IsPositive() {
		err = multierr.Append(err, fmt.Errorf("safety order size must be positive, got %s", p.SafetyOrderSize))
	}
	if !p.SafetyOrderBaseDeviation.IsPositive() {
		err = multierr.Append(err, fmt.Errorf("safety order deviation must be positive, got %s", p.SafetyOrderBaseDeviation))
	}
	if !p.VolumeScale.IsPositive() {
		err = multierr.Append(err, fmt.Errorf("volume scale must be positive, got %s", p.VolumeScale))
	}
	if !p.StepScale.IsPositive() {
		err = multierr.Append(err, fmt.Errorf("step scale must be positive, got %s", p.StepScale))
	}
	if p.MaxSafetyOrders < 0 {
		err = multierr.Append(err, fmt.Errorf("max safety orders must not be negative, got %d", p.MaxSafetyOrders))
	}
	if !p.TakeProfitPercent.IsPositive() {
		err = multierr.Append(err, fmt.Errorf("take profit must be positive, got %s", p.TakeProfitPercent))
	}
	if p.DynamicTakeProfitDecay.IsNegative() {
		err = multierr.Append(err, fmt.Errorf("dynamic take profit must not be negative, got %s", p.DynamicTakeProfitDecay))
	}
	if p.StopLossPercent.IsNegative() {
		err = multierr.Append(err, fmt.Errorf("stop loss must not be negative, got %s", p.StopLossPercent))
	}
	if p.TrailingTakeProfitPercent.IsNegative() {
		err = multierr.Append(err, fmt.Errorf("trailing take profit must not be negative, got %s", p.TrailingTakeProfitPercent))
	}
	if p.MaxActiveDeals < 0 {
		err = multierr.Append(err, fmt.Errorf("max active deals must not be negative, got %d", p.MaxActiveDeals))
	}
	if err != nil {
		return errors.Wrap(ErrInvalidConfiguration, err.Error())
	}
	return nil
}

// WithTier returns a copy with the tier's overrides applied.
func (p Policy) WithTier(t Tier) Policy {
	if t.SafetyOrderBaseDeviation.IsPositive() {
		p.SafetyOrderBaseDeviation = t.SafetyOrderBaseDeviation
	}
	if t.TakeProfitPercent.IsPositive() {
		p.TakeProfitPercent = t.TakeProfitPercent
	}
	if t.StopLossPercent.IsPositive() {
		p.StopLossPercent = t.StopLossPercent
	}
	if t.MaxActiveDeals > 0 {
		p.MaxActiveDeals = t.MaxActiveDeals
	}
	p.Tier = t.Name
	return p
}

// TrailingEnabled reports whether trailing take profit is active.
func (p Policy) TrailingEnabled() bool {
	return p.TrailingTakeProfitPercent.IsPositive()
}

// EffectiveTakeProfit returns the take profit percent after dynamic decay for soCount safety orders.
func (p Policy) EffectiveTakeProfit(soCount int) decimal.Decimal {
	if !p.DynamicTakeProfitDecay.IsPositive() {
		return p.TakeProfitPercent
	}
	decayed := p.TakeProfitPercent.Sub(p.DynamicTakeProfitDecay.Mul(decimal.NewFromInt(int64(soCount))))
	return decimal.Max(decimal.Zero, decayed)
}

// CumulativeDeviation returns the total deviation from the base order covered by n safety orders:
// base*(1-step^n)/(1-step), or base*n when step is 1.
func CumulativeDeviation(base, step decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	count := decimal.NewFromInt(int64(n))
	if step.Equal(one) {
		return base.Mul(count)
	}
	return base.Mul(one.Sub(step.Pow(count))).Div(one.Sub(step))
}

// StaticDeviation returns the deviation thresholds for the next safety order in static mode:
// max is the cumulative deviation to reach (rounded to 2 places), actual the one already covered.
func (p Policy) StaticDeviation(soCount int) (maxDeviation, actualDeviation decimal.Decimal) {
	maxDeviation = CumulativeDeviation(p.SafetyOrderBaseDeviation, p.StepScale, soCount+1).Round(deviationPrecision)
	actualDeviation = CumulativeDeviation(p.SafetyOrderBaseDeviation, p.StepScale, soCount)
	return maxDeviation, actualDeviation
}

// NextSafetyOrder returns the adverse percentage (negative) and quote size of the next safety order.
func (p Policy) NextSafetyOrder(s Snapshot) (percentage, size decimal.Decimal) {
	last, hasLast, prev, hasPrev := s.LastSafetyOrders()
	if !hasLast {
		return p.SafetyOrderBaseDeviation.Abs().Neg(), p.SafetyOrderSize
	}

	previous := p.SafetyOrderBaseDeviation
	if hasPrev {
		previous = prev.SOPercentage
	}
	scaled := last.SOPercentage.Mul(p.StepScale).Abs()
	percentage = scaled.Add(previous.Abs()).Neg()

	return percentage, last.OrderSize.Mul(p.VolumeScale)
}

// TierName autopilot tier identifier.
type TierName string

const (
	TierNone   TierName = "none"
	TierMedium TierName = "medium"
	TierHigh   TierName = "high"
)

// Tier autopilot parameter overrides.
type Tier struct {
	Name                     TierName
	SafetyOrderBaseDeviation decimal.Decimal
	TakeProfitPercent        decimal.Decimal
	StopLossPercent          decimal.Decimal
	// MaxActiveDeals 0 keeps the static cap.
	MaxActiveDeals int
}
