// Package autopilot swaps the active DCA parameter set depending on how much capital is locked in open positions.
package autopilot

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// TierRule a tier and the locked-funds share (percent of max fund) that activates it.
type TierRule struct {
	ThresholdPercent decimal.Decimal
	Tier             domain.Tier
}

// Config autopilot settings.
type Config struct {
	Enabled bool
	MaxFund decimal.Decimal
	Medium  TierRule
	High    TierRule
}

type tierRecorder interface {
	RecordTierChange(ctx context.Context, tier domain.TierName, thresholdPercent decimal.Decimal, at time.Time) error
}

type tierObserver interface {
	AutopilotTier(tier domain.TierName)
}

// Selector maps locked funds to a tier.
type Selector struct {
	l        *zap.Logger
	cfg      Config
	recorder tierRecorder
	observer tierObserver

	mu       sync.Mutex
	selected *domain.TierName
}

// NewSelector validates cfg. recorder may be nil.
func NewSelector(l *zap.Logger, cfg Config, recorder tierRecorder) (*Selector, error) {
	if cfg.Enabled && !cfg.MaxFund.IsPositive() {
		return nil, errors.Wrapf(domain.ErrInvalidConfiguration, "autopilot max fund must be positive, got %s", cfg.MaxFund)
	}
	if cfg.Enabled && cfg.High.ThresholdPercent.LessThan(cfg.Medium.ThresholdPercent) {
		return nil, errors.Wrapf(domain.ErrInvalidConfiguration,
			"autopilot high threshold %s is below medium threshold %s", cfg.High.ThresholdPercent, cfg.Medium.ThresholdPercent)
	}

	cfg.Medium.Tier.Name = domain.TierMedium
	cfg.High.Tier.Name = domain.TierHigh

	return &Selector{l: l, cfg: cfg, recorder: recorder}, nil
}

// WithObserver sets a hook notified of every selection.
func (s *Selector) WithObserver(o tierObserver) *Selector {
	s.observer = o
	return s
}

// Enabled reports whether autopilot overrides are active.
func (s *Selector) Enabled() bool {
	return s.cfg.Enabled
}

// Select returns the tier for fundsLocked, or nil when the static policy applies.
func (s *Selector) Select(ctx context.Context, fundsLocked decimal.Decimal) *domain.Tier {
	if !s.cfg.Enabled {
		return nil
	}

	threshold := fundsLocked.Div(s.cfg.MaxFund).Mul(hundred)

	var tier *domain.Tier
	switch {
	case threshold.GreaterThanOrEqual(s.cfg.High.ThresholdPercent):
		t := s.cfg.High.Tier
		tier = &t
	case threshold.GreaterThanOrEqual(s.cfg.Medium.ThresholdPercent):
		t := s.cfg.Medium.Tier
		tier = &t
	}

	name := domain.TierNone
	if tier != nil {
		name = tier.Name
	}
	s.noteSelection(ctx, name, threshold)

	return tier
}

func (s *Selector) noteSelection(ctx context.Context, name domain.TierName, threshold decimal.Decimal) {
	if s.observer != nil {
		s.observer.AutopilotTier(name)
	}

	s.mu.Lock()
	changed := s.selected == nil || *s.selected != name
	if changed {
		s.selected = &name
	}
	s.mu.Unlock()

	if !changed {
		return
	}

	s.l.Info("autopilot tier changed",
		zap.String("tier", string(name)),
		zap.String("threshold_percent", threshold.StringFixed(2)))

	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordTierChange(ctx, name, threshold, time.Now()); err != nil {
		s.l.Error("failed to record autopilot tier change", zap.String("tier", string(name)), zap.Error(err))
	}
}
