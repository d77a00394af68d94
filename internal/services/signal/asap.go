// Package signal decides when new positions are opened.
package signal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

// DefaultInterval period between ASAP passes.
const DefaultInterval = 30 * time.Second

type positionLister interface {
	Symbols() []string
	Count() int
}

type opener interface {
	OpenPosition(ctx context.Context, symbol string, direction domain.Direction, quoteSize decimal.Decimal) (domain.Snapshot, error)
}

type policySource interface {
	ActivePolicy(ctx context.Context) (domain.Policy, error)
}

// ASAPConfig parameters of the ASAP signal.
type ASAPConfig struct {
	Symbols       []string
	Direction     domain.Direction
	BaseOrderSize decimal.Decimal
	MaxBots       int
	Interval      time.Duration
}

// ASAP opens a base order for every configured symbol without a position,
// as long as fewer than MaxBots positions are open. An autopilot tier with
// max active deals set lowers that cap while it is active.
type ASAP struct {
	l         *zap.Logger
	cfg       ASAPConfig
	positions positionLister
	orders    opener
	policies  policySource
}

func NewASAP(l *zap.Logger, cfg ASAPConfig, positions positionLister, orders opener) (*ASAP, error) {
	if !cfg.BaseOrderSize.IsPositive() {
		return nil, errors.Wrapf(domain.ErrInvalidConfiguration, "asap: base order size must be positive, got %s", cfg.BaseOrderSize)
	}
	if cfg.MaxBots <= 0 {
		return nil, errors.Wrapf(domain.ErrInvalidConfiguration, "asap: max_bots must be positive, got %d", cfg.MaxBots)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	return &ASAP{l: l, cfg: cfg, positions: positions, orders: orders}, nil
}

// WithPolicy sets the source of the active tier's max active deals.
func (a *ASAP) WithPolicy(p policySource) *ASAP {
	a.policies = p
	return a
}

// maxBots cap for the current pass.
func (a *ASAP) maxBots(ctx context.Context) int {
	if a.policies == nil {
		return a.cfg.MaxBots
	}

	policy, err := a.policies.ActivePolicy(ctx)
	if err != nil {
		a.l.Warn("failed to resolve active policy, using max_bots", zap.Error(err))
		return a.cfg.MaxBots
	}
	if policy.MaxActiveDeals > 0 && policy.MaxActiveDeals < a.cfg.MaxBots {
		return policy.MaxActiveDeals
	}
	return a.cfg.MaxBots
}

// Run blocks until ctx is cancelled.
func (a *ASAP) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		a.Scan(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Scan performs a single pass and returns the number of opened positions.
func (a *ASAP) Scan(ctx context.Context) int {
	open := make(map[string]struct{})
	for _, s := range a.positions.Symbols() {
		open[s] = struct{}{}
	}

	maxBots := a.maxBots(ctx)

	opened := 0
	for _, symbol := range a.cfg.Symbols {
		if ctx.Err() != nil {
			return opened
		}
		if _, ok := open[symbol]; ok {
			continue
		}
		if a.positions.Count() >= maxBots {
			a.l.Debug("max bots reached", zap.Int("max_bots", maxBots))
			return opened
		}

		snapshot, err := a.orders.OpenPosition(ctx, symbol, a.cfg.Direction, a.cfg.BaseOrderSize)
		if err != nil {
			a.l.Error("failed to open position", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		opened++
		a.l.Info("position opened",
			zap.String("symbol", symbol),
			zap.String("price", snapshot.BaseOrderPrice.String()),
			zap.String("cost", snapshot.TotalCost.String()))
	}

	return opened
}
