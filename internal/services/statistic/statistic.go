// Package statistic collects decision telemetry and aggregate position figures.
package statistic

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

type eventStore interface {
	SaveDCACheck(event domain.DCACheck) error
	SaveTPCheck(event domain.TPCheck) error
}

type decisionObserver interface {
	Decision(check domain.DecisionType, fired bool)
}

type positionLedger interface {
	FundsLocked(ctx context.Context) (decimal.Decimal, error)
}

type profitSource interface {
	TotalProfit(ctx context.Context) (decimal.Decimal, error)
}

// Sink fans decision records out to the event store and an optional observer.
type Sink struct {
	l         *zap.Logger
	store     eventStore
	positions positionLedger
	profits   profitSource
	observer  decisionObserver
}

// New profits may be nil.
func New(l *zap.Logger, store eventStore, positions positionLedger, profits profitSource) *Sink {
	return &Sink{l: l, store: store, positions: positions, profits: profits}
}

// WithObserver sets a hook notified of every decision record.
func (s *Sink) WithObserver(o decisionObserver) *Sink {
	s.observer = o
	return s
}

func (s *Sink) RecordDCACheck(ctx context.Context, check domain.DCACheck) error {
	if s.observer != nil {
		s.observer.Decision(domain.DecisionTypeDCACheck, check.NewSO)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Wrap(s.store.SaveDCACheck(check), "save dca_check")
}

func (s *Sink) RecordTPCheck(ctx context.Context, check domain.TPCheck) error {
	if s.observer != nil {
		s.observer.Decision(domain.DecisionTypeTPCheck, check.Sell)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Wrap(s.store.SaveTPCheck(check), "save tp_check")
}

// FundsLocked total cost of all open positions.
func (s *Sink) FundsLocked(ctx context.Context) (decimal.Decimal, error) {
	return s.positions.FundsLocked(ctx)
}

// Summary aggregate figures for periodic reporting.
type Summary struct {
	FundsLocked decimal.Decimal
	Profit      decimal.Decimal
}

// Summary returns locked funds and realized profit. Missing figures are zero.
func (s *Sink) Summary(ctx context.Context) (Summary, error) {
	var (
		summary Summary
		errs    error
		err     error
	)

	summary.FundsLocked, err = s.positions.FundsLocked(ctx)
	errs = multierr.Append(errs, err)

	if s.profits != nil {
		summary.Profit, err = s.profits.TotalProfit(ctx)
		errs = multierr.Append(errs, err)
	}

	return summary, errs
}

// Report logs Summary every interval until ctx is cancelled.
func (s *Sink) Report(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.Summary(ctx)
			if err != nil {
				s.l.Warn("statistics summary incomplete", zap.Error(err))
			}
			s.l.Info("statistics",
				zap.String("funds_locked", summary.FundsLocked.String()),
				zap.String("profit", summary.Profit.String()))
		}
	}
}
