package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

// DefaultQueueSize capacity of the tick queue.
const DefaultQueueSize = 1024

// Queue bounded FIFO of ticks between the watcher and the decision engine.
type Queue struct {
	ticks chan domain.Tick
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ticks: make(chan domain.Tick, size)}
}

// Push blocks until there is room or ctx is done.
func (q *Queue) Push(ctx context.Context, tick domain.Tick) error {
	select {
	case q.ticks <- tick:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len number of queued ticks.
func (q *Queue) Len() int {
	return len(q.ticks)
}

type evaluator interface {
	Evaluate(ctx context.Context, tick domain.Tick) error
}

type tickErrorObserver interface {
	TickError(kind string)
}

// TradingBot consumes ticks one at a time and feeds them to the decision engine.
type TradingBot struct {
	l           *zap.Logger
	queue       *Queue
	engine      evaluator
	tickTimeout time.Duration
	observer    tickErrorObserver
}

// NewTradingBot tickTimeout bounds a single evaluation.
func NewTradingBot(l *zap.Logger, queue *Queue, engine evaluator, tickTimeout time.Duration) (*TradingBot, error) {
	if queue == nil || engine == nil {
		return nil, errors.Wrap(domain.ErrInvalidConfiguration, "trading bot: queue and engine are required")
	}
	if tickTimeout <= 0 {
		return nil, errors.Wrapf(domain.ErrInvalidConfiguration, "trading bot: tick timeout must be positive, got %s", tickTimeout)
	}

	return &TradingBot{l: l, queue: queue, engine: engine, tickTimeout: tickTimeout}, nil
}

// WithObserver sets a hook notified of failed ticks.
func (b *TradingBot) WithObserver(o tickErrorObserver) *TradingBot {
	b.observer = o
	return b
}

// Run evaluates queued ticks until ctx is cancelled. The in-flight evaluation
// always runs to completion; ticks still queued at shutdown are dropped.
func (b *TradingBot) Run(ctx context.Context) error {
	b.l.Info("trading bot started")

	for {
		select {
		case <-ctx.Done():
			b.l.Info("trading bot stopped", zap.Int("dropped_ticks", b.queue.Len()))
			return nil
		case tick := <-b.queue.ticks:
			if ctx.Err() != nil {
				b.l.Info("trading bot stopped", zap.Int("dropped_ticks", b.queue.Len()+1))
				return nil
			}
			b.process(ctx, tick)
		}
	}
}

func (b *TradingBot) process(ctx context.Context, tick domain.Tick) {
	evalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.tickTimeout)
	defer cancel()

	err := b.engine.Evaluate(evalCtx, tick)
	if err == nil {
		return
	}

	for _, e := range multierr.Errors(err) {
		kind := errorKind(e)
		if b.observer != nil {
			b.observer.TickError(kind)
		}
		b.l.Error("tick evaluation failed",
			zap.String("symbol", tick.Ticker.Symbol),
			zap.String("price", tick.Ticker.Price.String()),
			zap.String("kind", kind),
			zap.Error(e))
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidPositionState):
		return "invalid_position_state"
	case errors.Is(err, domain.ErrDownstreamEmission):
		return "downstream_emission"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "other"
	}
}
