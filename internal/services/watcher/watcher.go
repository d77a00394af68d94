// Package watcher turns exchange prices into ticker_price ticks for the decision engine.
package watcher

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

// Mode selects how prices are acquired.
type Mode string

const (
	ModePoll   Mode = "poll"
	ModeStream Mode = "stream"
)

// DefaultInterval poll period and tracked-set refresh period.
const DefaultInterval = 5 * time.Second

type pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

type tickSink interface {
	Push(ctx context.Context, tick domain.Tick) error
}

type openPositions interface {
	Symbols() []string
}

// LastPriceStore remembers the last price seen per symbol.
type LastPriceStore interface {
	Swap(ctx context.Context, symbol string, price decimal.Decimal) (previous decimal.Decimal, seen bool, err error)
}

// Watcher emits a tick whenever a tracked symbol's price changes.
type Watcher struct {
	l         *zap.Logger
	mode      Mode
	interval  time.Duration
	symbols   []string
	positions openPositions
	sink      tickSink
	prices    LastPriceStore
	pricer    pricer
	serve     streamServeFunc
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPriceStore replaces the in-memory last price store.
func WithPriceStore(s LastPriceStore) Option {
	return func(w *Watcher) { w.prices = s }
}

// WithInterval sets the poll period.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithStream switches the watcher to the Binance kline stream.
func WithStream() Option {
	return func(w *Watcher) {
		w.mode = ModeStream
		w.serve = binanceKlineStream
	}
}

func withStreamServe(serve streamServeFunc) Option {
	return func(w *Watcher) {
		w.mode = ModeStream
		w.serve = serve
	}
}

// New creates a watcher over the configured symbols and every symbol with an open position.
// pricer is used in poll mode only and may be nil with WithStream.
func New(l *zap.Logger, symbols []string, positions openPositions, sink tickSink, p pricer, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		l:         l,
		mode:      ModePoll,
		interval:  DefaultInterval,
		symbols:   symbols,
		positions: positions,
		sink:      sink,
		pricer:    p,
		prices:    newMemoryPrices(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if sink == nil || positions == nil {
		return nil, errors.Wrap(domain.ErrInvalidConfiguration, "watcher: sink and positions are required")
	}
	if w.mode == ModePoll && w.pricer == nil {
		return nil, errors.Wrap(domain.ErrInvalidConfiguration, "watcher: poll mode needs a pricer")
	}

	return w, nil
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.l.Info("watcher started", zap.String("mode", string(w.mode)), zap.Duration("interval", w.interval))
	defer w.l.Info("watcher stopped")

	if w.mode == ModeStream {
		return w.stream(ctx)
	}
	return w.poll(ctx)
}

// tracked returns configured symbols merged with open positions, sorted and deduplicated.
func (w *Watcher) tracked() []string {
	set := make(map[string]struct{}, len(w.symbols))
	for _, s := range w.symbols {
		set[s] = struct{}{}
	}
	for _, s := range w.positions.Symbols() {
		set[s] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)

	return out
}

func (w *Watcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.pollOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) pollOnce(ctx context.Context) {
	for _, symbol := range w.tracked() {
		if ctx.Err() != nil {
			return
		}

		pair, err := domain.ParsePair(symbol)
		if err != nil {
			w.l.Error("skip malformed symbol", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		price, err := w.pricer.GetPrice(ctx, pair)
		if err != nil {
			w.l.Warn("failed to get price", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		w.observe(ctx, symbol, price)
	}
}

// observe pushes a tick when price differs from the last one seen for symbol.
// The first observation is only recorded.
func (w *Watcher) observe(ctx context.Context, symbol string, price decimal.Decimal) {
	previous, seen, err := w.prices.Swap(ctx, symbol, price)
	if err != nil {
		w.l.Warn("last price store failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if !seen || previous.Equal(price) {
		return
	}

	if err := w.sink.Push(ctx, domain.NewPriceTick(symbol, price)); err != nil && ctx.Err() == nil {
		w.l.Error("failed to enqueue tick", zap.String("symbol", symbol), zap.Error(err))
	}
}

type memoryPrices struct {
	mu   sync.Mutex
	last map[string]decimal.Decimal
}

func newMemoryPrices() *memoryPrices {
	return &memoryPrices{last: make(map[string]decimal.Decimal)}
}

func (m *memoryPrices) Swap(_ context.Context, symbol string, price decimal.Decimal) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, seen := m.last[symbol]
	m.last[symbol] = price

	return previous, seen, nil
}
