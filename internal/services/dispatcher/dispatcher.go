// Package dispatcher executes order intents against a trader and keeps position and trade records in sync.
package dispatcher

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
	"github.com/vadiminshakov/dcabot/pkg/retrier"
)

var hundred = decimal.NewFromInt(100)

type trader interface {
	// Buy spends quoteAmount of pair.To.
	Buy(ctx context.Context, pair domain.Pair, quoteAmount decimal.Decimal, clientOrderID string) (domain.Fill, error)
	// Sell sells baseAmount of pair.From.
	Sell(ctx context.Context, pair domain.Pair, baseAmount decimal.Decimal, clientOrderID string) (domain.Fill, error)
}

type positionStore interface {
	Snapshot(ctx context.Context, symbol string) (domain.Snapshot, error)
	Open(ctx context.Context, symbol string, direction domain.Direction, orderType string, fill domain.Fill) (domain.Snapshot, error)
	AddSafetyOrder(ctx context.Context, symbol string, orderSize, soPercentage decimal.Decimal, fill domain.Fill) (domain.Snapshot, error)
	Close(ctx context.Context, symbol string) error
}

type tradeRecorder interface {
	RecordClosedTrade(ctx context.Context, trade domain.ClosedTrade) error
}

type orderObserver interface {
	OrderFilled(side domain.Side)
}

// Dispatcher places orders for base, safety and sell intents.
type Dispatcher struct {
	l         *zap.Logger
	trader    trader
	positions positionStore
	history   tradeRecorder
	journal   *Journal
	retrier   *retrier.Retrier
	observer  orderObserver

	mu sync.Mutex
}

// New history may be nil.
func New(l *zap.Logger, trader trader, positions positionStore, history tradeRecorder, journal *Journal, r *retrier.Retrier) *Dispatcher {
	if r == nil {
		r = retrier.New()
	}
	return &Dispatcher{
		l:         l,
		trader:    trader,
		positions: positions,
		history:   history,
		journal:   journal,
		retrier:   r,
	}
}

// WithObserver sets a hook notified of every filled order.
func (d *Dispatcher) WithObserver(o orderObserver) *Dispatcher {
	d.observer = o
	return d
}

// OpenPosition places the base order for symbol and creates the position.
func (d *Dispatcher) OpenPosition(ctx context.Context, symbol string, direction domain.Direction, quoteSize decimal.Decimal) (domain.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return domain.Snapshot{}, err
	}
	symbol = pair.String()

	if _, err := d.positions.Snapshot(ctx, symbol); err == nil {
		return domain.Snapshot{}, errors.Wrapf(domain.ErrDuplicateOrder, "position for %s is already open", symbol)
	} else if !errors.Is(err, domain.ErrSnapshotUnavailable) {
		return domain.Snapshot{}, errors.Wrapf(err, "check open position %s", symbol)
	}

	rec, err := d.journal.Begin(orderKey(domain.SideBuy, uuid.New().String(), 0), symbol, domain.SideBuy, 0, quoteSize)
	if err != nil {
		return domain.Snapshot{}, err
	}

	fill, err := d.execute(ctx, rec, func(ctx context.Context) (domain.Fill, error) {
		return d.trader.Buy(ctx, pair, quoteSize, rec.ClientOrderID)
	})
	if err != nil {
		return domain.Snapshot{}, errors.Wrapf(err, "base order %s", symbol)
	}

	snapshot, err := d.positions.Open(ctx, symbol, direction, domain.OrderTypeMarket, fill)
	if err != nil {
		d.l.Error("base order filled but position not stored", zap.String("symbol", symbol), zap.String("order", rec.ClientOrderID), zap.Error(err))
		return domain.Snapshot{}, errors.Wrapf(err, "store position %s", symbol)
	}
	d.complete(rec, domain.SideBuy)

	d.l.Info("position opened",
		zap.String("symbol", symbol),
		zap.String("price", fill.Price.String()),
		zap.String("cost", fill.Cost.String()))
	return snapshot, nil
}

// Buy places a safety order. Stale or repeated intents fail with domain.ErrDuplicateOrder.
func (d *Dispatcher) Buy(ctx context.Context, intent domain.BuyIntent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pair, err := domain.ParsePair(intent.Symbol)
	if err != nil {
		return err
	}

	snapshot, err := d.positions.Snapshot(ctx, intent.Symbol)
	if err != nil {
		return errors.Wrapf(err, "safety order %s", intent)
	}
	if intent.OrderCount != snapshot.SafetyOrderCount()+1 {
		return errors.Wrapf(domain.ErrDuplicateOrder, "%s: position already has %d safety orders", intent, snapshot.SafetyOrderCount())
	}

	rec, err := d.journal.Begin(orderKey(domain.SideBuy, snapshot.ID, intent.OrderCount), intent.Symbol, domain.SideBuy, intent.OrderCount, intent.OrderSize)
	if err != nil {
		return err
	}

	fill, err := d.execute(ctx, rec, func(ctx context.Context) (domain.Fill, error) {
		return d.trader.Buy(ctx, pair, intent.OrderSize, rec.ClientOrderID)
	})
	if err != nil {
		return errors.Wrapf(err, "safety order %s", intent)
	}

	if _, err := d.positions.AddSafetyOrder(ctx, intent.Symbol, intent.OrderSize, intent.SOPercentage, fill); err != nil {
		d.l.Error("safety order filled but position not updated", zap.Stringer("intent", intent), zap.Error(err))
		return errors.Wrapf(err, "store safety order %s", intent)
	}
	d.complete(rec, domain.SideBuy)

	d.l.Info("safety order filled",
		zap.Stringer("intent", intent),
		zap.String("price", fill.Price.String()),
		zap.String("quantity", fill.Quantity.String()))
	return nil
}

// Sell closes the whole position and records the closed trade.
func (d *Dispatcher) Sell(ctx context.Context, intent domain.SellIntent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pair, err := domain.ParsePair(intent.Symbol)
	if err != nil {
		return err
	}

	snapshot, err := d.positions.Snapshot(ctx, intent.Symbol)
	if err != nil {
		return errors.Wrapf(err, "sell %s", intent.Symbol)
	}

	rec, err := d.journal.Begin(orderKey(domain.SideSell, snapshot.ID, snapshot.SafetyOrderCount()), intent.Symbol, domain.SideSell,
		snapshot.SafetyOrderCount(), snapshot.TotalAmount)
	if err != nil {
		return err
	}

	fill, err := d.execute(ctx, rec, func(ctx context.Context) (domain.Fill, error) {
		return d.trader.Sell(ctx, pair, snapshot.TotalAmount, rec.ClientOrderID)
	})
	if err != nil {
		return errors.Wrapf(err, "sell %s", intent.Symbol)
	}

	if err := d.positions.Close(ctx, intent.Symbol); err != nil {
		d.l.Error("sell filled but position not closed", zap.String("symbol", intent.Symbol), zap.Error(err))
		return errors.Wrapf(err, "close position %s", intent.Symbol)
	}
	d.complete(rec, domain.SideSell)

	trade := closedTrade(snapshot, fill)
	d.l.Info("position closed",
		zap.String("symbol", trade.Symbol),
		zap.String("profit", trade.Profit.StringFixed(2)),
		zap.String("profit_percent", trade.ProfitPercent.StringFixed(2)),
		zap.Int("so_count", trade.SOCount),
		zap.Duration("duration", trade.Duration()))

	if d.history != nil {
		if err := d.history.RecordClosedTrade(ctx, trade); err != nil {
			d.l.Error("failed to record closed trade", zap.String("symbol", trade.Symbol), zap.Error(err))
		}
	}
	return nil
}

func (d *Dispatcher) execute(ctx context.Context, rec *orderRecord, place func(ctx context.Context) (domain.Fill, error)) (domain.Fill, error) {
	fill, err := retrier.DoWithData(ctx, d.retrier, func(ctx context.Context) (domain.Fill, error) {
		fill, err := place(ctx)
		if errors.Is(err, domain.ErrDuplicateOrder) {
			return fill, retrier.Permanent(err)
		}
		return fill, err
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateOrder) {
			// the exchange already knows this client order id; keep the entry pending
			return domain.Fill{}, err
		}
		if markErr := d.journal.MarkFailed(rec, err); markErr != nil {
			d.l.Error("failed to journal order failure", zap.String("key", rec.Key), zap.Error(markErr))
		}
		return domain.Fill{}, err
	}
	return fill, nil
}

func (d *Dispatcher) complete(rec *orderRecord, side domain.Side) {
	if err := d.journal.MarkDone(rec); err != nil {
		d.l.Error("failed to journal order completion", zap.String("key", rec.Key), zap.Error(err))
	}
	if d.observer != nil {
		d.observer.OrderFilled(side)
	}
}

func closedTrade(snapshot domain.Snapshot, fill domain.Fill) domain.ClosedTrade {
	profit := fill.Cost.Sub(snapshot.TotalCost)
	profitPercent := decimal.Zero
	if snapshot.TotalCost.IsPositive() {
		profitPercent = profit.Div(snapshot.TotalCost).Mul(hundred)
	}
	avg, _ := domain.AverageBuyPrice(snapshot)

	return domain.ClosedTrade{
		Symbol:        snapshot.Symbol,
		SOCount:       snapshot.SafetyOrderCount(),
		Profit:        profit,
		ProfitPercent: profitPercent,
		Amount:        fill.Quantity,
		Cost:          snapshot.TotalCost,
		TPPrice:       fill.Price,
		AvgPrice:      avg,
		OpenDate:      snapshot.OpenedAt,
		CloseDate:     fill.Time,
	}
}
