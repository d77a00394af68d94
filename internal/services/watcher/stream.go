package watcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

const (
	streamInterval  = "1m"
	maxReconnectGap = 30 * time.Second
)

type klineUpdate struct {
	symbol string // exchange form, e.g. BTCUSDT
	close  string
}

type streamServeFunc func(symbols map[string]string, handler func(klineUpdate), errHandler func(error)) (doneC, stopC chan struct{}, err error)

func binanceKlineStream(symbols map[string]string, handler func(klineUpdate), errHandler func(error)) (chan struct{}, chan struct{}, error) {
	return binance.WsCombinedKlineServe(symbols, func(ev *binance.WsKlineEvent) {
		if ev == nil {
			return
		}
		handler(klineUpdate{symbol: ev.Symbol, close: ev.Kline.Close})
	}, errHandler)
}

// stream keeps a combined kline subscription open and resubscribes when the
// connection drops or the tracked symbol set changes.
func (w *Watcher) stream(ctx context.Context) error {
	delay := time.Second
	refresh := time.NewTicker(w.interval)
	defer refresh.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		symbols := w.tracked()
		if len(symbols) == 0 {
			if !sleepWithContext(ctx, w.interval) {
				return nil
			}
			continue
		}

		byExchange := make(map[string]string, len(symbols))
		subscription := make(map[string]string, len(symbols))
		for _, symbol := range symbols {
			pair, err := domain.ParsePair(symbol)
			if err != nil {
				w.l.Error("skip malformed symbol", zap.String("symbol", symbol), zap.Error(err))
				continue
			}
			byExchange[pair.Symbol()] = symbol
			subscription[pair.Symbol()] = streamInterval
		}

		var (
			errMu   sync.Mutex
			lastErr error
		)
		handler := func(u klineUpdate) {
			symbol, ok := byExchange[strings.ToUpper(u.symbol)]
			if !ok {
				return
			}
			price, err := decimal.NewFromString(u.close)
			if err != nil {
				return
			}
			w.observe(ctx, symbol, price)
		}
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}

		doneC, stopC, err := w.serve(subscription, handler, errHandler)
		if err != nil {
			w.l.Warn("kline stream subscribe failed", zap.Error(err), zap.Duration("retry_in", delay))
			if !sleepWithContext(ctx, delay) {
				return nil
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		w.l.Info("kline stream connected", zap.Strings("symbols", symbols))

		if !w.holdStream(ctx, doneC, stopC, refresh.C, symbols) {
			return nil
		}

		errMu.Lock()
		cause := lastErr
		errMu.Unlock()
		if cause != nil {
			w.l.Warn("kline stream disconnected", zap.Error(cause))
			if !sleepWithContext(ctx, delay) {
				return nil
			}
			delay = nextDelay(delay)
		}
	}
}

// holdStream waits until the stream ends or must be rebuilt. It returns false on shutdown.
func (w *Watcher) holdStream(ctx context.Context, doneC, stopC chan struct{}, refresh <-chan time.Time, symbols []string) bool {
	for {
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return false
		case <-doneC:
			close(stopC)
			return true
		case <-refresh:
			if sameSymbols(symbols, w.tracked()) {
				continue
			}
			close(stopC)
			<-doneC
			return true
		}
	}
}

func sameSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxReconnectGap {
		return maxReconnectGap
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
