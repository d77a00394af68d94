// Command dcabot runs the DCA trading bot.
//
// Usage:
//
//	dcabot --config config.yaml
//
// Secrets are read from the environment, optionally from a .env file:
//
//	BINANCE_API_KEY, BINANCE_API_SECRET for live Binance trading
//	BYBIT_API_KEY, BYBIT_API_SECRET for Bybit prices
//	REDIS_PASSWORD when redis.addr is set
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/dcabot/config"
	"github.com/vadiminshakov/dcabot/internal"
	rediscache "github.com/vadiminshakov/dcabot/internal/cache/redis"
	"github.com/vadiminshakov/dcabot/internal/clients"
	"github.com/vadiminshakov/dcabot/internal/domain"
	"github.com/vadiminshakov/dcabot/internal/metrics"
	"github.com/vadiminshakov/dcabot/internal/services/autopilot"
	"github.com/vadiminshakov/dcabot/internal/services/dispatcher"
	"github.com/vadiminshakov/dcabot/internal/services/pricer"
	dcasignal "github.com/vadiminshakov/dcabot/internal/services/signal"
	"github.com/vadiminshakov/dcabot/internal/services/statistic"
	"github.com/vadiminshakov/dcabot/internal/services/strategy/dca"
	"github.com/vadiminshakov/dcabot/internal/services/strategy/emalow"
	"github.com/vadiminshakov/dcabot/internal/services/trader"
	"github.com/vadiminshakov/dcabot/internal/services/watcher"
	"github.com/vadiminshakov/dcabot/internal/storage/decisions"
	"github.com/vadiminshakov/dcabot/internal/storage/history"
	"github.com/vadiminshakov/dcabot/internal/storage/positions"
	"github.com/vadiminshakov/dcabot/internal/storage/simstate"
	"github.com/vadiminshakov/dcabot/pkg/retrier"
)

const reportInterval = time.Minute

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	conf, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(conf.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, conf); err != nil {
		logger.Fatal("dcabot failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type balanceTrader interface {
	Buy(ctx context.Context, pair domain.Pair, quoteAmount decimal.Decimal, clientOrderID string) (domain.Fill, error)
	Sell(ctx context.Context, pair domain.Pair, baseAmount decimal.Decimal, clientOrderID string) (domain.Fill, error)
	GetBalance(ctx context.Context, currency string) (decimal.Decimal, error)
}

type exchange struct {
	trader balanceTrader
	pricer pricer.Pricer
	// binance serves klines for strategy plugins whatever the platform is
	binance *binance.Client
}

func newExchange(logger *zap.Logger, conf config.Config, r *retrier.Retrier) (exchange, error) {
	binanceClient := clients.NewBinanceClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"), conf.Exchange.Testnet)

	var prices pricer.Pricer = pricer.NewBinancePricer(binanceClient)
	if conf.Exchange.Platform == config.PlatformBybit {
		bybitClient := clients.NewBybitClient(os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET"))
		prices = pricer.NewBybitPricer(bybitClient, conf.Exchange.Market)
	}
	prices = pricer.NewRetrying(prices, r)

	ex := exchange{pricer: prices, binance: binanceClient}

	if conf.Exchange.Platform == config.PlatformBinance && !conf.Exchange.DryRun {
		if os.Getenv("BINANCE_API_KEY") == "" || os.Getenv("BINANCE_API_SECRET") == "" {
			return exchange{}, errors.Wrap(domain.ErrInvalidConfiguration, "BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
		}
		ex.trader = trader.NewBinanceTrader(binanceClient, conf.Exchange.Fee)
		return ex, nil
	}

	wallet, err := simstate.NewStore(conf.Exchange.Platform)
	if err != nil {
		return exchange{}, errors.Wrap(err, "open simulation wallet")
	}
	paper, err := trader.NewSimulateTrader(logger.Named("simulate"), prices, conf.Exchange.Fee, conf.Exchange.Currency, wallet)
	if err != nil {
		return exchange{}, err
	}
	ex.trader = paper

	return ex, nil
}

func tierRule(t config.Tier) autopilot.TierRule {
	return autopilot.TierRule{
		ThresholdPercent: t.Threshold,
		Tier: domain.Tier{
			SafetyOrderBaseDeviation: t.SOS,
			TakeProfitPercent:        t.TP,
			StopLossPercent:          t.SL,
			MaxActiveDeals:           t.MaxActiveDeals,
		},
	}
}

func serveMetrics(ctx context.Context, logger *zap.Logger, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "metrics server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func run(ctx context.Context, logger *zap.Logger, conf config.Config) (err error) {
	resources := &internal.Closers{}
	defer func() {
		err = multierr.Append(err, resources.Close())
	}()

	m := metrics.New()
	r := retrier.New(retrier.WithConfig(conf.Retry), retrier.WithOnRetry(func(attempt int, err error) {
		logger.Warn("retrying exchange call", zap.Int("attempt", attempt), zap.Error(err))
	}))

	positionStore, err := positions.NewWALStore(logger.Named("positions"), filepath.Join(conf.Storage.WALDir, "positions"))
	if err != nil {
		return errors.Wrap(err, "open position store")
	}
	resources.Add("positions", positionStore.Shutdown)

	decisionStore, err := decisions.NewWALStore(filepath.Join(conf.Storage.WALDir, "decisions"))
	if err != nil {
		return errors.Wrap(err, "open decision store")
	}
	resources.Add("decisions", decisionStore.Close)

	journal, err := dispatcher.NewJournal(filepath.Join(conf.Storage.WALDir, "orders"))
	if err != nil {
		return errors.Wrap(err, "open order journal")
	}
	resources.Add("journal", journal.Close)

	historyStore, err := history.NewGormStore(conf.Storage.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "open history store")
	}
	resources.Add("history", historyStore.Close)

	queue := internal.NewQueue(conf.Watcher.QueueSize)

	ex, err := newExchange(logger, conf, r)
	if err != nil {
		return err
	}

	balance, err := ex.trader.GetBalance(ctx, conf.Exchange.Currency)
	if err != nil {
		logger.Warn("failed to read balance", zap.Error(err))
	} else {
		logger.Info("balance", zap.String("currency", conf.Exchange.Currency), zap.String("free", balance.String()))
	}
	for _, rec := range journal.Pending() {
		logger.Warn("order left pending by a previous run, check the exchange before it is retried",
			zap.String("key", rec.Key), zap.String("symbol", rec.Symbol))
	}

	orders := dispatcher.New(logger.Named("dispatcher"), ex.trader, positionStore, historyStore, journal, r).WithObserver(m)
	sink := statistic.New(logger.Named("statistic"), decisionStore, positionStore, historyStore).WithObserver(m)

	selector, err := autopilot.NewSelector(logger.Named("autopilot"), autopilot.Config{
		Enabled: conf.Autopilot.Enabled,
		MaxFund: conf.Autopilot.MaxFund,
		Medium:  tierRule(conf.Autopilot.Medium),
		High:    tierRule(conf.Autopilot.High),
	}, historyStore)
	if err != nil {
		return err
	}
	selector.WithObserver(m)

	policies, err := autopilot.NewProvider(conf.Policy(), selector, sink)
	if err != nil {
		return err
	}

	engineOpts := []dca.Option{dca.WithTimeouts(dca.Timeouts{
		Snapshot: conf.Timeouts.Snapshot,
		Emission: conf.Timeouts.Emission,
	})}
	if conf.DCA.DynamicDCA && conf.DCA.Strategy == "emalow" {
		plugin, err := emalow.New(logger.Named("emalow"), emalow.NewBinanceKlines(ex.binance), conf.DCA.StrategyTimeframe)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, dca.WithConfirmation(plugin))
	}

	engine, err := dca.NewEngine(logger.Named("dca"), positionStore, policies, orders, sink, engineOpts...)
	if err != nil {
		return err
	}

	bot, err := internal.NewTradingBot(logger.Named("bot"), queue, engine, conf.TickTimeout())
	if err != nil {
		return err
	}
	bot.WithObserver(m)

	watcherOpts := []watcher.Option{watcher.WithInterval(conf.Watcher.Interval)}
	if conf.Watcher.Mode == config.WatcherModeStream {
		watcherOpts = append(watcherOpts, watcher.WithStream())
	}
	if conf.Redis.Addr != "" {
		rc, err := rediscache.New(ctx, rediscache.ClientConfig{Addr: conf.Redis.Addr, Password: conf.Redis.Password, DB: conf.Redis.DB})
		if err != nil {
			return err
		}
		resources.Add("redis", rc.Close)
		watcherOpts = append(watcherOpts, watcher.WithPriceStore(rediscache.NewPriceCache(rc, "")))
	}
	w, err := watcher.New(logger.Named("watcher"), conf.Symbols, positionStore, queue, ex.pricer, watcherOpts...)
	if err != nil {
		return err
	}

	var asap *dcasignal.ASAP
	if conf.Signal.ASAP {
		asap, err = dcasignal.NewASAP(logger.Named("asap"), dcasignal.ASAPConfig{
			Symbols:       conf.Symbols,
			Direction:     conf.DCA.Direction,
			BaseOrderSize: conf.DCA.BaseOrder,
			MaxBots:       conf.Signal.MaxBots,
			Interval:      conf.Signal.Interval,
		}, positionStore, orders)
		if err != nil {
			return err
		}
		asap.WithPolicy(policies)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return sink.Report(gctx, reportInterval) })
	g.Go(func() error { return serveMetrics(gctx, logger, conf.Metrics.Addr, m.Handler()) })

	if asap != nil {
		g.Go(func() error { return asap.Run(gctx) })
	}

	logger.Info("dcabot started",
		zap.String("platform", conf.Exchange.Platform),
		zap.Bool("dry_run", conf.Exchange.DryRun),
		zap.Strings("symbols", conf.Symbols))

	runErr := g.Wait()
	logger.Info("shutting down")

	return runErr
}
