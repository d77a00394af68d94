// Package config loads the bot configuration from a YAML file.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/dcabot/internal/domain"
	"github.com/vadiminshakov/dcabot/pkg/retrier"
)

const (
	PlatformBinance  = "binance"
	PlatformBybit    = "bybit"
	PlatformSimulate = "simulate"

	WatcherModePoll   = "poll"
	WatcherModeStream = "stream"
)

// DefaultPath config file used when --config is not given.
const DefaultPath = "config.yaml"

type Config struct {
	LogLevel  string
	Exchange  Exchange
	Symbols   []string
	DCA       DCA
	Autopilot Autopilot
	Signal    Signal
	Watcher   Watcher
	Retry     retrier.Config
	Timeouts  Timeouts
	Storage   Storage
	Redis     Redis
	Metrics   Metrics
}

type Exchange struct {
	Platform string
	Market   domain.MarketType
	Currency string
	Fee      decimal.Decimal
	DryRun   bool
	Testnet  bool
}

type DCA struct {
	Direction         domain.Direction
	BaseOrder         decimal.Decimal
	SafetyOrder       decimal.Decimal
	VolumeScale       decimal.Decimal
	StepScale         decimal.Decimal
	MaxSafetyOrders   int
	SafetyOrderStep   decimal.Decimal
	TakeProfit        decimal.Decimal
	StopLoss          decimal.Decimal
	TrailingTP        decimal.Decimal
	DynamicDCA        bool
	DynamicTP         decimal.Decimal
	Strategy          string
	StrategyTimeframe string
}

type Tier struct {
	Threshold decimal.Decimal
	SOS       decimal.Decimal
	TP        decimal.Decimal
	SL        decimal.Decimal
	// MaxActiveDeals caps open positions while the tier is active; zero keeps signal.max_bots.
	MaxActiveDeals int
}

type Autopilot struct {
	Enabled bool
	MaxFund decimal.Decimal
	Medium  Tier
	High    Tier
}

type Signal struct {
	ASAP     bool
	MaxBots  int
	Interval time.Duration
}

type Watcher struct {
	Mode      string
	Interval  time.Duration
	QueueSize int
}

type Timeouts struct {
	Snapshot time.Duration
	Emission time.Duration
}

type Storage struct {
	WALDir     string
	SQLitePath string
}

type Redis struct {
	Addr     string
	DB       int
	Password string
}

type Metrics struct {
	Addr string
}

// Policy static DCA policy described by the dca section.
func (c Config) Policy() domain.Policy {
	return domain.Policy{
		SafetyOrderSize:           c.DCA.SafetyOrder,
		SafetyOrderBaseDeviation:  c.DCA.SafetyOrderStep,
		VolumeScale:               c.DCA.VolumeScale,
		StepScale:                 c.DCA.StepScale,
		MaxSafetyOrders:           c.DCA.MaxSafetyOrders,
		DynamicDCA:                c.DCA.DynamicDCA,
		TakeProfitPercent:         c.DCA.TakeProfit,
		DynamicTakeProfitDecay:    c.DCA.DynamicTP,
		StopLossPercent:           c.DCA.StopLoss,
		TrailingTakeProfitPercent: c.DCA.TrailingTP,
		Tier:                      domain.TierNone,
	}
}

type tierTmp struct {
	Threshold string `yaml:"threshold"`
	SOS       string `yaml:"sos"`
	TP        string `yaml:"tp"`
	SL        string `yaml:"sl"`
	MAD       int    `yaml:"mad"`
}

type configTmp struct {
	LogLevel string `yaml:"log_level"`
	Exchange struct {
		Platform string `yaml:"platform"`
		Market   string `yaml:"market"`
		Currency string `yaml:"currency"`
		Fee      string `yaml:"fee"`
		DryRun   bool   `yaml:"dry_run"`
		Testnet  bool   `yaml:"testnet"`
	} `yaml:"exchange"`
	Symbols []string `yaml:"symbols"`
	DCA     struct {
		Direction         string `yaml:"direction"`
		BO                string `yaml:"bo"`
		SO                string `yaml:"so"`
		OS                string `yaml:"os"`
		SS                string `yaml:"ss"`
		MSTC              *int   `yaml:"mstc"`
		SOS               string `yaml:"sos"`
		TP                string `yaml:"tp"`
		SL                string `yaml:"sl"`
		TrailingTP        string `yaml:"trailing_tp"`
		DynamicDCA        bool   `yaml:"dynamic_dca"`
		DynamicTP         string `yaml:"dynamic_tp"`
		Strategy          string `yaml:"dca_strategy"`
		StrategyTimeframe string `yaml:"dca_strategy_timeframe"`
	} `yaml:"dca"`
	Autopilot struct {
		Enabled bool    `yaml:"enabled"`
		MaxFund string  `yaml:"max_fund"`
		Medium  tierTmp `yaml:"medium"`
		High    tierTmp `yaml:"high"`
	} `yaml:"autopilot"`
	Signal struct {
		ASAP     *bool         `yaml:"asap"`
		MaxBots  int           `yaml:"max_bots"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"signal"`
	Watcher struct {
		Mode      string        `yaml:"mode"`
		Interval  time.Duration `yaml:"interval"`
		QueueSize int           `yaml:"queue_size"`
	} `yaml:"watcher"`
	Retry    retrier.Config `yaml:"retry"`
	Timeouts struct {
		Snapshot time.Duration `yaml:"snapshot"`
		Emission time.Duration `yaml:"emission"`
	} `yaml:"timeouts"`
	Storage struct {
		WALDir     string `yaml:"wal_dir"`
		SQLitePath string `yaml:"sqlite"`
	} `yaml:"storage"`
	Redis struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
	} `yaml:"redis"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Get reads the file named by --config and validates it.
func Get() (Config, error) {
	path := flag.String("config", DefaultPath, "path to yaml config")
	flag.Parse()

	return Load(*path)
}

// Load reads, defaults and validates the config at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	return Parse(raw)
}

// Parse builds a validated Config from YAML.
func Parse(raw []byte) (Config, error) {
	var tmp configTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return Config{}, errors.Wrap(domain.ErrInvalidConfiguration, err.Error())
	}

	c, err := tmp.convert()
	if err != nil {
		return Config{}, errors.Wrap(domain.ErrInvalidConfiguration, err.Error())
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// parser collects conversion errors so every bad field is reported at once.
type parser struct {
	errs error
}

func (p *parser) decimal(field, raw, def string) decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		raw = def
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		p.errs = multierr.Append(p.errs, fmt.Errorf("incorrect %q param (must be a decimal): %w", field, err))
	}
	return d
}

func (p *parser) tier(prefix string, t tierTmp) Tier {
	return Tier{
		Threshold:      p.decimal(prefix+".threshold", t.Threshold, "0"),
		SOS:            p.decimal(prefix+".sos", t.SOS, "0"),
		TP:             p.decimal(prefix+".tp", t.TP, "0"),
		SL:             p.decimal(prefix+".sl", t.SL, "0"),
		MaxActiveDeals: t.MAD,
	}
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func (t configTmp) convert() (Config, error) {
	p := &parser{}

	c := Config{
		LogLevel: orDefault(t.LogLevel, "info"),
		Exchange: Exchange{
			Platform: strings.ToLower(orDefault(t.Exchange.Platform, PlatformSimulate)),
			Market:   domain.MarketType(strings.ToLower(orDefault(t.Exchange.Market, string(domain.MarketTypeSpot)))),
			Currency: strings.ToUpper(orDefault(t.Exchange.Currency, "USDT")),
			Fee:      p.decimal("exchange.fee", t.Exchange.Fee, "0.001"),
			DryRun:   t.Exchange.DryRun,
			Testnet:  t.Exchange.Testnet,
		},
		DCA: DCA{
			BaseOrder:         p.decimal("dca.bo", t.DCA.BO, "10"),
			SafetyOrder:       p.decimal("dca.so", t.DCA.SO, "20"),
			VolumeScale:       p.decimal("dca.os", t.DCA.OS, "1"),
			StepScale:         p.decimal("dca.ss", t.DCA.SS, "1"),
			MaxSafetyOrders:   10,
			SafetyOrderStep:   p.decimal("dca.sos", t.DCA.SOS, "2"),
			TakeProfit:        p.decimal("dca.tp", t.DCA.TP, "1"),
			StopLoss:          p.decimal("dca.sl", t.DCA.SL, "0"),
			TrailingTP:        p.decimal("dca.trailing_tp", t.DCA.TrailingTP, "0"),
			DynamicDCA:        t.DCA.DynamicDCA,
			DynamicTP:         p.decimal("dca.dynamic_tp", t.DCA.DynamicTP, "0"),
			Strategy:          t.DCA.Strategy,
			StrategyTimeframe: orDefault(t.DCA.StrategyTimeframe, "15m"),
		},
		Autopilot: Autopilot{
			Enabled: t.Autopilot.Enabled,
			MaxFund: p.decimal("autopilot.max_fund", t.Autopilot.MaxFund, "0"),
			Medium:  p.tier("autopilot.medium", t.Autopilot.Medium),
			High:    p.tier("autopilot.high", t.Autopilot.High),
		},
		Signal: Signal{
			ASAP:     true,
			MaxBots:  orDefault(t.Signal.MaxBots, 1),
			Interval: orDefault(t.Signal.Interval, 30*time.Second),
		},
		Watcher: Watcher{
			Mode:      strings.ToLower(orDefault(t.Watcher.Mode, WatcherModePoll)),
			Interval:  orDefault(t.Watcher.Interval, 5*time.Second),
			QueueSize: orDefault(t.Watcher.QueueSize, 1024),
		},
		Retry: retrier.Config{
			MaxAttempts:     orDefault(t.Retry.MaxAttempts, 5),
			InitialInterval: orDefault(t.Retry.InitialInterval, 500*time.Millisecond),
			MaxInterval:     orDefault(t.Retry.MaxInterval, 10*time.Second),
		},
		Timeouts: Timeouts{
			Snapshot: orDefault(t.Timeouts.Snapshot, 3*time.Second),
			Emission: orDefault(t.Timeouts.Emission, 5*time.Second),
		},
		Storage: Storage{
			WALDir:     orDefault(t.Storage.WALDir, "./wal"),
			SQLitePath: orDefault(t.Storage.SQLitePath, "./data/history.db"),
		},
		Redis: Redis{
			Addr: t.Redis.Addr,
			DB:   t.Redis.DB,
		},
		Metrics: Metrics{
			Addr: orDefault(t.Metrics.Addr, ":9100"),
		},
	}

	if t.DCA.MSTC != nil {
		c.DCA.MaxSafetyOrders = *t.DCA.MSTC
	}
	if t.Signal.ASAP != nil {
		c.Signal.ASAP = *t.Signal.ASAP
	}

	direction, err := domain.ParseDirection(orDefault(t.DCA.Direction, "long"))
	if err != nil {
		p.errs = multierr.Append(p.errs, err)
	}
	c.DCA.Direction = direction

	for _, s := range t.Symbols {
		pair, err := domain.ParsePair(s)
		if err != nil {
			p.errs = multierr.Append(p.errs, err)
			continue
		}
		c.Symbols = append(c.Symbols, pair.String())
	}

	return c, p.errs
}

// Validate reports every configuration problem at once, wrapped in ErrInvalidConfiguration.
func (c Config) Validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	switch c.Exchange.Platform {
	case PlatformBinance, PlatformSimulate:
	case PlatformBybit:
		if !c.Exchange.DryRun {
			add("live trading is supported on binance only, set exchange.dry_run for bybit")
		}
	default:
		add("unsupported platform %q", c.Exchange.Platform)
	}
	if c.Exchange.Market != domain.MarketTypeSpot {
		add("unsupported market %q, only spot is traded", c.Exchange.Market)
	}
	if c.DCA.Direction == domain.DirectionShort && c.Exchange.Market == domain.MarketTypeSpot {
		add("short positions are not supported on the spot market")
	}
	if c.Exchange.Fee.IsNegative() || c.Exchange.Fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		add("exchange.fee must be in [0, 1), got %s", c.Exchange.Fee)
	}

	if len(c.Symbols) == 0 {
		add("at least one symbol is required")
	}
	for _, s := range c.Symbols {
		if !strings.HasSuffix(s, "/"+c.Exchange.Currency) {
			add("symbol %s is not quoted in %s", s, c.Exchange.Currency)
		}
	}

	if !c.DCA.BaseOrder.IsPositive() {
		add("dca.bo must be positive, got %s", c.DCA.BaseOrder)
	}
	if err := c.Policy().Validate(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.DCA.Strategy != "" && c.DCA.Strategy != "emalow" {
		add("unknown dca_strategy %q", c.DCA.Strategy)
	}

	if c.Autopilot.Enabled {
		if !c.Autopilot.MaxFund.IsPositive() {
			add("autopilot.max_fund must be positive when autopilot is enabled")
		}
		if c.Autopilot.High.Threshold.LessThan(c.Autopilot.Medium.Threshold) {
			add("autopilot.high.threshold must not be below autopilot.medium.threshold")
		}
		if c.Autopilot.Medium.MaxActiveDeals < 0 || c.Autopilot.High.MaxActiveDeals < 0 {
			add("autopilot tier mad must not be negative")
		}
	}

	if c.Signal.MaxBots <= 0 {
		add("signal.max_bots must be positive, got %d", c.Signal.MaxBots)
	}

	switch c.Watcher.Mode {
	case WatcherModePoll:
	case WatcherModeStream:
		if c.Exchange.Platform == PlatformBybit {
			add("watcher.mode stream needs binance prices")
		}
	default:
		add("unknown watcher.mode %q", c.Watcher.Mode)
	}

	if c.Retry.MaxAttempts <= 0 {
		add("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Timeouts.Snapshot <= 0 || c.Timeouts.Emission <= 0 {
		add("timeouts must be positive")
	}

	if errs == nil {
		return nil
	}
	return errors.Wrap(domain.ErrInvalidConfiguration, errs.Error())
}

// TickTimeout upper bound of a single tick evaluation.
func (c Config) TickTimeout() time.Duration {
	return c.Timeouts.Snapshot + 2*c.Timeouts.Emission
}
