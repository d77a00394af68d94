// Package history keeps append-only records (autopilot tier changes, closed trades) in SQLite via gorm.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

const DefaultPath = "./data/history.db"

type autopilotModel struct {
	ID               uint   `gorm:"primaryKey"`
	Mode             string `gorm:"size:10;not null"`
	ThresholdPercent string `gorm:"size:32"`
	CreatedAt        time.Time
}

func (autopilotModel) TableName() string { return "autopilot" }

type closedTradeModel struct {
	ID            uint   `gorm:"primaryKey"`
	Symbol        string `gorm:"size:32;index"`
	SOCount       int
	Profit        string `gorm:"size:64"`
	ProfitPercent string `gorm:"size:64"`
	Amount        string `gorm:"size:64"`
	Cost          string `gorm:"size:64"`
	TPPrice       string `gorm:"size:64"`
	AvgPrice      string `gorm:"size:64"`
	OpenDate      time.Time
	CloseDate     time.Time `gorm:"index"`
	DurationSec   int64
}

func (closedTradeModel) TableName() string { return "closedtrades" }

// TierChange persisted autopilot tier switch.
type TierChange struct {
	Tier             domain.TierName
	ThresholdPercent decimal.Decimal
	At               time.Time
}

// GormStore implements history storage using gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (and migrates) the SQLite database at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create history dir %s", dir)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open history db")
	}
	if err := db.AutoMigrate(&autopilotModel{}, &closedTradeModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate history db")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "history sql handle")
	}
	sqlDB.SetMaxOpenConns(1)

	return &GormStore{db: db}, nil
}

// RecordTierChange appends an autopilot tier change.
func (s *GormStore) RecordTierChange(ctx context.Context, tier domain.TierName, thresholdPercent decimal.Decimal, at time.Time) error {
	rec := autopilotModel{
		Mode:             string(tier),
		ThresholdPercent: thresholdPercent.String(),
		CreatedAt:        at,
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&rec).Error, "insert autopilot change")
}

// TierChanges returns tier changes, oldest first.
func (s *GormStore) TierChanges(ctx context.Context) ([]TierChange, error) {
	var rows []autopilotModel
	if err := s.db.WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list autopilot changes")
	}

	changes := make([]TierChange, 0, len(rows))
	for _, row := range rows {
		threshold, _ := decimal.NewFromString(row.ThresholdPercent)
		changes = append(changes, TierChange{
			Tier:             domain.TierName(row.Mode),
			ThresholdPercent: threshold,
			At:               row.CreatedAt,
		})
	}
	return changes, nil
}

// RecordClosedTrade appends a closed trade.
func (s *GormStore) RecordClosedTrade(ctx context.Context, trade domain.ClosedTrade) error {
	rec := closedTradeModel{
		Symbol:        trade.Symbol,
		SOCount:       trade.SOCount,
		Profit:        trade.Profit.String(),
		ProfitPercent: trade.ProfitPercent.String(),
		Amount:        trade.Amount.String(),
		Cost:          trade.Cost.String(),
		TPPrice:       trade.TPPrice.String(),
		AvgPrice:      trade.AvgPrice.String(),
		OpenDate:      trade.OpenDate,
		CloseDate:     trade.CloseDate,
		DurationSec:   int64(trade.Duration().Seconds()),
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&rec).Error, "insert closed trade")
}

// ClosedTrades returns closed trades, newest first.
func (s *GormStore) ClosedTrades(ctx context.Context, limit, offset int) ([]domain.ClosedTrade, error) {
	var rows []closedTradeModel
	q := s.db.WithContext(ctx).Order("id desc").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list closed trades")
	}

	trades := make([]domain.ClosedTrade, 0, len(rows))
	for _, row := range rows {
		trades = append(trades, domain.ClosedTrade{
			Symbol:        row.Symbol,
			SOCount:       row.SOCount,
			Profit:        parseDecimal(row.Profit),
			ProfitPercent: parseDecimal(row.ProfitPercent),
			Amount:        parseDecimal(row.Amount),
			Cost:          parseDecimal(row.Cost),
			TPPrice:       parseDecimal(row.TPPrice),
			AvgPrice:      parseDecimal(row.AvgPrice),
			OpenDate:      row.OpenDate,
			CloseDate:     row.CloseDate,
		})
	}
	return trades, nil
}

// TotalProfit sums profit of all closed trades.
func (s *GormStore) TotalProfit(ctx context.Context) (decimal.Decimal, error) {
	var profits []string
	if err := s.db.WithContext(ctx).Model(&closedTradeModel{}).Pluck("profit", &profits).Error; err != nil {
		return decimal.Zero, errors.Wrap(err, "sum profit")
	}

	total := decimal.Zero
	for _, p := range profits {
		total = total.Add(parseDecimal(p))
	}
	return total, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func parseDecimal(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
