// Package positions persists open DCA positions in a WAL and serves position snapshots.
package positions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

const (
	DefaultDir        = "./wal/positions"
	positionKeyPrefix = "position_"
	segmentLimit      = 1000
	maxSegments       = 100
	dirPermissions    = 0o755
)

type positionRecord struct {
	Closed   bool             `json:"closed,omitempty"`
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
}

// WALStore keeps open positions in memory and appends every change to a WAL.
type WALStore struct {
	wal       *gowal.Wal
	l         *zap.Logger
	mu        sync.RWMutex
	positions map[string]*domain.Snapshot
}

// NewWALStore opens the WAL in dir and replays it.
func NewWALStore(l *zap.Logger, dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "positions_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init positions WAL")
	}

	s := &WALStore{
		wal:       wal,
		l:         l,
		positions: make(map[string]*domain.Snapshot),
	}

	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, positionKeyPrefix) {
			continue
		}
		symbol := strings.TrimPrefix(msg.Key, positionKeyPrefix)

		var rec positionRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			l.Error("failed to unmarshal position record", zap.Error(err), zap.String("key", msg.Key))
			continue
		}
		if rec.Closed || rec.Snapshot == nil {
			delete(s.positions, symbol)
			continue
		}
		s.positions[symbol] = rec.Snapshot
	}

	return s, nil
}

// Snapshot returns the validated state of the open position for symbol.
func (s *WALStore) Snapshot(_ context.Context, symbol string) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[symbol]
	if !ok {
		return domain.Snapshot{}, errors.Wrapf(domain.ErrSnapshotUnavailable, "no open position for %s", symbol)
	}

	snapshot := pos.Clone()
	if err := snapshot.Validate(); err != nil {
		return domain.Snapshot{}, err
	}
	return snapshot, nil
}

// Open creates a position from a filled base order.
func (s *WALStore) Open(_ context.Context, symbol string, direction domain.Direction, orderType string, fill domain.Fill) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[symbol]; ok {
		return domain.Snapshot{}, fmt.Errorf("position for %s is already open", symbol)
	}

	pos := &domain.Snapshot{
		ID:             uuid.New().String(),
		Symbol:         symbol,
		Direction:      direction,
		TotalCost:      fill.Cost,
		TotalAmount:    fill.Quantity,
		Fee:            fill.FeeRate,
		BaseOrderPrice: fill.Price,
		SafetyOrders:   make([]domain.SafetyOrder, 0),
		OrderType:      orderType,
		OpenedAt:       fill.Time,
	}
	if err := pos.Validate(); err != nil {
		return domain.Snapshot{}, err
	}

	if err := s.persist(symbol, positionRecord{Snapshot: pos}); err != nil {
		return domain.Snapshot{}, err
	}
	s.positions[symbol] = pos

	return pos.Clone(), nil
}

// AddSafetyOrder applies a filled safety order to the open position.
func (s *WALStore) AddSafetyOrder(_ context.Context, symbol string, orderSize, soPercentage decimal.Decimal, fill domain.Fill) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.positions[symbol]
	if !ok {
		return domain.Snapshot{}, errors.Wrapf(domain.ErrSnapshotUnavailable, "no open position for %s", symbol)
	}

	next := current.Clone()
	next.TotalCost = next.TotalCost.Add(fill.Cost)
	next.TotalAmount = next.TotalAmount.Add(fill.Quantity)
	next.Fee = fill.FeeRate
	next.SafetyOrders = append(next.SafetyOrders, domain.SafetyOrder{
		Price:        fill.Price,
		OrderSize:    orderSize,
		SOPercentage: soPercentage,
		Time:         fill.Time,
	})

	if err := s.persist(symbol, positionRecord{Snapshot: &next}); err != nil {
		return domain.Snapshot{}, err
	}
	s.positions[symbol] = &next

	return next.Clone(), nil
}

// Close removes the position for symbol.
func (s *WALStore) Close(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[symbol]; !ok {
		return nil
	}
	if err := s.persist(symbol, positionRecord{Closed: true}); err != nil {
		return err
	}
	delete(s.positions, symbol)

	return nil
}

// Symbols returns symbols with open positions, sorted.
func (s *WALStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.positions))
	for symbol := range s.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	return symbols
}

// Count returns the number of open positions.
func (s *WALStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.positions)
}

// FundsLocked returns total cost of all open positions.
func (s *WALStore) FundsLocked(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, pos := range s.positions {
		total = total.Add(pos.TotalCost)
	}
	return total, nil
}

// Shutdown closes the underlying WAL.
func (s *WALStore) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

func (s *WALStore) persist(symbol string, rec positionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal position record")
	}

	nextIndex := s.wal.CurrentIndex() + 1
	return errors.Wrapf(s.wal.Write(nextIndex, positionKeyPrefix+symbol, data), "write position %s", symbol)
}
