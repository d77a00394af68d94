// Package decisions persists decision telemetry (dca_check / tp_check) in a WAL.
package decisions

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

const (
	DefaultDir   = "./wal/decisions"
	segmentLimit = 1000
	maxSegments  = 10

	dcaCheckKeyPrefix = "dca_check_"
	tpCheckKeyPrefix  = "tp_check_"
)

// WALStore persists decision events in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed decision store.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "decision_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: false,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init decision WAL")
	}

	return &WALStore{wal: wal}, nil
}

// SaveDCACheck writes a safety-order evaluation record.
func (s *WALStore) SaveDCACheck(event domain.DCACheck) error {
	if event.Symbol == "" {
		return fmt.Errorf("dca_check symbol is required")
	}
	return s.write(dcaCheckKeyPrefix+event.Symbol, event)
}

// SaveTPCheck writes a take-profit evaluation record.
func (s *WALStore) SaveTPCheck(event domain.TPCheck) error {
	if event.Symbol == "" {
		return fmt.Errorf("tp_check symbol is required")
	}
	return s.write(tpCheckKeyPrefix+event.Symbol, event)
}

func (s *WALStore) write(key string, event any) error {
	if s == nil || s.wal == nil {
		return errors.New("decision store is not initialized")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal decision event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// EventsAfter returns all decision events written after the provided WAL index.
func (s *WALStore) EventsAfter(index uint64) ([]domain.DecisionEventRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("decision store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.DecisionEventRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(key, dcaCheckKeyPrefix):
			var event domain.DCACheck
			if err := json.Unmarshal(payload, &event); err != nil {
				return nil, errors.Wrap(err, "decode dca_check event")
			}
			records = append(records, domain.DecisionEventRecord{Index: idx, Type: domain.DecisionTypeDCACheck, Event: event})
		case strings.HasPrefix(key, tpCheckKeyPrefix):
			var event domain.TPCheck
			if err := json.Unmarshal(payload, &event); err != nil {
				return nil, errors.Wrap(err, "decode tp_check event")
			}
			records = append(records, domain.DecisionEventRecord{Index: idx, Type: domain.DecisionTypeTPCheck, Event: event})
		}
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("decision store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
