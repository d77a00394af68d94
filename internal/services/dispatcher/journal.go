package dispatcher

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

const (
	DefaultJournalDir    = "./wal/orders"
	orderKeyPrefix       = "order_"
	orderStatusPending   = "pending"
	orderStatusDone      = "done"
	orderStatusFailed    = "failed"
	journalSegmentLimit  = 1000
	journalMaxSegments   = 100
	journalDirPermission = 0o755
)

type orderRecord struct {
	Key           string          `json:"key"`
	ClientOrderID string          `json:"client_order_id"`
	Status        string          `json:"status"`
	Symbol        string          `json:"symbol"`
	Side          domain.Side     `json:"side"`
	OrderCount    int             `json:"order_count"`
	Amount        decimal.Decimal `json:"amount"`
	Time          time.Time       `json:"time"`
	Error         string          `json:"error,omitempty"`
}

// Journal write-ahead log of submitted orders. A key that is pending or done
// cannot be submitted again.
type Journal struct {
	mu      sync.Mutex
	wal     *gowal.Wal
	records map[string]*orderRecord
}

// NewJournal opens the journal in dir and replays it.
func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		dir = DefaultJournalDir
	}
	if err := os.MkdirAll(dir, journalDirPermission); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "orders_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init order journal")
	}

	records := make(map[string]*orderRecord)
	for msg := range wal.Iterator() {
		var rec orderRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			continue
		}
		records[rec.Key] = &rec
	}

	return &Journal{wal: wal, records: records}, nil
}

func orderKey(side domain.Side, positionID string, orderCount int) string {
	return fmt.Sprintf("%s:%s:%d", side, positionID, orderCount)
}

// Begin records a pending order for key.
func (j *Journal) Begin(key, symbol string, side domain.Side, orderCount int, amount decimal.Decimal) (*orderRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if prev, ok := j.records[key]; ok && prev.Status != orderStatusFailed {
		return nil, errors.Wrapf(domain.ErrDuplicateOrder, "%s is %s", key, prev.Status)
	}

	rec := &orderRecord{
		Key:           key,
		ClientOrderID: uuid.New().String(),
		Status:        orderStatusPending,
		Symbol:        symbol,
		Side:          side,
		OrderCount:    orderCount,
		Amount:        amount,
		Time:          time.Now(),
	}
	if err := j.persist(rec); err != nil {
		return nil, err
	}
	j.records[key] = rec

	return rec, nil
}

func (j *Journal) MarkDone(rec *orderRecord) error {
	return j.mark(rec, orderStatusDone, nil)
}

func (j *Journal) MarkFailed(rec *orderRecord, cause error) error {
	return j.mark(rec, orderStatusFailed, cause)
}

// Pending returns orders that never completed, e.g. because the process stopped mid-order.
func (j *Journal) Pending() []orderRecord {
	j.mu.Lock()
	defer j.mu.Unlock()

	var pending []orderRecord
	for _, rec := range j.records {
		if rec.Status == orderStatusPending {
			pending = append(pending, *rec)
		}
	}
	return pending
}

func (j *Journal) Close() error {
	return j.wal.Close()
}

func (j *Journal) mark(rec *orderRecord, status string, cause error) error {
	if rec == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	rec.Status = status
	rec.Error = ""
	if cause != nil {
		rec.Error = cause.Error()
	}
	return j.persist(rec)
}

func (j *Journal) persist(rec *orderRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal order record")
	}
	nextIndex := j.wal.CurrentIndex() + 1
	return errors.Wrapf(j.wal.Write(nextIndex, orderKeyPrefix+rec.Key, data), "journal %s", rec.Key)
}
