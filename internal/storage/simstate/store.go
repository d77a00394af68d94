// Package simstate persists the paper-trading wallet so simulated balances survive restarts.
package simstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const defaultStateDir = "./data/simulate"

// Store persists simulator wallet state for one scope (usually the account name).
type Store struct {
	path string
}

func getStateDir() string {
	if stateDir := os.Getenv("DCABOT_SIMULATE_STATE_DIR"); stateDir != "" {
		return stateDir
	}
	return defaultStateDir
}

// NewStore creates a simulator state store for the given scope.
func NewStore(scope string) (*Store, error) {
	stateDir := getStateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}

	name := sanitizeScope(scope)
	if name == "" {
		name = "wallet"
	}

	return &Store{path: filepath.Join(stateDir, fmt.Sprintf("%s.json", name))}, nil
}

// State is the persisted simulator data: asset balances keyed by currency and
// the recent fills, oldest first, so client order ids are not filled twice after a restart.
type State struct {
	Wallet map[string]string `json:"wallet"`
	Fills  []Fill            `json:"fills,omitempty"`
}

// Fill a remembered simulated fill.
type Fill struct {
	OrderID  string          `json:"order_id"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Cost     decimal.Decimal `json:"cost"`
	FeeRate  decimal.Decimal `json:"fee_rate"`
	Time     time.Time       `json:"time"`
}

// Balances decodes the wallet into decimals, skipping malformed entries.
func (s *State) Balances() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.Wallet))
	for asset, raw := range s.Wallet {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		out[asset] = v
	}
	return out
}

// NewState encodes balances for persistence.
func NewState(balances map[string]decimal.Decimal) State {
	wallet := make(map[string]string, len(balances))
	for asset, v := range balances {
		wallet[asset] = v.String()
	}
	return State{Wallet: wallet}
}

// Load reads simulator state from disk. A missing file yields nil state.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read simulate state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode simulate state")
	}

	return &state, nil
}

// Save writes simulator state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode simulate state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write simulate state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist simulate state")
	}

	return nil
}

func sanitizeScope(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
