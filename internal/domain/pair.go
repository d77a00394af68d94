// Package domain defines core data structures used throughout the trading bot.
package domain

import (
	"fmt"
	"strings"
)

// Pair cryptocurrency trading pair.
type Pair struct {
	// From base currency symbol.
	From string
	// To quote currency symbol.
	To string
}

// ParsePair parses "BTC/USDT" or "BTC_USDT" into a Pair.
func ParsePair(symbol string) (Pair, error) {
	sep := "/"
	if !strings.Contains(symbol, sep) {
		sep = "_"
	}

	parts := strings.Split(strings.ToUpper(strings.TrimSpace(symbol)), sep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid symbol %q, expected BASE/QUOTE", symbol)
	}

	return Pair{From: parts[0], To: parts[1]}, nil
}

// String returns the string representation used as position key, e.g. BTC/USDT.
func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.From, p.To)
}

// Symbol returns the concatenated exchange symbol, e.g. BTCUSDT.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
