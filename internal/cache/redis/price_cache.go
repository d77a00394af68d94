package redis

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const defaultPrefix = "dcabot:lastprice:"

// PriceCache stores the last observed price per symbol under "<prefix><symbol>".
type PriceCache struct {
	rdb    *redis.Client
	prefix string
}

// NewPriceCache an empty prefix selects the default one.
func NewPriceCache(c *Client, prefix string) *PriceCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &PriceCache{rdb: c.rdb, prefix: prefix}
}

// Swap stores price and returns the previous one. seen is false on the first observation.
func (pc *PriceCache) Swap(ctx context.Context, symbol string, price decimal.Decimal) (previous decimal.Decimal, seen bool, err error) {
	old, err := pc.rdb.GetSet(ctx, pc.prefix+symbol, price.String()).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, errors.Wrapf(err, "redis: swap price %s", symbol)
	}

	previous, err = decimal.NewFromString(old)
	if err != nil {
		// unreadable value is treated as never seen; the new price already replaced it
		return decimal.Zero, false, nil
	}

	return previous, true, nil
}

// Forget drops the stored price of symbol.
func (pc *PriceCache) Forget(ctx context.Context, symbol string) error {
	return errors.Wrapf(pc.rdb.Del(ctx, pc.prefix+symbol).Err(), "redis: forget %s", symbol)
}
