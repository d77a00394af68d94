package pricer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/dcabot/internal/domain"
	"github.com/vadiminshakov/dcabot/pkg/retrier"
)

// Retrying retries transient price lookup failures with backoff.
type Retrying struct {
	next Pricer
	r    *retrier.Retrier
}

func NewRetrying(next Pricer, r *retrier.Retrier) *Retrying {
	return &Retrying{next: next, r: r}
}

func (p *Retrying) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	return retrier.DoWithData(ctx, p.r, func(ctx context.Context) (decimal.Decimal, error) {
		return p.next.GetPrice(ctx, pair)
	})
}
