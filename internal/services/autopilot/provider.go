package autopilot

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

type fundsSource interface {
	FundsLocked(ctx context.Context) (decimal.Decimal, error)
}

// Provider resolves the policy for the current evaluation.
type Provider struct {
	static   domain.Policy
	selector *Selector
	funds    fundsSource
}

// NewProvider validates the static policy. selector may be nil when autopilot is off.
func NewProvider(static domain.Policy, selector *Selector, funds fundsSource) (*Provider, error) {
	if err := static.Validate(); err != nil {
		return nil, err
	}
	if selector != nil && selector.Enabled() && funds == nil {
		return nil, errors.Wrap(domain.ErrInvalidConfiguration, "autopilot requires a locked funds source")
	}
	static.Tier = domain.TierNone
	return &Provider{static: static, selector: selector, funds: funds}, nil
}

// ActivePolicy returns the static policy, overridden by the autopilot tier when one applies.
func (p *Provider) ActivePolicy(ctx context.Context) (domain.Policy, error) {
	if p.selector == nil || !p.selector.Enabled() {
		return p.static, nil
	}

	locked, err := p.funds.FundsLocked(ctx)
	if err != nil {
		return domain.Policy{}, errors.Wrap(err, "get locked funds")
	}

	tier := p.selector.Select(ctx, locked)
	if tier == nil {
		return p.static, nil
	}
	return p.static.WithTier(*tier), nil
}
