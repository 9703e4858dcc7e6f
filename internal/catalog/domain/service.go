package domain

import (
	"context"

	plandomain "github.com/smallbiznis/classbill/internal/plan/domain"
)

// Service maintains the mapping from local plans to recurring gateway
// prices, creating gateway products and prices on first use.
type Service interface {
	// EnsureRecurringPrice returns the gateway price id for the plan and
	// interval at the given amount, creating product and price when the
	// gateway has neither. Free amounts return an empty id.
	EnsureRecurringPrice(ctx context.Context, plan *plandomain.Plan, interval plandomain.Interval, currency string, amountMinor int64) (string, error)
}
