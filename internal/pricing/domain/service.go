package domain

import (
	"context"

	plandomain "github.com/smallbiznis/classbill/internal/plan/domain"
)

// Quote is the authoritative charge computation for one plan purchase.
// FinalMinorUnits is what the gateway will be asked to collect.
type Quote struct {
	FinalMinorUnits int64   `json:"final_minor_units"`
	BaseAmount      float64 `json:"base_amount"`
	ConvertedBase   float64 `json:"converted_base"`
	ConversionRate  float64 `json:"conversion_rate"`
	PlanPercent     float64 `json:"plan_percent"`
	PromoPercent    float64 `json:"promo_percent"`
	CombinedPercent float64 `json:"combined_percent"`
	Currency        string  `json:"currency"`
	PromoCode       string  `json:"promo_code,omitempty"`
}

func (q Quote) Free() bool {
	return q.FinalMinorUnits == 0
}

type Service interface {
	Resolve(ctx context.Context, plan *plandomain.Plan, interval plandomain.Interval, currency, promoCode string) (Quote, error)
}
