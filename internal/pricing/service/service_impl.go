package service

import (
	"context"
	"math"
	"strings"

	"github.com/smallbiznis/classbill/internal/clock"
	"github.com/smallbiznis/classbill/internal/config"
	fxratedomain "github.com/smallbiznis/classbill/internal/fxrate/domain"
	plandomain "github.com/smallbiznis/classbill/internal/plan/domain"
	"github.com/smallbiznis/classbill/internal/pricing/domain"
	promodomain "github.com/smallbiznis/classbill/internal/promotion/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Cfg    config.Config
	Clock  clock.Clock
	Promos promodomain.Repository
	Rates  fxratedomain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	base   string
	clock  clock.Clock
	promos promodomain.Repository
	rates  fxratedomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("pricing.service"),
		base:   strings.ToUpper(p.Cfg.BaseCurrency),
		clock:  p.Clock,
		promos: p.Promos,
		rates:  p.Rates,
	}
}

func (s *Service) Resolve(ctx context.Context, plan *plandomain.Plan, interval plandomain.Interval, currency, promoCode string) (domain.Quote, error) {
	if plan == nil {
		return domain.Quote{}, plandomain.ErrPlanNotFound
	}
	base, err := plan.BasePrice(interval)
	if err != nil {
		return domain.Quote{}, err
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.base
	}

	rate, err := s.conversionRate(ctx, currency)
	if err != nil {
		return domain.Quote{}, err
	}
	convertedBase := base * rate

	planPct := normalizePercent(plan.DiscountPercent)

	promoPct := 0.0
	appliedCode := ""
	if code := strings.TrimSpace(promoCode); code != "" {
		promo, err := s.promos.FindByCode(ctx, s.db, code)
		if err != nil {
			return domain.Quote{}, err
		}
		if promo != nil && promo.Redeemable(s.clock.Now()) {
			promoPct = normalizePercent(promo.DiscountPercent)
			appliedCode = promo.Code
		} else {
			s.log.Debug("promo code not redeemable, ignoring", zap.String("code", code))
		}
	}

	combined := planPct + promoPct
	if combined > 100 {
		combined = 100
	}
	if combined < 0 {
		combined = 0
	}

	finalMinor := int64(math.Round(convertedBase * 100 * (1 - combined/100)))
	if finalMinor < 0 {
		finalMinor = 0
	}

	return domain.Quote{
		FinalMinorUnits: finalMinor,
		BaseAmount:      base,
		ConvertedBase:   convertedBase,
		ConversionRate:  rate,
		PlanPercent:     planPct,
		PromoPercent:    promoPct,
		CombinedPercent: combined,
		Currency:        currency,
		PromoCode:       appliedCode,
	}, nil
}

func (s *Service) conversionRate(ctx context.Context, currency string) (float64, error) {
	if currency == s.base {
		return 1, nil
	}
	snapshot, err := s.rates.FindLatest(ctx, s.db, s.base)
	if err != nil {
		return 0, err
	}
	if snapshot == nil {
		return 1, nil
	}
	return snapshot.Rate(currency), nil
}

// normalizePercent reads a discount that may be stored either as a fraction
// (0,1] or as a percent (1,100]. Values at or below zero mean no discount;
// anything above 100 clamps to 100.
func normalizePercent(v float64) float64 {
	if v <= 0 {
		return 0
	}
	if v <= 1 {
		v *= 100
	}
	if v > 100 {
		return 100
	}
	return v
}
