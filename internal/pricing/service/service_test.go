package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/classbill/internal/clock"
	"github.com/smallbiznis/classbill/internal/config"
	fxratedomain "github.com/smallbiznis/classbill/internal/fxrate/domain"
	fxraterepo "github.com/smallbiznis/classbill/internal/fxrate/repository"
	plandomain "github.com/smallbiznis/classbill/internal/plan/domain"
	promodomain "github.com/smallbiznis/classbill/internal/promotion/domain"
	promorepo "github.com/smallbiznis/classbill/internal/promotion/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupPricingTest(t *testing.T) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&promodomain.Promotion{}, &fxratedomain.CurrencyRate{}))

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Cfg:    config.Config{BaseCurrency: "USD"},
		Clock:  fake,
		Promos: promorepo.Provide(),
		Rates:  fxraterepo.Provide(),
	}).(*Service)

	return svc, db, fake
}

func floatPtr(v float64) *float64 { return &v }

func monthlyPlan(price, discount float64) *plandomain.Plan {
	return &plandomain.Plan{
		ID:              1,
		Name:            "Pro",
		PriceMonthly:    floatPtr(price),
		DiscountPercent: discount,
	}
}

func TestResolveCombinesPlanAndPromoDiscounts(t *testing.T) {
	svc, db, _ := setupPricingTest(t)

	require.NoError(t, db.Create(&promodomain.Promotion{
		ID:              10,
		Code:            "SAVE30",
		DiscountPercent: 30,
		Status:          promodomain.StatusActive,
	}).Error)

	quote, err := svc.Resolve(context.Background(), monthlyPlan(20, 20), plandomain.IntervalMonthly, "USD", "SAVE30")
	require.NoError(t, err)
	require.Equal(t, int64(1000), quote.FinalMinorUnits)
	require.Equal(t, 50.0, quote.CombinedPercent)
	require.Equal(t, 20.0, quote.PlanPercent)
	require.Equal(t, 30.0, quote.PromoPercent)
	require.Equal(t, "SAVE30", quote.PromoCode)
	require.Equal(t, "USD", quote.Currency)
}

func TestResolveNormalizesFractionDiscounts(t *testing.T) {
	svc, _, _ := setupPricingTest(t)

	quote, err := svc.Resolve(context.Background(), monthlyPlan(20, 0.2), plandomain.IntervalMonthly, "USD", "")
	require.NoError(t, err)
	require.Equal(t, 20.0, quote.PlanPercent)
	require.Equal(t, int64(1600), quote.FinalMinorUnits)
}

func TestResolveClampsCombinedDiscountAtFull(t *testing.T) {
	svc, db, _ := setupPricingTest(t)

	require.NoError(t, db.Create(&promodomain.Promotion{
		ID:              11,
		Code:            "MEGA",
		DiscountPercent: 40,
		Status:          promodomain.StatusActive,
	}).Error)

	quote, err := svc.Resolve(context.Background(), monthlyPlan(20, 80), plandomain.IntervalMonthly, "USD", "MEGA")
	require.NoError(t, err)
	require.Equal(t, 100.0, quote.CombinedPercent)
	require.Equal(t, int64(0), quote.FinalMinorUnits)
}

func TestResolveIgnoresExpiredPromo(t *testing.T) {
	svc, db, fake := setupPricingTest(t)

	ended := fake.Now().Add(-24 * time.Hour)
	require.NoError(t, db.Create(&promodomain.Promotion{
		ID:              12,
		Code:            "OLD",
		DiscountPercent: 30,
		Status:          promodomain.StatusActive,
		EndsAt:          &ended,
	}).Error)

	quote, err := svc.Resolve(context.Background(), monthlyPlan(20, 0), plandomain.IntervalMonthly, "USD", "OLD")
	require.NoError(t, err)
	require.Equal(t, 0.0, quote.PromoPercent)
	require.Empty(t, quote.PromoCode)
	require.Equal(t, int64(2000), quote.FinalMinorUnits)
}

func TestResolveIgnoresPausedPromo(t *testing.T) {
	svc, db, _ := setupPricingTest(t)

	require.NoError(t, db.Create(&promodomain.Promotion{
		ID:              13,
		Code:            "PAUSED",
		DiscountPercent: 30,
		Status:          promodomain.StatusPaused,
	}).Error)

	quote, err := svc.Resolve(context.Background(), monthlyPlan(20, 0), plandomain.IntervalMonthly, "USD", "PAUSED")
	require.NoError(t, err)
	require.Equal(t, 0.0, quote.PromoPercent)
}

func TestResolveMissingIntervalPrice(t *testing.T) {
	svc, _, _ := setupPricingTest(t)

	_, err := svc.Resolve(context.Background(), monthlyPlan(20, 0), plandomain.IntervalYearly, "USD", "")
	require.ErrorIs(t, err, plandomain.ErrPlanPriceMissing)
}

func TestResolveConvertsWithLatestSnapshot(t *testing.T) {
	svc, db, fake := setupPricingTest(t)

	require.NoError(t, db.Create(&fxratedomain.CurrencyRate{
		ID:        20,
		Base:      "USD",
		Rates:     datatypes.JSONMap{"EUR": 0.5},
		FetchedAt: fake.Now().Add(-48 * time.Hour),
	}).Error)
	require.NoError(t, db.Create(&fxratedomain.CurrencyRate{
		ID:        21,
		Base:      "USD",
		Rates:     datatypes.JSONMap{"EUR": 0.9},
		FetchedAt: fake.Now().Add(-1 * time.Hour),
	}).Error)

	quote, err := svc.Resolve(context.Background(), monthlyPlan(20, 0), plandomain.IntervalMonthly, "EUR", "")
	require.NoError(t, err)
	require.Equal(t, 0.9, quote.ConversionRate)
	require.Equal(t, int64(1800), quote.FinalMinorUnits)
}

func TestResolveFallsBackToParityWithoutRate(t *testing.T) {
	svc, db, fake := setupPricingTest(t)

	require.NoError(t, db.Create(&fxratedomain.CurrencyRate{
		ID:        22,
		Base:      "USD",
		Rates:     datatypes.JSONMap{"EUR": 0.9},
		FetchedAt: fake.Now(),
	}).Error)

	quote, err := svc.Resolve(context.Background(), monthlyPlan(20, 0), plandomain.IntervalMonthly, "JPY", "")
	require.NoError(t, err)
	require.Equal(t, 1.0, quote.ConversionRate)
	require.Equal(t, int64(2000), quote.FinalMinorUnits)
}
