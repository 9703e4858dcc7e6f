package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/classbill/internal/gateway"
	"github.com/smallbiznis/classbill/internal/gateway/gatewaytest"
	plandomain "github.com/smallbiznis/classbill/internal/plan/domain"
	planrepo "github.com/smallbiznis/classbill/internal/plan/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupCatalogTest(t *testing.T) (*Service, *gorm.DB, *gatewaytest.Fake) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&plandomain.Plan{}))

	fake := gatewaytest.New()
	svc := New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Gateway: fake,
		Plans:   planrepo.Provide(),
	}).(*Service)

	return svc, db, fake
}

func seedPlan(t *testing.T, db *gorm.DB) *plandomain.Plan {
	t.Helper()
	price := 20.0
	plan := &plandomain.Plan{ID: 1, Name: "Pro", PriceMonthly: &price}
	require.NoError(t, db.Create(plan).Error)
	return plan
}

func TestEnsureRecurringPriceFreeAmount(t *testing.T) {
	svc, db, fake := setupCatalogTest(t)
	plan := seedPlan(t, db)

	priceID, err := svc.EnsureRecurringPrice(context.Background(), plan, plandomain.IntervalMonthly, "USD", 0)
	require.NoError(t, err)
	require.Empty(t, priceID)
	require.Zero(t, fake.PriceCreates)
	require.Zero(t, fake.ProductCreates)
}

func TestEnsureRecurringPriceNegativeAmount(t *testing.T) {
	svc, db, fake := setupCatalogTest(t)
	plan := seedPlan(t, db)

	// An over-credited upgrade can push the quote below zero; that never
	// reaches the gateway.
	priceID, err := svc.EnsureRecurringPrice(context.Background(), plan, plandomain.IntervalMonthly, "USD", -500)
	require.NoError(t, err)
	require.Empty(t, priceID)
	require.Zero(t, fake.PriceCreates)
	require.Zero(t, fake.ProductCreates)
}

func TestEnsureRecurringPriceCreatesOnce(t *testing.T) {
	svc, db, fake := setupCatalogTest(t)
	plan := seedPlan(t, db)

	first, err := svc.EnsureRecurringPrice(context.Background(), plan, plandomain.IntervalMonthly, "USD", 1000)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	require.Equal(t, 1, fake.PriceCreates)
	require.Equal(t, 1, fake.ProductCreates)

	second, err := svc.EnsureRecurringPrice(context.Background(), plan, plandomain.IntervalMonthly, "USD", 1000)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, fake.PriceCreates)

	var stored plandomain.Plan
	require.NoError(t, db.First(&stored, "id = ?", plan.ID).Error)
	require.Equal(t, first, stored.GatewayPriceIDMonthly)
	require.NotEmpty(t, stored.GatewayProductID)
}

func TestEnsureRecurringPriceConcurrentCallersConverge(t *testing.T) {
	svc, db, fake := setupCatalogTest(t)
	plan := seedPlan(t, db)

	first, err := svc.EnsureRecurringPrice(context.Background(), plan, plandomain.IntervalMonthly, "USD", 1000)
	require.NoError(t, err)

	// A second caller that raced past the cached-id check still converges
	// on the same price through the lookup key.
	stale := *plan
	stale.GatewayPriceIDMonthly = ""
	second, err := svc.EnsureRecurringPrice(context.Background(), &stale, plandomain.IntervalMonthly, "USD", 1000)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, fake.PriceCreates)
}

func TestEnsureRecurringPriceReusesLookupKeyMatch(t *testing.T) {
	svc, db, fake := setupCatalogTest(t)
	plan := seedPlan(t, db)

	// Another node already created the price; this node only has to adopt it.
	lookupKey := fmt.Sprintf("plan_%d_%s_usd_1000", plan.ID, plandomain.IntervalMonthly)
	fake.Prices["price_ext"] = &gateway.Price{
		ID:         "price_ext",
		Currency:   "usd",
		UnitAmount: 1000,
		Interval:   "month",
		LookupKey:  lookupKey,
		Active:     true,
	}

	priceID, err := svc.EnsureRecurringPrice(context.Background(), plan, plandomain.IntervalMonthly, "USD", 1000)
	require.NoError(t, err)
	require.Equal(t, "price_ext", priceID)
	require.Zero(t, fake.PriceCreates)
	require.Zero(t, fake.ProductCreates)

	var stored plandomain.Plan
	require.NoError(t, db.First(&stored, "id = ?", plan.ID).Error)
	require.Equal(t, "price_ext", stored.GatewayPriceIDMonthly)
}
