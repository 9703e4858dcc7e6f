package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/classbill/internal/catalog/domain"
	"github.com/smallbiznis/classbill/internal/gateway"
	"github.com/smallbiznis/classbill/internal/lock"
	plandomain "github.com/smallbiznis/classbill/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockTTL = 30 * time.Second

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Gateway gateway.Gateway
	Plans   plandomain.Repository
	Locker  *lock.Locker `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	gateway gateway.Gateway
	plans   plandomain.Repository
	locker  *lock.Locker
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("catalog.service"),
		gateway: p.Gateway,
		plans:   p.Plans,
		locker:  p.Locker,
	}
}

func (s *Service) EnsureRecurringPrice(ctx context.Context, plan *plandomain.Plan, interval plandomain.Interval, currency string, amountMinor int64) (string, error) {
	if plan == nil {
		return "", plandomain.ErrPlanNotFound
	}
	if !interval.Valid() {
		return "", plandomain.ErrInvalidInterval
	}
	if amountMinor <= 0 {
		return "", nil
	}

	// The cached id is trusted as-is. A later discount change does not
	// invalidate it; the slot holds whatever price was first created.
	if cached := plan.CachedPriceID(interval); cached != "" {
		return cached, nil
	}

	lockKey := fmt.Sprintf("catalog:price:%d:%s", plan.ID, interval)
	if s.locker != nil {
		token, acquired, err := s.locker.TryLock(ctx, lockKey, lockTTL)
		if err != nil {
			s.log.Warn("catalog lock unavailable, relying on lookup-key dedupe",
				zap.String("key", lockKey), zap.Error(err))
		} else if acquired {
			defer func() {
				if releaseErr := s.locker.Release(ctx, lockKey, token); releaseErr != nil {
					s.log.Warn("catalog lock release failed", zap.String("key", lockKey), zap.Error(releaseErr))
				}
			}()
		}
	}

	lookupKey := fmt.Sprintf("plan_%d_%s_%s_%d", plan.ID, interval, strings.ToLower(currency), amountMinor)

	existing, err := s.gateway.FindPriceByLookupKey(ctx, lookupKey)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return s.cachePriceID(ctx, plan, interval, existing.ID)
	}

	productID, err := s.ensureProduct(ctx, plan)
	if err != nil {
		return "", err
	}

	match, err := s.gateway.FindPrice(ctx, gateway.PriceSearch{
		ProductID:  productID,
		Currency:   strings.ToLower(currency),
		Interval:   interval.GatewayInterval(),
		UnitAmount: amountMinor,
	})
	if err != nil {
		return "", err
	}
	if match != nil {
		return s.cachePriceID(ctx, plan, interval, match.ID)
	}

	created, err := s.gateway.CreatePrice(ctx, gateway.PriceParams{
		ProductID:     productID,
		Currency:      strings.ToLower(currency),
		UnitAmount:    amountMinor,
		Interval:      interval.GatewayInterval(),
		IntervalCount: 1,
		LookupKey:     lookupKey,
		Metadata:      map[string]string{"plan_id": plan.ID.String()},
	})
	if err != nil {
		return "", err
	}
	s.log.Info("created gateway price",
		zap.String("price_id", created.ID),
		zap.String("plan_id", plan.ID.String()),
		zap.String("interval", string(interval)))

	return s.cachePriceID(ctx, plan, interval, created.ID)
}

func (s *Service) ensureProduct(ctx context.Context, plan *plandomain.Plan) (string, error) {
	if plan.GatewayProductID != "" {
		return plan.GatewayProductID, nil
	}
	product, err := s.gateway.CreateProduct(ctx, gateway.ProductParams{
		Name:     plan.Name,
		Metadata: map[string]string{"plan_id": plan.ID.String()},
	})
	if err != nil {
		return "", err
	}
	if err := s.plans.UpdateGatewayProductID(ctx, s.db, plan.ID, product.ID); err != nil {
		return "", err
	}
	plan.GatewayProductID = product.ID
	return product.ID, nil
}

func (s *Service) cachePriceID(ctx context.Context, plan *plandomain.Plan, interval plandomain.Interval, priceID string) (string, error) {
	if err := s.plans.UpdateGatewayPriceID(ctx, s.db, plan.ID, interval, priceID); err != nil {
		return "", err
	}
	if interval == plandomain.IntervalYearly {
		plan.GatewayPriceIDYearly = priceID
	} else {
		plan.GatewayPriceIDMonthly = priceID
	}
	return priceID, nil
}
