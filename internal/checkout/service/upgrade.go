package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/smallbiznis/classbill/internal/checkout/domain"
	"github.com/smallbiznis/classbill/internal/gateway"
	ledgerdomain "github.com/smallbiznis/classbill/internal/ledger/domain"
	pricingdomain "github.com/smallbiznis/classbill/internal/pricing/domain"
	"go.uber.org/zap"
)

// Within this window the subscriber gets a flat half credit regardless of
// how much of the period remains.
const halfCreditWindow = 15 * 24 * time.Hour

// applyUpgradeCredit grants the unused value of the old subscription as a
// negative invoice item and returns the trace for the ledger. The credit
// never exceeds the new charge.
func (s *Service) applyUpgradeCredit(ctx context.Context, fromSubscriptionID, customerID string, quote pricingdomain.Quote) (ledgerdomain.UpgradeTrace, error) {
	old, err := s.gateway.GetSubscription(ctx, fromSubscriptionID)
	if err != nil {
		return ledgerdomain.UpgradeTrace{}, err
	}
	if old.CustomerID != customerID {
		s.log.Warn("upgrade rejected, subscription belongs to another customer",
			zap.String("from_subscription_id", fromSubscriptionID),
			zap.String("customer_id", customerID))
		return ledgerdomain.UpgradeTrace{}, domain.ErrCustomerMismatch
	}

	now := s.clock.Now()
	ratio := creditRatio(now, old.CurrentPeriodStart, old.CurrentPeriodEnd, old.Interval)

	credit := int64(math.Round(float64(old.ItemUnitAmount) * ratio))
	if credit > quote.FinalMinorUnits {
		credit = quote.FinalMinorUnits
	}
	if credit < 0 {
		credit = 0
	}

	oldPlanName := old.Metadata["plan_name"]
	trace := ledgerdomain.UpgradeTrace{
		FromSubscriptionID:        fromSubscriptionID,
		OldPlanName:               oldPlanName,
		CreditMinorUnits:          credit,
		CreditRatio:               ratio,
		EffectiveChargeMinorUnits: quote.FinalMinorUnits - credit,
	}

	if credit == 0 {
		return trace, nil
	}

	description := "Upgrade credit"
	if oldPlanName != "" {
		description = "Upgrade credit for unused time on " + oldPlanName
	}
	if err := s.gateway.CreateInvoiceItem(ctx, gateway.InvoiceItemParams{
		CustomerID:  customerID,
		Amount:      -credit,
		Currency:    strings.ToLower(quote.Currency),
		Description: description,
	}); err != nil {
		return ledgerdomain.UpgradeTrace{}, err
	}

	s.log.Info("granted upgrade credit",
		zap.String("from_subscription_id", fromSubscriptionID),
		zap.Int64("credit_minor_units", credit),
		zap.Float64("ratio", ratio))
	return trace, nil
}

// creditRatio applies the upgrade policy: half credit inside the early
// window, remaining-time proration after it, never negative.
func creditRatio(now, periodStart, periodEnd time.Time, interval string) float64 {
	if periodStart.IsZero() || !periodEnd.After(periodStart) {
		// Period bounds missing from the gateway object; assume a full
		// period just started.
		periodStart = now
		periodEnd = now.Add(intervalDuration(interval))
	}

	elapsed := now.Sub(periodStart)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed <= halfCreditWindow {
		return 0.5
	}

	period := periodEnd.Sub(periodStart)
	remaining := float64(period-elapsed) / float64(period)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func intervalDuration(interval string) time.Duration {
	if interval == "year" {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}
