package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/classbill/internal/gateway"
	ledgerdomain "github.com/smallbiznis/classbill/internal/ledger/domain"
	"github.com/smallbiznis/classbill/internal/observability/metrics"
	userdomain "github.com/smallbiznis/classbill/internal/user/domain"
	"github.com/smallbiznis/classbill/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Gateway gateway.Gateway
	Users   userdomain.Repository
	Ledger  ledgerdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	gateway gateway.Gateway
	users   userdomain.Repository
	ledger  ledgerdomain.Service
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("webhook.service"),
		gateway: p.Gateway,
		users:   p.Users,
		ledger:  p.Ledger,
		metrics: p.Metrics,
	}
}

func (s *Service) Handle(ctx context.Context, payload []byte, signatureHeader string) (domain.Summary, error) {
	if err := s.gateway.VerifyWebhookSignature(payload, signatureHeader); err != nil {
		s.observe("unknown", "rejected")
		return domain.Summary{}, err
	}

	var evt event
	if err := json.Unmarshal(payload, &evt); err != nil || evt.ID == "" || evt.Type == "" {
		s.observe("unknown", "unprocessable")
		return domain.Summary{}, domain.ErrUnprocessable
	}

	summary := domain.Summary{Received: true, EventID: evt.ID, EventType: evt.Type}

	var err error
	switch evt.Type {
	case "payment_intent.succeeded":
		err = s.handlePaymentIntent(ctx, &summary, evt, ledgerdomain.StatusPaid)
	case "payment_intent.payment_failed":
		err = s.handlePaymentIntent(ctx, &summary, evt, ledgerdomain.StatusFailed)
	case "invoice.paid":
		err = s.handleInvoice(ctx, &summary, evt, ledgerdomain.StatusPaid)
	case "invoice.payment_failed":
		err = s.handleInvoice(ctx, &summary, evt, ledgerdomain.StatusFailed)
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		err = s.handleSubscription(ctx, &summary, evt)
	default:
		s.log.Info("ignoring unrecognized webhook event",
			zap.String("event_id", evt.ID), zap.String("event_type", evt.Type))
		s.observe(evt.Type, "ignored")
		return summary, nil
	}

	if err != nil {
		s.observe(evt.Type, "error")
		return domain.Summary{}, err
	}
	s.observe(evt.Type, "handled")
	return summary, nil
}

func (s *Service) handlePaymentIntent(ctx context.Context, summary *domain.Summary, evt event, status ledgerdomain.Status) error {
	var pi paymentIntentPayload
	if err := json.Unmarshal(evt.Data.Object, &pi); err != nil || pi.ID == "" {
		return domain.ErrUnprocessable
	}

	meta := mergeMetadata(pi.Metadata)
	customerID := pi.Customer.ID
	amount := pi.Amount
	currency := pi.Currency

	// The delivered payload can be a skeleton; the re-fetched object is
	// authoritative. A vanished object falls back to the payload.
	fetched, err := s.gateway.GetPaymentIntent(ctx, pi.ID)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return err
	}
	if fetched != nil {
		meta = mergeMetadata(meta, fetched.Metadata)
		if customerID == "" {
			customerID = fetched.CustomerID
		}
		if amount == 0 {
			amount = fetched.Amount
		}
		if currency == "" {
			currency = fetched.Currency
		}
	}

	patch := map[string]any{
		"status":                status,
		"ref_payment_intent_id": pi.ID,
	}
	if pi.LatestCharge.ID != "" {
		patch["ref_charge_id"] = pi.LatestCharge.ID
	}
	if pi.Invoice.ID != "" {
		patch["ref_invoice_id"] = pi.Invoice.ID
	}

	tx, err := s.ledger.Upsert(ctx, ledgerdomain.UpsertRequest{
		Keys: ledgerdomain.MatchKeys{
			PaymentIntentID: pi.ID,
			InvoiceID:       pi.Invoice.ID,
			EventID:         evt.ID,
		},
		Seed: ledgerdomain.Transaction{
			OwnerID:  metaID(meta, "user_id"),
			PlanID:   metaID(meta, "plan_id"),
			PlanType: ledgerdomain.PlanTypeOneTime,
			Amount:   amount,
			Currency: strings.ToUpper(currency),
			Status:   status,
			Ref: ledgerdomain.ExternalRef{
				CustomerID:      customerID,
				PaymentIntentID: pi.ID,
				InvoiceID:       pi.Invoice.ID,
				ChargeID:        pi.LatestCharge.ID,
				PlanName:        meta["plan_name"],
			},
		},
		Patch: patch,
	})
	if err != nil {
		return err
	}

	summary.Handled = true
	summary.TransactionID = tx.ID.String()
	if status == ledgerdomain.StatusPaid {
		summary.Paid = true
		return s.markPaid(ctx, tx.OwnerID)
	}
	return nil
}

func (s *Service) handleInvoice(ctx context.Context, summary *domain.Summary, evt event, status ledgerdomain.Status) error {
	var inv invoicePayload
	if err := json.Unmarshal(evt.Data.Object, &inv); err != nil || inv.ID == "" {
		return domain.ErrUnprocessable
	}

	// Metadata merge priority, lowest first: invoice, nested
	// parent/subscription-details, subscription, payment intent. Renewal
	// invoices carry no metadata of their own, so owner and plan usually
	// come from the subscription.
	meta := mergeMetadata(inv.Metadata, inv.subscriptionMetadata())
	subID := inv.subscriptionID()
	piID := inv.PaymentIntent.ID
	var periodStart, periodEnd *time.Time
	if len(inv.Lines.Data) > 0 {
		period := inv.Lines.Data[0].Period
		if period.Start > 0 {
			start := time.Unix(period.Start, 0).UTC()
			periodStart = &start
		}
		if period.End > 0 {
			end := time.Unix(period.End, 0).UTC()
			periodEnd = &end
		}
	}

	fetched, err := s.gateway.GetInvoice(ctx, inv.ID)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return err
	}
	if fetched != nil {
		meta = mergeMetadata(meta, fetched.Metadata)
		if subID == "" {
			subID = fetched.SubscriptionID
		}
		if piID == "" {
			piID = fetched.PaymentIntent.ID
		}
		if periodStart == nil && !fetched.PeriodStart.IsZero() {
			start := fetched.PeriodStart.UTC()
			periodStart = &start
		}
		if periodEnd == nil && !fetched.PeriodEnd.IsZero() {
			end := fetched.PeriodEnd.UTC()
			periodEnd = &end
		}
	}

	var priceID, interval string
	if subID != "" {
		sub, err := s.gateway.GetSubscription(ctx, subID)
		if err != nil && !errors.Is(err, gateway.ErrNotFound) {
			return err
		}
		if sub != nil {
			meta = mergeMetadata(meta, sub.Metadata)
			priceID = sub.PriceID
			interval = sub.Interval
		}
	}
	if piID != "" {
		pi, err := s.gateway.GetPaymentIntent(ctx, piID)
		if err != nil && !errors.Is(err, gateway.ErrNotFound) {
			return err
		}
		if pi != nil {
			meta = mergeMetadata(meta, pi.Metadata)
		}
	}

	if interval == "" {
		interval = meta["interval"]
	}

	patch := map[string]any{
		"status":         status,
		"ref_invoice_id": inv.ID,
	}
	if subID != "" {
		patch["ref_subscription_id"] = subID
	}
	if piID != "" {
		patch["ref_payment_intent_id"] = piID
	}
	if priceID != "" {
		patch["ref_price_id"] = priceID
	}
	if interval != "" {
		patch["ref_interval"] = interval
	}
	if periodStart != nil {
		patch["ref_period_start"] = *periodStart
	}
	if periodEnd != nil {
		patch["ref_period_end"] = *periodEnd
	}

	tx, err := s.ledger.Upsert(ctx, ledgerdomain.UpsertRequest{
		Keys: ledgerdomain.MatchKeys{
			InvoiceID:       inv.ID,
			PaymentIntentID: piID,
			SubscriptionID:  subID,
			EventID:         evt.ID,
		},
		Seed: ledgerdomain.Transaction{
			OwnerID:  metaID(meta, "user_id"),
			PlanID:   metaID(meta, "plan_id"),
			PlanType: ledgerdomain.PlanTypeSubscription,
			Amount:   inv.Total,
			Currency: strings.ToUpper(inv.Currency),
			Status:   status,
			Ref: ledgerdomain.ExternalRef{
				CustomerID:      inv.Customer.ID,
				InvoiceID:       inv.ID,
				PaymentIntentID: piID,
				SubscriptionID:  subID,
				PriceID:         priceID,
				PlanName:        meta["plan_name"],
				Interval:        interval,
				PeriodStart:     periodStart,
				PeriodEnd:       periodEnd,
			},
		},
		Patch: patch,
	})
	if err != nil {
		return err
	}

	summary.Handled = true
	summary.TransactionID = tx.ID.String()
	if status == ledgerdomain.StatusPaid {
		summary.Paid = true
		return s.markPaid(ctx, tx.OwnerID)
	}
	return nil
}

// handleSubscription treats lifecycle events as status signals only; no
// money moved, so the ledger is left alone except for the paid flag on
// deletion.
func (s *Service) handleSubscription(ctx context.Context, summary *domain.Summary, evt event) error {
	var sub subscriptionPayload
	if err := json.Unmarshal(evt.Data.Object, &sub); err != nil || sub.ID == "" {
		return domain.ErrUnprocessable
	}

	summary.Handled = true
	if evt.Type != "customer.subscription.deleted" {
		return nil
	}

	existing, err := s.ledger.Upsert(ctx, ledgerdomain.UpsertRequest{
		Keys: ledgerdomain.MatchKeys{SubscriptionID: sub.ID},
		Seed: ledgerdomain.Transaction{
			OwnerID:  metaID(sub.Metadata, "user_id"),
			PlanType: ledgerdomain.PlanTypeSubscription,
			Status:   ledgerdomain.StatusFailed,
			Ref:      ledgerdomain.ExternalRef{SubscriptionID: sub.ID},
		},
	})
	if err != nil {
		return err
	}
	summary.TransactionID = existing.ID.String()

	if existing.OwnerID != 0 {
		return s.users.Update(ctx, s.db, existing.OwnerID, map[string]any{"is_paid": false})
	}
	return nil
}

func (s *Service) markPaid(ctx context.Context, ownerID snowflake.ID) error {
	if ownerID == 0 {
		return nil
	}
	return s.users.Update(ctx, s.db, ownerID, map[string]any{"is_paid": true})
}

func (s *Service) observe(eventType, result string) {
	if s.metrics != nil {
		s.metrics.ObserveWebhook(eventType, result)
	}
}

func metaID(meta map[string]string, key string) snowflake.ID {
	raw, ok := meta[key]
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return snowflake.ID(parsed)
}
