package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/classbill/internal/catalog/domain"
	"github.com/smallbiznis/classbill/internal/checkout/domain"
	"github.com/smallbiznis/classbill/internal/clock"
	customerdirdomain "github.com/smallbiznis/classbill/internal/customerdir/domain"
	"github.com/smallbiznis/classbill/internal/gateway"
	ledgerdomain "github.com/smallbiznis/classbill/internal/ledger/domain"
	"github.com/smallbiznis/classbill/internal/observability/metrics"
	plandomain "github.com/smallbiznis/classbill/internal/plan/domain"
	pricingdomain "github.com/smallbiznis/classbill/internal/pricing/domain"
	userdomain "github.com/smallbiznis/classbill/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Gateway     gateway.Gateway
	Plans       plandomain.Repository
	Users       userdomain.Repository
	Pricing     pricingdomain.Service
	Catalog     catalogdomain.Service
	CustomerDir customerdirdomain.Service
	Ledger      ledgerdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	gateway     gateway.Gateway
	plans       plandomain.Repository
	users       userdomain.Repository
	pricing     pricingdomain.Service
	catalog     catalogdomain.Service
	customerdir customerdirdomain.Service
	ledger      ledgerdomain.Service
	metrics     *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("checkout.service"),
		clock:       p.Clock,
		gateway:     p.Gateway,
		plans:       p.Plans,
		users:       p.Users,
		pricing:     p.Pricing,
		catalog:     p.Catalog,
		customerdir: p.CustomerDir,
		ledger:      p.Ledger,
		metrics:     p.Metrics,
	}
}

func (s *Service) Start(ctx context.Context, req domain.StartRequest) (domain.StartResponse, error) {
	planType := req.PlanType
	if planType == "" {
		planType = ledgerdomain.PlanTypeSubscription
	}
	if planType != ledgerdomain.PlanTypeOneTime && planType != ledgerdomain.PlanTypeSubscription {
		return domain.StartResponse{}, domain.ErrInvalidPlanType
	}
	couponMode := req.CouponMode
	if couponMode == "" {
		couponMode = domain.CouponAuto
	}
	if !couponMode.Valid() {
		return domain.StartResponse{}, domain.ErrInvalidCouponMode
	}
	if !req.Interval.Valid() {
		return domain.StartResponse{}, plandomain.ErrInvalidInterval
	}

	plan, err := s.plans.FindByID(ctx, s.db, req.PlanID)
	if err != nil {
		return domain.StartResponse{}, err
	}
	if plan == nil {
		return domain.StartResponse{}, plandomain.ErrPlanNotFound
	}

	quote, err := s.pricing.Resolve(ctx, plan, req.Interval, req.Currency, req.PromoCode)
	if err != nil {
		return domain.StartResponse{}, err
	}

	if quote.Free() {
		return s.startFree(ctx, req, plan, quote)
	}
	if planType == ledgerdomain.PlanTypeOneTime {
		return s.startOneTime(ctx, req, plan, quote)
	}
	return s.startSubscription(ctx, req, plan, quote, couponMode)
}

func (s *Service) startFree(ctx context.Context, req domain.StartRequest, plan *plandomain.Plan, quote pricingdomain.Quote) (domain.StartResponse, error) {
	tx, err := s.ledger.Upsert(ctx, ledgerdomain.UpsertRequest{
		Keys: ledgerdomain.MatchKeys{},
		Seed: ledgerdomain.Transaction{
			OwnerID:  req.UserID,
			PlanID:   plan.ID,
			PlanType: ledgerdomain.PlanTypeSubscription,
			Amount:   0,
			Currency: quote.Currency,
			Status:   ledgerdomain.StatusPaid,
			Ref: ledgerdomain.ExternalRef{
				PlanName: plan.Name,
				Interval: string(req.Interval),
			},
			Discount: discountTrace(quote),
		},
	})
	if err != nil {
		return domain.StartResponse{}, err
	}
	if err := s.users.Update(ctx, s.db, req.UserID, map[string]any{"is_paid": true}); err != nil {
		return domain.StartResponse{}, err
	}

	s.observe(domain.IntentNone)
	// The ledger row is settled (paid, amount 0); only the response
	// advertises the free outcome.
	return domain.StartResponse{
		IntentType:    domain.IntentNone,
		TransactionID: tx.ID.String(),
		Status:        "free",
	}, nil
}

func (s *Service) startOneTime(ctx context.Context, req domain.StartRequest, plan *plandomain.Plan, quote pricingdomain.Quote) (domain.StartResponse, error) {
	intent, err := s.createIntent(ctx, req.UserID, plan, req.Interval, quote, req.Contact)
	if err != nil {
		return domain.StartResponse{}, err
	}

	s.observe(domain.IntentPayment)
	return domain.StartResponse{
		IntentType:      domain.IntentPayment,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.PaymentIntentID,
		TransactionID:   intent.TransactionID,
		Status:          intent.Status,
	}, nil
}

func (s *Service) startSubscription(ctx context.Context, req domain.StartRequest, plan *plandomain.Plan, quote pricingdomain.Quote, couponMode domain.CouponMode) (domain.StartResponse, error) {
	customerID, err := s.customerdir.UpsertCustomer(ctx, req.UserID, req.Contact)
	if err != nil {
		return domain.StartResponse{}, err
	}

	priceID, err := s.catalog.EnsureRecurringPrice(ctx, plan, req.Interval, quote.Currency, quote.FinalMinorUnits)
	if err != nil {
		return domain.StartResponse{}, err
	}

	var upgrade ledgerdomain.UpgradeTrace
	if req.UpgradeFromSubscriptionID != "" {
		upgrade, err = s.applyUpgradeCredit(ctx, req.UpgradeFromSubscriptionID, customerID, quote)
		if err != nil {
			return domain.StartResponse{}, err
		}
	}

	coupon := resolveCoupon(couponMode, req.PromoCode, quote)

	sub, err := s.gateway.CreateSubscription(ctx, gateway.SubscriptionParams{
		CustomerID: customerID,
		PriceID:    priceID,
		CouponCode: coupon.forwardCode,
		Metadata: map[string]string{
			"user_id":   req.UserID.String(),
			"plan_id":   plan.ID.String(),
			"plan_name": plan.Name,
			"interval":  string(req.Interval),
		},
	})
	if err != nil {
		return domain.StartResponse{}, err
	}

	// Cancel only after the replacement exists; proration stays off
	// because the credit was granted explicitly.
	if req.UpgradeFromSubscriptionID != "" {
		if err := s.gateway.CancelSubscription(ctx, req.UpgradeFromSubscriptionID, gateway.CancelParams{Prorate: false}); err != nil {
			return domain.StartResponse{}, err
		}
	}

	outcome, err := s.normalizeOutcome(ctx, sub)
	if err != nil {
		return domain.StartResponse{}, err
	}

	tx, err := s.ledger.Upsert(ctx, ledgerdomain.UpsertRequest{
		Keys: ledgerdomain.MatchKeys{
			SubscriptionID:  sub.ID,
			InvoiceID:       outcome.InvoiceID,
			PaymentIntentID: outcome.PaymentIntentID,
		},
		Seed: ledgerdomain.Transaction{
			OwnerID:  req.UserID,
			PlanID:   plan.ID,
			PlanType: ledgerdomain.PlanTypeSubscription,
			Amount:   quote.FinalMinorUnits,
			Currency: quote.Currency,
			Status:   ledgerdomain.StatusPending,
			Ref: ledgerdomain.ExternalRef{
				CustomerID:     customerID,
				SubscriptionID: sub.ID,
				InvoiceID:      outcome.InvoiceID,
				PriceID:        priceID,
				ProductID:      plan.GatewayProductID,
				PlanName:       plan.Name,
				Interval:       string(req.Interval),
				IntervalCount:  1,
			},
			Discount: discountTrace(quote),
			Upgrade:  upgrade,
			Coupon:   coupon.trace,
		},
	})
	if err != nil {
		return domain.StartResponse{}, err
	}

	s.observe(outcome.IntentType)
	return domain.StartResponse{
		IntentType:      outcome.IntentType,
		ClientSecret:    outcome.ClientSecret,
		PaymentIntentID: outcome.PaymentIntentID,
		SetupIntentID:   outcome.SetupIntentID,
		SubscriptionID:  sub.ID,
		TransactionID:   tx.ID.String(),
		Status:          outcome.Status,
	}, nil
}

func (s *Service) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.IntentResponse, error) {
	if !req.Interval.Valid() {
		return domain.IntentResponse{}, plandomain.ErrInvalidInterval
	}
	plan, err := s.plans.FindByID(ctx, s.db, req.PlanID)
	if err != nil {
		return domain.IntentResponse{}, err
	}
	if plan == nil {
		return domain.IntentResponse{}, plandomain.ErrPlanNotFound
	}
	quote, err := s.pricing.Resolve(ctx, plan, req.Interval, req.Currency, req.PromoCode)
	if err != nil {
		return domain.IntentResponse{}, err
	}
	return s.createIntent(ctx, req.UserID, plan, req.Interval, quote, req.Contact)
}

func (s *Service) createIntent(ctx context.Context, userID snowflake.ID, plan *plandomain.Plan, interval plandomain.Interval, quote pricingdomain.Quote, contact userdomain.Contact) (domain.IntentResponse, error) {
	customerID, err := s.customerdir.UpsertCustomer(ctx, userID, contact)
	if err != nil {
		return domain.IntentResponse{}, err
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, gateway.PaymentIntentParams{
		Amount:      quote.FinalMinorUnits,
		Currency:    strings.ToLower(quote.Currency),
		CustomerID:  customerID,
		Description: plan.Name,
		Metadata: map[string]string{
			"user_id":   userID.String(),
			"plan_id":   plan.ID.String(),
			"plan_name": plan.Name,
			"plan_type": string(ledgerdomain.PlanTypeOneTime),
		},
	})
	if err != nil {
		return domain.IntentResponse{}, err
	}

	tx, err := s.ledger.Upsert(ctx, ledgerdomain.UpsertRequest{
		Keys: ledgerdomain.MatchKeys{PaymentIntentID: intent.ID},
		Seed: ledgerdomain.Transaction{
			OwnerID:  userID,
			PlanID:   plan.ID,
			PlanType: ledgerdomain.PlanTypeOneTime,
			Amount:   quote.FinalMinorUnits,
			Currency: quote.Currency,
			Status:   ledgerdomain.StatusPending,
			Ref: ledgerdomain.ExternalRef{
				CustomerID:      customerID,
				PaymentIntentID: intent.ID,
				PlanName:        plan.Name,
				Interval:        string(interval),
			},
			Discount: discountTrace(quote),
		},
	})
	if err != nil {
		return domain.IntentResponse{}, err
	}

	return domain.IntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		TransactionID:   tx.ID.String(),
		Status:          intent.Status,
	}, nil
}

func (s *Service) Finish(ctx context.Context, req domain.FinishRequest) (domain.FinishResponse, error) {
	if req.SubscriptionID == "" {
		return domain.FinishResponse{}, domain.ErrMissingPaymentRef
	}

	sub, err := s.gateway.GetSubscription(ctx, req.SubscriptionID)
	if err != nil {
		return domain.FinishResponse{}, err
	}

	if req.PaymentMethodID != "" {
		if err := s.gateway.AttachPaymentMethod(ctx, req.PaymentMethodID, sub.CustomerID); err != nil {
			return domain.FinishResponse{}, err
		}
	}

	if sub.LatestInvoice.Empty() {
		return domain.FinishResponse{OK: true, Paid: sub.Status == "active", State: sub.Status}, nil
	}

	inv, err := s.gateway.PayInvoice(ctx, sub.LatestInvoice.ID)
	if err != nil {
		return domain.FinishResponse{}, err
	}

	if inv.Status != "paid" {
		resp := domain.FinishResponse{OK: true, Paid: false, State: inv.Status}
		if inv.ConfirmationSecret != nil {
			resp.ClientSecret = inv.ConfirmationSecret.ClientSecret
		}
		return resp, nil
	}

	if _, err := s.ledger.Upsert(ctx, ledgerdomain.UpsertRequest{
		Keys: ledgerdomain.MatchKeys{
			InvoiceID:      inv.ID,
			SubscriptionID: sub.ID,
		},
		Seed: ledgerdomain.Transaction{
			Amount:   inv.Total,
			Currency: strings.ToUpper(inv.Currency),
			Status:   ledgerdomain.StatusPaid,
			Ref: ledgerdomain.ExternalRef{
				CustomerID:     sub.CustomerID,
				SubscriptionID: sub.ID,
				InvoiceID:      inv.ID,
			},
		},
		Patch: map[string]any{"status": ledgerdomain.StatusPaid},
	}); err != nil {
		return domain.FinishResponse{}, err
	}

	return domain.FinishResponse{OK: true, Paid: true, State: "paid"}, nil
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveCheckout(outcome)
	}
}

func discountTrace(quote pricingdomain.Quote) ledgerdomain.DiscountTrace {
	return ledgerdomain.DiscountTrace{
		BaseAmount:      quote.BaseAmount,
		PlanPercent:     quote.PlanPercent,
		PromoPercent:    quote.PromoPercent,
		CombinedPercent: quote.CombinedPercent,
		PromoCode:       quote.PromoCode,
		ConversionRate:  quote.ConversionRate,
		ConvertedBase:   quote.ConvertedBase,
	}
}

type couponDecision struct {
	forwardCode string
	trace       ledgerdomain.CouponTrace
}

// resolveCoupon decides whether the promo code also travels to the gateway.
// Auto mode forwards only when the quote carries no discount at all; any
// plan or promo percent already in the amount would otherwise stack with
// the gateway coupon and discount twice.
func resolveCoupon(mode domain.CouponMode, promoCode string, quote pricingdomain.Quote) couponDecision {
	code := strings.TrimSpace(promoCode)
	decision := couponDecision{
		trace: ledgerdomain.CouponTrace{Mode: string(mode), Code: code},
	}
	if code == "" {
		return decision
	}
	switch mode {
	case domain.CouponStack:
		decision.forwardCode = code
	case domain.CouponAuto:
		if quote.CombinedPercent == 0 {
			decision.forwardCode = code
		}
	}
	decision.trace.Applied = decision.forwardCode != ""
	return decision
}
