package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/classbill/internal/ledger/domain"
	plandomain "github.com/smallbiznis/classbill/internal/plan/domain"
	userdomain "github.com/smallbiznis/classbill/internal/user/domain"
)

var (
	ErrInvalidPlanType   = errors.New("invalid_plan_type")
	ErrInvalidCouponMode = errors.New("invalid_coupon_mode")
	ErrMissingPaymentRef = errors.New("missing_payment_reference")

	// ErrCustomerMismatch rejects an upgrade naming a subscription that
	// belongs to a different gateway customer.
	ErrCustomerMismatch = errors.New("customer_mismatch")
)

// CouponMode controls whether a promo code is also forwarded to the
// gateway as a coupon, on top of being priced into the quoted amount.
type CouponMode string

const (
	// CouponAuto forwards the code only when the quoted amount carries no
	// discount at all, leaving the decision to the gateway.
	CouponAuto CouponMode = "auto"
	// CouponStack always forwards the code.
	CouponStack CouponMode = "stack"
	// CouponNever keeps the discount purely in the quoted amount.
	CouponNever CouponMode = "never"
)

func (m CouponMode) Valid() bool {
	switch m {
	case CouponAuto, CouponStack, CouponNever:
		return true
	default:
		return false
	}
}

const (
	IntentNone    = "none"
	IntentPayment = "payment"
	IntentSetup   = "setup"
)

type StartRequest struct {
	UserID    snowflake.ID          `json:"user_id"`
	PlanID    snowflake.ID          `json:"plan_id"`
	PlanType  ledgerdomain.PlanType `json:"plan_type"`
	Interval  plandomain.Interval   `json:"interval"`
	Currency  string                `json:"currency"`
	PromoCode string                `json:"promo_code"`

	CouponMode CouponMode         `json:"coupon_mode"`
	Contact    userdomain.Contact `json:"contact"`

	// UpgradeFromSubscriptionID turns the purchase into an upgrade: the
	// old subscription is credited and canceled.
	UpgradeFromSubscriptionID string `json:"upgrade_from_subscription_id"`
}

type StartResponse struct {
	IntentType      string `json:"intent_type"`
	ClientSecret    string `json:"client_secret,omitempty"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	SetupIntentID   string `json:"setup_intent_id,omitempty"`
	SubscriptionID  string `json:"subscription_id,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
	Status          string `json:"status"`
}

type IntentRequest struct {
	UserID    snowflake.ID        `json:"user_id"`
	PlanID    snowflake.ID        `json:"plan_id"`
	Interval  plandomain.Interval `json:"interval"`
	Currency  string              `json:"currency"`
	PromoCode string              `json:"promo_code"`
	Contact   userdomain.Contact  `json:"contact"`
}

type IntentResponse struct {
	ClientSecret    string `json:"client_secret,omitempty"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
	Status          string `json:"status"`
}

type FinishRequest struct {
	SubscriptionID  string `json:"subscription_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

type FinishResponse struct {
	OK           bool   `json:"ok"`
	Paid         bool   `json:"paid"`
	State        string `json:"state"`
	ClientSecret string `json:"client_secret,omitempty"`
}

type Service interface {
	Start(ctx context.Context, req StartRequest) (StartResponse, error)
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	Finish(ctx context.Context, req FinishRequest) (FinishResponse, error)
}
