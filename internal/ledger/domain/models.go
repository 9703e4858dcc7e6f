package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrTransactionNotFound = errors.New("transaction_not_found")

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

type PlanType string

const (
	PlanTypeOneTime      PlanType = "one_time"
	PlanTypeSubscription PlanType = "subscription"
)

// ExternalRef holds every gateway-side identifier a transaction can be
// correlated by. Webhook deliveries arrive out of order and each carries a
// different subset of these ids.
type ExternalRef struct {
	CustomerID      string     `gorm:"column:customer_id;not null;default:''" json:"customer_id,omitempty"`
	InvoiceID       string     `gorm:"column:invoice_id;not null;default:'';index" json:"invoice_id,omitempty"`
	PaymentIntentID string     `gorm:"column:payment_intent_id;not null;default:'';index" json:"payment_intent_id,omitempty"`
	ChargeID        string     `gorm:"column:charge_id;not null;default:''" json:"charge_id,omitempty"`
	SubscriptionID  string     `gorm:"column:subscription_id;not null;default:'';index" json:"subscription_id,omitempty"`
	PriceID         string     `gorm:"column:price_id;not null;default:''" json:"price_id,omitempty"`
	ProductID       string     `gorm:"column:product_id;not null;default:''" json:"product_id,omitempty"`
	PlanName        string     `gorm:"column:plan_name;not null;default:''" json:"plan_name,omitempty"`
	Interval        string     `gorm:"column:interval;not null;default:''" json:"interval,omitempty"`
	IntervalCount   int64      `gorm:"column:interval_count;not null;default:0" json:"interval_count,omitempty"`
	PeriodStart     *time.Time `gorm:"column:period_start" json:"period_start,omitempty"`
	PeriodEnd       *time.Time `gorm:"column:period_end" json:"period_end,omitempty"`
	EventID         *string    `gorm:"column:event_id;uniqueIndex" json:"event_id,omitempty"`
}

// DiscountTrace snapshots the quote that produced the charge.
type DiscountTrace struct {
	BaseAmount      float64 `gorm:"column:base_amount;not null;default:0" json:"base_amount,omitempty"`
	PlanPercent     float64 `gorm:"column:plan_percent;not null;default:0" json:"plan_percent,omitempty"`
	PromoPercent    float64 `gorm:"column:promo_percent;not null;default:0" json:"promo_percent,omitempty"`
	CombinedPercent float64 `gorm:"column:combined_percent;not null;default:0" json:"combined_percent,omitempty"`
	PromoCode       string  `gorm:"column:promo_code;not null;default:''" json:"promo_code,omitempty"`
	ConversionRate  float64 `gorm:"column:conversion_rate;not null;default:1" json:"conversion_rate,omitempty"`
	ConvertedBase   float64 `gorm:"column:converted_base;not null;default:0" json:"converted_base,omitempty"`
}

// UpgradeTrace snapshots the credit applied when replacing a subscription.
type UpgradeTrace struct {
	FromSubscriptionID        string  `gorm:"column:from_subscription_id;not null;default:''" json:"from_subscription_id,omitempty"`
	OldPlanName               string  `gorm:"column:old_plan_name;not null;default:''" json:"old_plan_name,omitempty"`
	CreditMinorUnits          int64   `gorm:"column:credit_minor_units;not null;default:0" json:"credit_minor_units,omitempty"`
	CreditRatio               float64 `gorm:"column:credit_ratio;not null;default:0" json:"credit_ratio,omitempty"`
	EffectiveChargeMinorUnits int64   `gorm:"column:effective_charge_minor_units;not null;default:0" json:"effective_charge_minor_units,omitempty"`
}

// CouponTrace records how a promo code was forwarded to the gateway.
type CouponTrace struct {
	Mode    string `gorm:"column:mode;not null;default:''" json:"mode,omitempty"`
	Code    string `gorm:"column:code;not null;default:''" json:"code,omitempty"`
	Applied bool   `gorm:"column:applied;not null;default:false" json:"applied,omitempty"`
}

// Transaction is one ledger row. Rows are never deleted; reconciliation
// only inserts them or patches individual columns.
type Transaction struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID  snowflake.ID `gorm:"not null;index:idx_transactions_owner_created" json:"owner_id"`
	PlanID   snowflake.ID `gorm:"not null;default:0" json:"plan_id"`
	PlanType PlanType     `gorm:"not null;default:'subscription'" json:"plan_type"`
	Amount   int64        `gorm:"not null;default:0" json:"amount"`
	Currency string       `gorm:"not null;default:''" json:"currency"`
	Status   Status       `gorm:"not null;default:'pending'" json:"status"`

	Ref      ExternalRef   `gorm:"embedded;embeddedPrefix:ref_" json:"ref"`
	Discount DiscountTrace `gorm:"embedded;embeddedPrefix:discount_" json:"discount"`
	Upgrade  UpgradeTrace  `gorm:"embedded;embeddedPrefix:upgrade_" json:"upgrade"`
	Coupon   CouponTrace   `gorm:"embedded;embeddedPrefix:coupon_" json:"coupon"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_transactions_owner_created" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// MatchKeys are the external identifiers a delivery may be correlated by.
// Any non-empty key matches; the oldest matching row wins.
type MatchKeys struct {
	InvoiceID       string
	PaymentIntentID string
	EventID         string
	SubscriptionID  string
}

func (k MatchKeys) Empty() bool {
	return k.InvoiceID == "" && k.PaymentIntentID == "" && k.EventID == "" && k.SubscriptionID == ""
}
