package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrPlanNotFound     = errors.New("plan_not_found")
	ErrInvalidInterval  = errors.New("invalid_interval")
	ErrPlanPriceMissing = errors.New("plan_price_missing")
)

type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

func (i Interval) Valid() bool {
	return i == IntervalMonthly || i == IntervalYearly
}

// GatewayInterval is the recurring interval name the payment gateway expects.
func (i Interval) GatewayInterval() string {
	if i == IntervalYearly {
		return "year"
	}
	return "month"
}

type Plan struct {
	ID   snowflake.ID `gorm:"primaryKey" json:"id"`
	Name string       `gorm:"not null" json:"name"`

	// Major-unit list prices. A nil price means the plan is not offered
	// on that interval; zero means the interval is free.
	PriceMonthly *float64 `json:"price_monthly,omitempty"`
	PriceYearly  *float64 `json:"price_yearly,omitempty"`

	// DiscountPercent accepts either a fraction (0,1] or a percent (1,100].
	// Normalization happens at quote time, not here.
	DiscountPercent float64 `gorm:"not null;default:0" json:"discount_percent"`

	GatewayProductID      string `gorm:"not null;default:''" json:"gateway_product_id"`
	GatewayPriceIDMonthly string `gorm:"not null;default:''" json:"gateway_price_id_monthly"`
	GatewayPriceIDYearly  string `gorm:"not null;default:''" json:"gateway_price_id_yearly"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BasePrice returns the major-unit list price for the interval.
func (p *Plan) BasePrice(interval Interval) (float64, error) {
	switch interval {
	case IntervalMonthly:
		if p.PriceMonthly == nil {
			return 0, ErrPlanPriceMissing
		}
		return *p.PriceMonthly, nil
	case IntervalYearly:
		if p.PriceYearly == nil {
			return 0, ErrPlanPriceMissing
		}
		return *p.PriceYearly, nil
	default:
		return 0, ErrInvalidInterval
	}
}

// CachedPriceID returns the gateway price id previously stored for the interval.
func (p *Plan) CachedPriceID(interval Interval) string {
	if interval == IntervalYearly {
		return p.GatewayPriceIDYearly
	}
	return p.GatewayPriceIDMonthly
}

func (p *Plan) IsFree(interval Interval) bool {
	price, err := p.BasePrice(interval)
	return err == nil && price == 0
}
