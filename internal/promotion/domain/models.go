package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrPromotionNotFound = errors.New("promotion_not_found")

type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

type Promotion struct {
	ID   snowflake.ID `gorm:"primaryKey" json:"id"`
	Code string       `gorm:"not null;uniqueIndex" json:"code"`

	// DiscountPercent accepts either a fraction (0,1] or a percent (1,100].
	DiscountPercent float64 `gorm:"not null;default:0" json:"discount_percent"`

	Status   Status     `gorm:"not null;default:'active'" json:"status"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Redeemable reports whether the promotion applies at the given instant.
func (p *Promotion) Redeemable(now time.Time) bool {
	if p.Status != StatusActive {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	return true
}
