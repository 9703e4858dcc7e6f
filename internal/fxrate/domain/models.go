package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// CurrencyRate is one fetched snapshot of conversion multipliers for a base
// currency. The newest snapshot by FetchedAt wins.
type CurrencyRate struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Base      string            `gorm:"not null;index:idx_currency_rates_base_fetched" json:"base"`
	Rates     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"rates"`
	FetchedAt time.Time         `gorm:"not null;index:idx_currency_rates_base_fetched" json:"fetched_at"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// Rate returns the multiplier for the target currency, defaulting to 1
// when the snapshot has no entry for it.
func (c *CurrencyRate) Rate(currency string) float64 {
	if c == nil || c.Rates == nil {
		return 1
	}
	raw, ok := c.Rates[currency]
	if !ok {
		return 1
	}
	// JSONMap round-trips numbers as json.Number after persistence; the
	// other cases cover values set in memory before a save.
	switch v := raw.(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil && f > 0 {
			return f
		}
	case float64:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return float64(v)
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return 1
}
