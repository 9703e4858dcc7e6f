package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrUserNotFound = errors.New("user_not_found")

type User struct {
	ID      snowflake.ID `gorm:"primaryKey" json:"id"`
	Name    string       `gorm:"not null;default:''" json:"name"`
	Email   string       `gorm:"not null;default:'';index" json:"email"`
	Phone   string       `gorm:"not null;default:''" json:"phone"`
	Address string       `gorm:"not null;default:''" json:"address"`

	GatewayCustomerID string `gorm:"not null;default:''" json:"gateway_customer_id"`
	IsPaid            bool   `gorm:"not null;default:false" json:"is_paid"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Contact is the request-supplied contact detail set. Empty fields mean
// "no opinion" and never blank a stored value.
type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}
