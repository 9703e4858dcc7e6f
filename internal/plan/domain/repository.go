package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	UpdateGatewayProductID(ctx context.Context, db *gorm.DB, id snowflake.ID, productID string) error
	UpdateGatewayPriceID(ctx context.Context, db *gorm.DB, id snowflake.ID, interval Interval, priceID string) error
}
