package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindLatest(ctx context.Context, db *gorm.DB, base string) (*CurrencyRate, error)
	Insert(ctx context.Context, db *gorm.DB, rate *CurrencyRate) error
}
