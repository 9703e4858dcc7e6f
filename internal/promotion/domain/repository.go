package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Promotion, error)
}
