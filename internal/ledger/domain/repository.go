package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindOldestByKeys(ctx context.Context, db *gorm.DB, keys MatchKeys) (*Transaction, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, values map[string]any) error
}
