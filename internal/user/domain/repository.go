package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, values map[string]any) error
}
