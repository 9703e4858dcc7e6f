package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/classbill/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Updates(values).Error
}
