package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/classbill/internal/promotion/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Promotion, error) {
	var promo domain.Promotion
	err := db.WithContext(ctx).First(&promo, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}
