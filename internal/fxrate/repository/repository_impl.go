package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/classbill/internal/fxrate/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindLatest(ctx context.Context, db *gorm.DB, base string) (*domain.CurrencyRate, error) {
	var rate domain.CurrencyRate
	err := db.WithContext(ctx).
		Where("base = ?", base).
		Order("fetched_at desc").
		First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rate, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rate *domain.CurrencyRate) error {
	return db.WithContext(ctx).Create(rate).Error
}
