package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/classbill/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	var plan domain.Plan
	err := db.WithContext(ctx).First(&plan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repo) UpdateGatewayProductID(ctx context.Context, db *gorm.DB, id snowflake.ID, productID string) error {
	return db.WithContext(ctx).Model(&domain.Plan{}).
		Where("id = ?", id).
		Updates(map[string]any{"gateway_product_id": productID}).Error
}

func (r *repo) UpdateGatewayPriceID(ctx context.Context, db *gorm.DB, id snowflake.ID, interval domain.Interval, priceID string) error {
	column := "gateway_price_id_monthly"
	if interval == domain.IntervalYearly {
		column = "gateway_price_id_yearly"
	}
	return db.WithContext(ctx).Model(&domain.Plan{}).
		Where("id = ?", id).
		Updates(map[string]any{column: priceID}).Error
}
