package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/classbill/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Create(tx).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := db.WithContext(ctx).First(&tx, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *repo) FindOldestByKeys(ctx context.Context, db *gorm.DB, keys domain.MatchKeys) (*domain.Transaction, error) {
	if keys.Empty() {
		return nil, nil
	}

	stmt := db.WithContext(ctx).Model(&domain.Transaction{})
	match := db.Session(&gorm.Session{NewDB: true})
	if keys.InvoiceID != "" {
		match = match.Or("ref_invoice_id = ?", keys.InvoiceID)
	}
	if keys.PaymentIntentID != "" {
		match = match.Or("ref_payment_intent_id = ?", keys.PaymentIntentID)
	}
	if keys.EventID != "" {
		match = match.Or("ref_event_id = ?", keys.EventID)
	}
	if keys.SubscriptionID != "" {
		match = match.Or("ref_subscription_id = ?", keys.SubscriptionID)
	}

	var tx domain.Transaction
	err := stmt.Where(match).Order("created_at asc, id asc").First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ?", id).
		Updates(values).Error
}
