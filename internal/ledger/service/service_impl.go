package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/classbill/internal/ledger/domain"
	"github.com/smallbiznis/classbill/pkg/db"
	"github.com/smallbiznis/classbill/pkg/db/option"
	"github.com/smallbiznis/classbill/pkg/db/pagination"
	"github.com/smallbiznis/classbill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Store repository.Repository[domain.Transaction]
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	store repository.Repository[domain.Transaction]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		repo:  p.Repo,
		store: p.Store,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Transaction, error) {
	// Two passes cover the insert race: a concurrent insert under the
	// same event id trips the unique constraint, after which the match
	// query finds the winner.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.repo.FindOldestByKeys(ctx, s.db, req.Keys)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if len(req.Patch) > 0 {
				if err := s.repo.UpdateFields(ctx, s.db, existing.ID, req.Patch); err != nil {
					return nil, err
				}
			}
			return s.repo.FindByID(ctx, s.db, existing.ID)
		}

		tx := req.Seed
		tx.ID = s.genID.Generate()
		fillRefsFromKeys(&tx, req.Keys)

		err = s.repo.Insert(ctx, s.db, &tx)
		if err == nil {
			return &tx, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		lastErr = err
		s.log.Debug("ledger insert raced, re-matching", zap.Error(err))
	}
	return nil, lastErr
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	size := req.PageSize
	if size <= 0 {
		size = 10
	}

	query := &domain.Transaction{OwnerID: req.OwnerID}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: size}
	rows, err := s.store.Find(ctx, query,
		option.ApplyPagination(page),
		option.WithOrder("created_at desc, id desc"),
	)
	if err != nil {
		return domain.ListResponse{}, err
	}

	info := pagination.BuildCursorPageInfo(rows, int32(size), func(tx *domain.Transaction) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        tx.ID.String(),
			CreatedAt: tx.CreatedAt.Format(time.RFC3339Nano),
		})
		return token
	})
	if len(rows) > size {
		rows = rows[:size]
	}

	return domain.ListResponse{PageInfo: *info, Transactions: rows}, nil
}

func fillRefsFromKeys(tx *domain.Transaction, keys domain.MatchKeys) {
	if tx.Ref.InvoiceID == "" {
		tx.Ref.InvoiceID = keys.InvoiceID
	}
	if tx.Ref.PaymentIntentID == "" {
		tx.Ref.PaymentIntentID = keys.PaymentIntentID
	}
	if tx.Ref.SubscriptionID == "" {
		tx.Ref.SubscriptionID = keys.SubscriptionID
	}
	if tx.Ref.EventID == nil && keys.EventID != "" {
		eventID := keys.EventID
		tx.Ref.EventID = &eventID
	}
}
