package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/classbill/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/classbill/internal/ledger/repository"
	"github.com/smallbiznis/classbill/pkg/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupLedgerTest(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Transaction{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  ledgerrepo.Provide(),
		Store: repository.ProvideStore[domain.Transaction](db),
	}).(*Service)

	return svc, db
}

func countTransactions(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&domain.Transaction{}).Count(&n).Error)
	return n
}

func TestUpsertInsertsWhenNoMatch(t *testing.T) {
	svc, db := setupLedgerTest(t)

	tx, err := svc.Upsert(context.Background(), domain.UpsertRequest{
		Keys: domain.MatchKeys{InvoiceID: "in_001"},
		Seed: domain.Transaction{
			OwnerID:  7,
			Amount:   1000,
			Currency: "USD",
			Status:   domain.StatusPending,
		},
	})
	require.NoError(t, err)
	require.NotZero(t, tx.ID)
	require.Equal(t, "in_001", tx.Ref.InvoiceID)
	require.Equal(t, int64(1), countTransactions(t, db))
}

func TestUpsertDuplicateEventIDKeepsOneRow(t *testing.T) {
	svc, db := setupLedgerTest(t)

	first, err := svc.Upsert(context.Background(), domain.UpsertRequest{
		Keys: domain.MatchKeys{EventID: "evt_001"},
		Seed: domain.Transaction{OwnerID: 7, Status: domain.StatusPaid},
	})
	require.NoError(t, err)

	second, err := svc.Upsert(context.Background(), domain.UpsertRequest{
		Keys: domain.MatchKeys{EventID: "evt_001"},
		Seed: domain.Transaction{OwnerID: 7, Status: domain.StatusPaid},
	})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int64(1), countTransactions(t, db))
}

func TestUpsertMatchesByAnyKey(t *testing.T) {
	svc, db := setupLedgerTest(t)

	created, err := svc.Upsert(context.Background(), domain.UpsertRequest{
		Keys: domain.MatchKeys{InvoiceID: "in_002"},
		Seed: domain.Transaction{OwnerID: 7, Status: domain.StatusPending},
	})
	require.NoError(t, err)

	// A later delivery keyed by payment intent finds the same row through
	// the shared invoice id and fills the intent reference in.
	updated, err := svc.Upsert(context.Background(), domain.UpsertRequest{
		Keys: domain.MatchKeys{InvoiceID: "in_002", PaymentIntentID: "pi_002"},
		Seed: domain.Transaction{OwnerID: 7},
		Patch: map[string]any{
			"ref_payment_intent_id": "pi_002",
			"status":                domain.StatusPaid,
		},
	})
	require.NoError(t, err)

	require.Equal(t, created.ID, updated.ID)
	require.Equal(t, "pi_002", updated.Ref.PaymentIntentID)
	require.Equal(t, domain.StatusPaid, updated.Status)
	require.Equal(t, int64(1), countTransactions(t, db))
}

func TestUpsertPatchesOnlyTargetedColumns(t *testing.T) {
	svc, _ := setupLedgerTest(t)

	created, err := svc.Upsert(context.Background(), domain.UpsertRequest{
		Keys: domain.MatchKeys{InvoiceID: "in_003"},
		Seed: domain.Transaction{
			OwnerID:  7,
			Amount:   1000,
			Status:   domain.StatusPending,
			Discount: domain.DiscountTrace{CombinedPercent: 50, PromoCode: "SAVE30"},
		},
	})
	require.NoError(t, err)

	updated, err := svc.Upsert(context.Background(), domain.UpsertRequest{
		Keys:  domain.MatchKeys{InvoiceID: "in_003"},
		Patch: map[string]any{"status": domain.StatusPaid},
	})
	require.NoError(t, err)

	require.Equal(t, created.ID, updated.ID)
	require.Equal(t, domain.StatusPaid, updated.Status)
	require.Equal(t, 50.0, updated.Discount.CombinedPercent)
	require.Equal(t, "SAVE30", updated.Discount.PromoCode)
	require.Equal(t, int64(1000), updated.Amount)
}

func TestUpsertPicksOldestMatch(t *testing.T) {
	svc, db := setupLedgerTest(t)

	older := domain.Transaction{
		ID: 100, OwnerID: 7, Status: domain.StatusPending,
		Ref:       domain.ExternalRef{SubscriptionID: "sub_001"},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := domain.Transaction{
		ID: 101, OwnerID: 7, Status: domain.StatusPending,
		Ref:       domain.ExternalRef{SubscriptionID: "sub_001"},
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(&older).Error)
	require.NoError(t, db.Create(&newer).Error)

	updated, err := svc.Upsert(context.Background(), domain.UpsertRequest{
		Keys:  domain.MatchKeys{SubscriptionID: "sub_001"},
		Patch: map[string]any{"status": domain.StatusPaid},
	})
	require.NoError(t, err)
	require.Equal(t, older.ID, updated.ID)

	var untouched domain.Transaction
	require.NoError(t, db.First(&untouched, "id = ?", newer.ID).Error)
	require.Equal(t, domain.StatusPending, untouched.Status)
}

func TestListPaginatesByCursor(t *testing.T) {
	svc, db := setupLedgerTest(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&domain.Transaction{
			ID:        snowflake.ID(200 + i),
			OwnerID:   7,
			Status:    domain.StatusPaid,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}).Error)
	}

	page1, err := svc.List(context.Background(), domain.ListRequest{OwnerID: 7, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page1.Transactions, 2)
	require.True(t, page1.HasMore)
	require.NotEmpty(t, page1.NextPageToken)

	page2, err := svc.List(context.Background(), domain.ListRequest{
		OwnerID: 7, PageSize: 2, PageToken: page1.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, page2.Transactions, 1)
	require.False(t, page2.HasMore)
}
