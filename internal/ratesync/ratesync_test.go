package ratesync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/classbill/internal/clock"
	fxratedomain "github.com/smallbiznis/classbill/internal/fxrate/domain"
	fxraterepo "github.com/smallbiznis/classbill/internal/fxrate/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupSyncer(t *testing.T, sourceURL string) (*Syncer, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&fxratedomain.CurrencyRate{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	s := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Rates: fxraterepo.Provide(),
		Config: Config{
			SourceURL: sourceURL,
			Base:      "USD",
		},
	})
	return s, db
}

func TestRunOnceStoresSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "USD", r.URL.Query().Get("base"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"success","base_code":"USD","rates":{"eur":0.9,"JPY":150.0,"BAD":-1}}`))
	}))
	defer srv.Close()

	s, db := setupSyncer(t, srv.URL)
	require.NoError(t, s.RunOnce(context.Background()))

	latest, err := fxraterepo.Provide().FindLatest(context.Background(), db, "USD")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, "USD", latest.Base)
	require.InDelta(t, 0.9, latest.Rate("EUR"), 1e-9)
	require.InDelta(t, 150.0, latest.Rate("JPY"), 1e-9)
	// Non-positive values are dropped, falling back to parity.
	require.InDelta(t, 1.0, latest.Rate("BAD"), 1e-9)
	require.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), latest.FetchedAt.UTC())
}

func TestRunOnceAcceptsConversionRatesShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"conversion_rates":{"EUR":0.85}}`))
	}))
	defer srv.Close()

	s, db := setupSyncer(t, srv.URL)
	require.NoError(t, s.RunOnce(context.Background()))

	latest, err := fxraterepo.Provide().FindLatest(context.Background(), db, "USD")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.InDelta(t, 0.85, latest.Rate("EUR"), 1e-9)
}

func TestRunOnceSourceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, db := setupSyncer(t, srv.URL)
	require.Error(t, s.RunOnce(context.Background()))

	latest, err := fxraterepo.Provide().FindLatest(context.Background(), db, "USD")
	require.NoError(t, err)
	require.Nil(t, latest)
}

func TestRunOnceEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rates":{}}`))
	}))
	defer srv.Close()

	s, _ := setupSyncer(t, srv.URL)
	require.Error(t, s.RunOnce(context.Background()))
}
