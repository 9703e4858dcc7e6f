package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/classbill/internal/gateway"
	"github.com/smallbiznis/classbill/internal/gateway/gatewaytest"
	ledgerdomain "github.com/smallbiznis/classbill/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/classbill/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/classbill/internal/ledger/service"
	userdomain "github.com/smallbiznis/classbill/internal/user/domain"
	userrepo "github.com/smallbiznis/classbill/internal/user/repository"
	"github.com/smallbiznis/classbill/internal/webhook/domain"
	"github.com/smallbiznis/classbill/pkg/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type webhookFixture struct {
	svc  *Service
	db   *gorm.DB
	fake *gatewaytest.Fake
}

func setupWebhookTest(t *testing.T) *webhookFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&ledgerdomain.Transaction{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	fake := gatewaytest.New()
	log := zap.NewNop()

	ledger := ledgerservice.New(ledgerservice.Params{
		DB: db, Log: log, GenID: node,
		Repo:  ledgerrepo.Provide(),
		Store: repository.ProvideStore[ledgerdomain.Transaction](db),
	})

	svc := New(Params{
		DB:      db,
		Log:     log,
		Gateway: fake,
		Users:   userrepo.Provide(),
		Ledger:  ledger,
	}).(*Service)

	return &webhookFixture{svc: svc, db: db, fake: fake}
}

func (f *webhookFixture) seedUser(t *testing.T, id snowflake.ID, paid bool) {
	t.Helper()
	require.NoError(t, f.db.Create(&userdomain.User{
		ID: id, Name: "Ada", Email: "ada@example.com", IsPaid: paid,
	}).Error)
}

func (f *webhookFixture) handle(t *testing.T, payload string) domain.Summary {
	t.Helper()
	summary, err := f.svc.Handle(context.Background(), []byte(payload), "sig")
	require.NoError(t, err)
	return summary
}

func (f *webhookFixture) countRows(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&ledgerdomain.Transaction{}).Count(&n).Error)
	return n
}

func paymentIntentEvent(eventID, piID string, amount int64) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": %q,
			"status": "succeeded",
			"amount": %d,
			"currency": "usd",
			"customer": "cus_001",
			"latest_charge": "ch_001",
			"metadata": {"user_id": "1", "plan_id": "10", "plan_name": "Starter"}
		}}
	}`, eventID, piID, amount)
}

func TestHandlePaymentIntentSucceededSeedsRow(t *testing.T) {
	f := setupWebhookTest(t)
	f.seedUser(t, 1, false)

	summary := f.handle(t, paymentIntentEvent("evt_1", "pi_1", 1500))
	require.True(t, summary.Received)
	require.True(t, summary.Handled)
	require.True(t, summary.Paid)
	require.NotEmpty(t, summary.TransactionID)

	var tx ledgerdomain.Transaction
	require.NoError(t, f.db.First(&tx, "id = ?", summary.TransactionID).Error)
	require.Equal(t, ledgerdomain.StatusPaid, tx.Status)
	require.Equal(t, ledgerdomain.PlanTypeOneTime, tx.PlanType)
	require.Equal(t, int64(1500), tx.Amount)
	require.Equal(t, "USD", tx.Currency)
	require.Equal(t, "pi_1", tx.Ref.PaymentIntentID)
	require.Equal(t, "ch_001", tx.Ref.ChargeID)

	var user userdomain.User
	require.NoError(t, f.db.First(&user, "id = ?", 1).Error)
	require.True(t, user.IsPaid)
}

func TestHandleDuplicateEventKeepsOneRow(t *testing.T) {
	f := setupWebhookTest(t)
	f.seedUser(t, 1, false)

	first := f.handle(t, paymentIntentEvent("evt_dup", "pi_9", 2000))
	second := f.handle(t, paymentIntentEvent("evt_dup", "pi_9", 2000))

	require.Equal(t, first.TransactionID, second.TransactionID)
	require.Equal(t, int64(1), f.countRows(t))
}

func TestHandleInvoiceThenPaymentIntentCorrelate(t *testing.T) {
	f := setupWebhookTest(t)
	f.seedUser(t, 1, false)

	invoice := `{
		"id": "evt_inv",
		"type": "invoice.payment_failed",
		"data": {"object": {
			"id": "in_7",
			"status": "open",
			"total": 2400,
			"currency": "usd",
			"customer": "cus_001",
			"subscription": "sub_7",
			"payment_intent": "pi_7",
			"metadata": {"user_id": "1", "plan_id": "10"}
		}}
	}`
	first := f.handle(t, invoice)
	require.True(t, first.Handled)
	require.False(t, first.Paid)

	// Retried payment later succeeds; same row must flip to paid.
	pi := `{
		"id": "evt_pi",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_7",
			"status": "succeeded",
			"amount": 2400,
			"currency": "usd",
			"invoice": "in_7",
			"metadata": {}
		}}
	}`
	second := f.handle(t, pi)
	require.True(t, second.Paid)
	require.Equal(t, first.TransactionID, second.TransactionID)
	require.Equal(t, int64(1), f.countRows(t))

	var tx ledgerdomain.Transaction
	require.NoError(t, f.db.First(&tx, "id = ?", first.TransactionID).Error)
	require.Equal(t, ledgerdomain.StatusPaid, tx.Status)
	require.Equal(t, ledgerdomain.PlanTypeSubscription, tx.PlanType)
	require.Equal(t, "in_7", tx.Ref.InvoiceID)
	require.Equal(t, "pi_7", tx.Ref.PaymentIntentID)
	require.Equal(t, "sub_7", tx.Ref.SubscriptionID)
}

func TestHandleInvoiceParentSubscriptionDetails(t *testing.T) {
	f := setupWebhookTest(t)
	f.seedUser(t, 1, false)

	payload := `{
		"id": "evt_parent",
		"type": "invoice.paid",
		"data": {"object": {
			"id": "in_parent",
			"status": "paid",
			"total": 1800,
			"currency": "eur",
			"customer": {"id": "cus_001"},
			"parent": {"subscription_details": {
				"subscription": "sub_parent",
				"metadata": {"user_id": "1", "plan_id": "10", "plan_name": "Pro", "interval": "monthly"}
			}},
			"lines": {"data": [{"period": {"start": 1767225600, "end": 1769904000}}]}
		}}
	}`
	summary := f.handle(t, payload)
	require.True(t, summary.Paid)

	var tx ledgerdomain.Transaction
	require.NoError(t, f.db.First(&tx, "id = ?", summary.TransactionID).Error)
	require.Equal(t, "sub_parent", tx.Ref.SubscriptionID)
	require.Equal(t, "Pro", tx.Ref.PlanName)
	require.Equal(t, "monthly", tx.Ref.Interval)
	require.Equal(t, "EUR", tx.Currency)
	require.NotNil(t, tx.Ref.PeriodStart)
	require.NotNil(t, tx.Ref.PeriodEnd)

	var user userdomain.User
	require.NoError(t, f.db.First(&user, "id = ?", 1).Error)
	require.True(t, user.IsPaid)
}

func TestHandleInvoiceBackfillsFromGateway(t *testing.T) {
	f := setupWebhookTest(t)
	f.seedUser(t, 1, false)

	// Renewal deliveries arrive as skeletons: no metadata, no subscription
	// or payment intent refs. Everything must come from the re-fetched
	// objects.
	f.fake.Invoices["in_renew"] = &gateway.Invoice{
		ID:             "in_renew",
		Status:         "paid",
		CustomerID:     "cus_001",
		SubscriptionID: "sub_renew",
		Total:          3200,
		Currency:       "usd",
		PaymentIntent:  gateway.Ref[gateway.PaymentIntent]{ID: "pi_renew"},
		PeriodStart:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	f.fake.Subscriptions["sub_renew"] = &gateway.Subscription{
		ID:       "sub_renew",
		Status:   "active",
		PriceID:  "price_renew",
		Interval: "month",
		Metadata: map[string]string{"user_id": "1", "plan_id": "10", "plan_name": "Pro"},
	}
	f.fake.PaymentIntents["pi_renew"] = &gateway.PaymentIntent{
		ID:       "pi_renew",
		Metadata: map[string]string{"plan_name": "Pro Plus"},
	}

	summary := f.handle(t, `{
		"id": "evt_renew",
		"type": "invoice.paid",
		"data": {"object": {
			"id": "in_renew",
			"status": "paid",
			"total": 3200,
			"currency": "usd",
			"customer": "cus_001"
		}}
	}`)
	require.True(t, summary.Paid)

	var tx ledgerdomain.Transaction
	require.NoError(t, f.db.First(&tx, "id = ?", summary.TransactionID).Error)
	require.Equal(t, snowflake.ID(1), tx.OwnerID)
	require.Equal(t, "sub_renew", tx.Ref.SubscriptionID)
	require.Equal(t, "pi_renew", tx.Ref.PaymentIntentID)
	require.Equal(t, "price_renew", tx.Ref.PriceID)
	require.Equal(t, "month", tx.Ref.Interval)
	// Payment intent metadata outranks subscription metadata.
	require.Equal(t, "Pro Plus", tx.Ref.PlanName)
	require.NotNil(t, tx.Ref.PeriodStart)
	require.NotNil(t, tx.Ref.PeriodEnd)

	var user userdomain.User
	require.NoError(t, f.db.First(&user, "id = ?", 1).Error)
	require.True(t, user.IsPaid)
}

func TestHandlePaymentIntentBackfillsFromGateway(t *testing.T) {
	f := setupWebhookTest(t)
	f.seedUser(t, 1, false)

	f.fake.PaymentIntents["pi_thin"] = &gateway.PaymentIntent{
		ID:         "pi_thin",
		Status:     "succeeded",
		Amount:     5400,
		Currency:   "usd",
		CustomerID: "cus_001",
		Metadata:   map[string]string{"user_id": "1", "plan_id": "10", "plan_name": "Starter"},
	}

	summary := f.handle(t, `{
		"id": "evt_thin",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_thin", "status": "succeeded"}}
	}`)
	require.True(t, summary.Paid)

	var tx ledgerdomain.Transaction
	require.NoError(t, f.db.First(&tx, "id = ?", summary.TransactionID).Error)
	require.Equal(t, snowflake.ID(1), tx.OwnerID)
	require.Equal(t, int64(5400), tx.Amount)
	require.Equal(t, "USD", tx.Currency)
	require.Equal(t, "cus_001", tx.Ref.CustomerID)
	require.Equal(t, "Starter", tx.Ref.PlanName)
}

func TestHandleSubscriptionDeletedClearsPaidFlag(t *testing.T) {
	f := setupWebhookTest(t)
	f.seedUser(t, 1, true)

	// Existing paid row from an earlier invoice delivery.
	f.handle(t, `{
		"id": "evt_seed",
		"type": "invoice.paid",
		"data": {"object": {
			"id": "in_del",
			"total": 2000,
			"currency": "usd",
			"subscription": "sub_del",
			"metadata": {"user_id": "1", "plan_id": "10"}
		}}
	}`)

	summary := f.handle(t, `{
		"id": "evt_del",
		"type": "customer.subscription.deleted",
		"data": {"object": {
			"id": "sub_del",
			"status": "canceled",
			"metadata": {"user_id": "1"}
		}}
	}`)
	require.True(t, summary.Handled)
	require.False(t, summary.Paid)
	require.Equal(t, int64(1), f.countRows(t))

	var user userdomain.User
	require.NoError(t, f.db.First(&user, "id = ?", 1).Error)
	require.False(t, user.IsPaid)
}

func TestHandleSubscriptionUpdatedTouchesNothing(t *testing.T) {
	f := setupWebhookTest(t)

	summary := f.handle(t, `{
		"id": "evt_upd",
		"type": "customer.subscription.updated",
		"data": {"object": {"id": "sub_x", "status": "active"}}
	}`)
	require.True(t, summary.Handled)
	require.Zero(t, f.countRows(t))
}

func TestHandleUnknownEventAcknowledged(t *testing.T) {
	f := setupWebhookTest(t)

	summary := f.handle(t, `{
		"id": "evt_odd",
		"type": "charge.refunded",
		"data": {"object": {"id": "ch_1"}}
	}`)
	require.True(t, summary.Received)
	require.False(t, summary.Handled)
	require.Zero(t, f.countRows(t))
}

func TestHandleMalformedPayload(t *testing.T) {
	f := setupWebhookTest(t)

	_, err := f.svc.Handle(context.Background(), []byte(`{"type": ""}`), "sig")
	require.ErrorIs(t, err, domain.ErrUnprocessable)

	_, err = f.svc.Handle(context.Background(), []byte(`not json`), "sig")
	require.ErrorIs(t, err, domain.ErrUnprocessable)
}

func TestHandleRejectsInvalidSignature(t *testing.T) {
	f := setupWebhookTest(t)
	f.fake.VerifyErr = gateway.ErrInvalidSignature

	_, err := f.svc.Handle(context.Background(), []byte(paymentIntentEvent("evt_bad", "pi_bad", 100)), "bad")
	require.ErrorIs(t, err, gateway.ErrInvalidSignature)
	require.Zero(t, f.countRows(t))
}
