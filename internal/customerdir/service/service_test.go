package service

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/classbill/internal/gateway"
	"github.com/smallbiznis/classbill/internal/gateway/gatewaytest"
	userdomain "github.com/smallbiznis/classbill/internal/user/domain"
	userrepo "github.com/smallbiznis/classbill/internal/user/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupCustomerDirTest(t *testing.T) (*Service, *gorm.DB, *gatewaytest.Fake) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&userdomain.User{}))

	fake := gatewaytest.New()
	svc := New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Gateway: fake,
		Users:   userrepo.Provide(),
	}).(*Service)

	return svc, db, fake
}

func TestUpsertCustomerCreatesOnFirstUse(t *testing.T) {
	svc, db, fake := setupCustomerDirTest(t)

	require.NoError(t, db.Create(&userdomain.User{ID: 1, Name: "Ada", Email: "ada@example.com"}).Error)

	id, err := svc.UpsertCustomer(context.Background(), 1, userdomain.Contact{Phone: "+15550001111"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	remote := fake.Customers[id]
	require.NotNil(t, remote)
	require.Equal(t, "Ada", remote.Name)
	require.Equal(t, "+15550001111", remote.Phone)

	var stored userdomain.User
	require.NoError(t, db.First(&stored, "id = ?", 1).Error)
	require.Equal(t, id, stored.GatewayCustomerID)
	require.Equal(t, "+15550001111", stored.Phone)
}

func TestUpsertCustomerContactWinsOverStored(t *testing.T) {
	svc, db, fake := setupCustomerDirTest(t)

	remote, err := fake.CreateCustomer(context.Background(), gatewayCustomer("Old Name", "old@example.com"))
	require.NoError(t, err)
	require.NoError(t, db.Create(&userdomain.User{
		ID: 2, Name: "Stored Name", Email: "stored@example.com", GatewayCustomerID: remote.ID,
	}).Error)

	id, err := svc.UpsertCustomer(context.Background(), 2, userdomain.Contact{Name: "New Name"})
	require.NoError(t, err)
	require.Equal(t, remote.ID, id)

	// The gateway only receives the field the caller supplied; its email
	// stays whatever it already had.
	updated := fake.Customers[id]
	require.Equal(t, "New Name", updated.Name)
	require.Equal(t, "old@example.com", updated.Email)

	var stored userdomain.User
	require.NoError(t, db.First(&stored, "id = ?", 2).Error)
	require.Equal(t, "New Name", stored.Name)
	require.Equal(t, "stored@example.com", stored.Email)
}

func TestUpsertCustomerPushesOnlySuppliedFields(t *testing.T) {
	svc, db, fake := setupCustomerDirTest(t)

	remote, err := fake.CreateCustomer(context.Background(), gateway.CustomerParams{
		Name: "Remote Name", Email: "remote@example.com", Phone: "+15559990000",
	})
	require.NoError(t, err)
	require.NoError(t, db.Create(&userdomain.User{
		ID: 5, Name: "Stored Name", Email: "stored@example.com", GatewayCustomerID: remote.ID,
	}).Error)

	_, err = svc.UpsertCustomer(context.Background(), 5, userdomain.Contact{Email: "new@example.com"})
	require.NoError(t, err)

	updated := fake.Customers[remote.ID]
	require.Equal(t, "new@example.com", updated.Email)
	// Fields the request never mentioned survive remotely even though the
	// local record holds different values.
	require.Equal(t, "Remote Name", updated.Name)
	require.Equal(t, "+15559990000", updated.Phone)
}

func TestUpsertCustomerEmptyContactSkipsGatewayUpdate(t *testing.T) {
	svc, db, fake := setupCustomerDirTest(t)

	remote, err := fake.CreateCustomer(context.Background(), gatewayCustomer("Remote Name", "remote@example.com"))
	require.NoError(t, err)
	require.NoError(t, db.Create(&userdomain.User{
		ID: 6, Name: "Stored Name", GatewayCustomerID: remote.ID,
	}).Error)
	fake.FailOps["customer.update"] = gateway.ErrNotFound

	id, err := svc.UpsertCustomer(context.Background(), 6, userdomain.Contact{})
	require.NoError(t, err)
	require.Equal(t, remote.ID, id)
}

func TestUpsertCustomerGapFillsFromGateway(t *testing.T) {
	svc, db, fake := setupCustomerDirTest(t)

	created, err := fake.CreateCustomer(context.Background(), gatewayCustomer("Gateway Name", "gw@example.com"))
	require.NoError(t, err)
	require.NoError(t, db.Create(&userdomain.User{ID: 3, GatewayCustomerID: created.ID}).Error)

	_, err = svc.UpsertCustomer(context.Background(), 3, userdomain.Contact{})
	require.NoError(t, err)

	// Gateway values only fill local gaps; they never overwrite.
	var stored userdomain.User
	require.NoError(t, db.First(&stored, "id = ?", 3).Error)
	require.Equal(t, "Gateway Name", stored.Name)
	require.Equal(t, "gw@example.com", stored.Email)
}

func TestUpsertCustomerRecreatesMissingGatewayRecord(t *testing.T) {
	svc, db, fake := setupCustomerDirTest(t)

	require.NoError(t, db.Create(&userdomain.User{
		ID: 4, Name: "Ada", Email: "ada@example.com", GatewayCustomerID: "cus_gone",
	}).Error)

	id, err := svc.UpsertCustomer(context.Background(), 4, userdomain.Contact{})
	require.NoError(t, err)
	require.NotEqual(t, "cus_gone", id)
	require.NotNil(t, fake.Customers[id])

	var stored userdomain.User
	require.NoError(t, db.First(&stored, "id = ?", 4).Error)
	require.Equal(t, id, stored.GatewayCustomerID)
}

func TestUpsertCustomerUnknownUser(t *testing.T) {
	svc, _, _ := setupCustomerDirTest(t)

	_, err := svc.UpsertCustomer(context.Background(), 99, userdomain.Contact{})
	require.ErrorIs(t, err, userdomain.ErrUserNotFound)
}

func gatewayCustomer(name, email string) gateway.CustomerParams {
	return gateway.CustomerParams{Name: name, Email: email}
}
