package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/classbill/internal/customerdir/domain"
	"github.com/smallbiznis/classbill/internal/gateway"
	userdomain "github.com/smallbiznis/classbill/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Gateway gateway.Gateway
	Users   userdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	gateway gateway.Gateway
	users   userdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("customerdir.service"),
		gateway: p.Gateway,
		users:   p.Users,
	}
}

func (s *Service) UpsertCustomer(ctx context.Context, userID snowflake.ID, contact userdomain.Contact) (string, error) {
	user, err := s.users.FindByID(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", userdomain.ErrUserNotFound
	}

	if user.GatewayCustomerID == "" {
		return s.createCustomer(ctx, user, contact)
	}

	remote, err := s.gateway.GetCustomer(ctx, user.GatewayCustomerID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			// The gateway record is gone; re-link under a fresh one.
			s.log.Warn("gateway customer missing, recreating",
				zap.String("customer_id", user.GatewayCustomerID),
				zap.String("user_id", userID.String()))
			return s.createCustomer(ctx, user, contact)
		}
		return "", err
	}

	merged := userdomain.Contact{
		Name:    coalesce(contact.Name, user.Name, remote.Name),
		Email:   coalesce(contact.Email, user.Email, remote.Email),
		Phone:   coalesce(contact.Phone, user.Phone, remote.Phone),
		Address: coalesce(contact.Address, user.Address, remote.Address),
	}

	// Only fields the caller actually supplied travel to the gateway;
	// pushing merged values would overwrite remote fields this request
	// never mentioned.
	if contact != (userdomain.Contact{}) {
		if _, err := s.gateway.UpdateCustomer(ctx, user.GatewayCustomerID, gateway.CustomerParams{
			Name:    contact.Name,
			Email:   contact.Email,
			Phone:   contact.Phone,
			Address: contact.Address,
		}); err != nil {
			return "", err
		}
	}

	if err := s.users.Update(ctx, s.db, user.ID, contactPatch(user, merged)); err != nil {
		return "", err
	}
	return user.GatewayCustomerID, nil
}

func (s *Service) createCustomer(ctx context.Context, user *userdomain.User, contact userdomain.Contact) (string, error) {
	merged := userdomain.Contact{
		Name:    coalesce(contact.Name, user.Name),
		Email:   coalesce(contact.Email, user.Email),
		Phone:   coalesce(contact.Phone, user.Phone),
		Address: coalesce(contact.Address, user.Address),
	}

	created, err := s.gateway.CreateCustomer(ctx, gateway.CustomerParams{
		Name:     merged.Name,
		Email:    merged.Email,
		Phone:    merged.Phone,
		Address:  merged.Address,
		Metadata: map[string]string{"user_id": user.ID.String()},
	})
	if err != nil {
		return "", err
	}

	values := contactPatch(user, merged)
	values["gateway_customer_id"] = created.ID
	if err := s.users.Update(ctx, s.db, user.ID, values); err != nil {
		return "", err
	}
	return created.ID, nil
}

func contactPatch(user *userdomain.User, merged userdomain.Contact) map[string]any {
	values := map[string]any{}
	if merged.Name != "" && merged.Name != user.Name {
		values["name"] = merged.Name
	}
	if merged.Email != "" && merged.Email != user.Email {
		values["email"] = merged.Email
	}
	if merged.Phone != "" && merged.Phone != user.Phone {
		values["phone"] = merged.Phone
	}
	if merged.Address != "" && merged.Address != user.Address {
		values["address"] = merged.Address
	}
	return values
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
