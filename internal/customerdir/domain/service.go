package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/classbill/internal/user/domain"
)

// Service keeps local users and gateway customer records aligned.
type Service interface {
	// UpsertCustomer returns the gateway customer id for the user,
	// creating the gateway record on first use. Contact fields supplied
	// by the caller win over stored values; stored values win over
	// whatever the gateway already has. Empty fields never blank
	// anything.
	UpsertCustomer(ctx context.Context, userID snowflake.ID, contact userdomain.Contact) (string, error)
}
