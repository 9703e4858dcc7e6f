package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/classbill/pkg/db/pagination"
)

// UpsertRequest correlates one observation with the ledger. When a row
// matching any key exists, Patch is applied to it column by column; when
// none exists, Seed is inserted as a new row.
type UpsertRequest struct {
	Keys  MatchKeys
	Seed  Transaction
	Patch map[string]any
}

type ListRequest struct {
	OwnerID   snowflake.ID
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Transactions []*Transaction `json:"transactions"`
}

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (*Transaction, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}
