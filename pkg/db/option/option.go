package option

import (
	"strconv"
	"time"

	"github.com/smallbiznis/classbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type queryOptionFunc func(stmt *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(stmt *gorm.DB) *gorm.DB {
	return f(stmt)
}

// ApplyPagination decodes the cursor token and constrains the statement to rows
// strictly after it, fetching one extra row so callers can detect has_more.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		size := page.PageSize
		if size <= 0 {
			size = 10
		}
		if page.PageToken != "" {
			cursor, err := pagination.DecodeCursor(page.PageToken)
			if err == nil && cursor != nil && cursor.CreatedAt != "" {
				// Bind typed values so each driver serializes them the
				// same way it stored the row.
				var createdAt any = cursor.CreatedAt
				if parsed, parseErr := time.Parse(time.RFC3339Nano, cursor.CreatedAt); parseErr == nil {
					createdAt = parsed
				}
				var id any = cursor.ID
				if parsed, parseErr := strconv.ParseInt(cursor.ID, 10, 64); parseErr == nil {
					id = parsed
				}
				stmt = stmt.Where("(created_at, id) < (?, ?)", createdAt, id)
			}
		}
		return stmt.Limit(size + 1)
	})
}

func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		return stmt.Limit(limit)
	})
}

func WithOrder(order string) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		return stmt.Order(order)
	})
}
