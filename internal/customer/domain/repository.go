package domain

import (
	"context"

	"github.com/apipatb/earning-sub011/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ActivityFilter narrows ListActivity. A nil IDs slice means every customer
// of the organization; an empty non-nil slice matches nothing.
type ActivityFilter struct {
	IDs        []snowflake.ID
	ActiveOnly bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Customer, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListCustomerFilter, page pagination.Pagination) ([]*Customer, error)
	ApplyPurchase(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, purchase Purchase) error
	SetActive(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, active bool) (bool, error)

	InsertTicket(ctx context.Context, db *gorm.DB, ticket *Ticket) error
	UpdateTicketStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, status TicketStatus) (bool, error)
	InsertInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice) error

	// ListIDs returns the active customers of orgID that satisfy every scope.
	ListIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, scopes ...func(*gorm.DB) *gorm.DB) ([]snowflake.ID, error)
	// FilterOwned returns the subset of ids that belong to orgID.
	FilterOwned(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]snowflake.ID, error)
	ListActivity(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ActivityFilter) ([]Activity, error)
}
