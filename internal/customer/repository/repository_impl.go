package repository

import (
	"context"
	"strings"

	"github.com/apipatb/earning-sub011/internal/customer/domain"
	pkgdb "github.com/apipatb/earning-sub011/pkg/db"
	"github.com/apipatb/earning-sub011/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Large IN lists are split so they stay under driver parameter limits.
const idChunkSize = 500

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Omit("Tickets", "Invoices").Create(customer).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, email, phone, company, city, country, source, is_active,
		        total_purchases, purchase_count, total_quantity, last_purchase_at, metadata,
		        created_at, updated_at
		 FROM customers WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListCustomerFilter, page pagination.Pagination) ([]*domain.Customer, error) {
	paginate, err := pagination.Apply(page)
	if err != nil {
		return nil, err
	}

	var customers []*domain.Customer
	stmt := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("org_id = ?", orgID)
	if filter.Name != "" {
		stmt = stmt.Where("LOWER(name) LIKE ? ESCAPE '"+pkgdb.LikeEscape+"'", pkgdb.ContainsPattern(strings.ToLower(filter.Name)))
	}
	if filter.Email != "" {
		stmt = stmt.Where("email = ?", filter.Email)
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if err := stmt.Scopes(paginate).Order("created_at desc, id desc").Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) ApplyPurchase(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, purchase domain.Purchase) error {
	res := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Updates(map[string]any{
			"total_purchases": gorm.Expr("total_purchases + ?", purchase.Amount),
			"purchase_count":  gorm.Expr("purchase_count + 1"),
			"total_quantity":  gorm.Expr("total_quantity + ?", purchase.Quantity),
			"last_purchase_at": gorm.Expr(
				"CASE WHEN last_purchase_at IS NULL OR last_purchase_at < ? THEN ? ELSE last_purchase_at END",
				purchase.PurchasedAt, purchase.PurchasedAt,
			),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, active bool) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Update("is_active", active)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) InsertTicket(ctx context.Context, db *gorm.DB, ticket *domain.Ticket) error {
	return db.WithContext(ctx).Create(ticket).Error
}

func (r *repo) UpdateTicketStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, status domain.TicketStatus) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Update("status", status)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) InsertInvoice(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) ListIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, scopes ...func(*gorm.DB) *gorm.DB) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("org_id = ? AND is_active = ?", orgID, true).
		Scopes(scopes...).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) FilterOwned(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]snowflake.ID, error) {
	owned := make([]snowflake.ID, 0, len(ids))
	for _, chunk := range chunkIDs(ids) {
		var found []snowflake.ID
		err := db.WithContext(ctx).
			Model(&domain.Customer{}).
			Where("org_id = ? AND id IN ?", orgID, chunk).
			Pluck("id", &found).Error
		if err != nil {
			return nil, err
		}
		owned = append(owned, found...)
	}
	return owned, nil
}

const activitySelect = `c.id, c.created_at, c.total_purchases, c.purchase_count, c.total_quantity, c.last_purchase_at,
	(SELECT COUNT(*) FROM tickets t WHERE t.customer_id = c.id) AS ticket_count,
	(SELECT COUNT(*) FROM tickets t WHERE t.customer_id = c.id AND t.status = ?) AS open_ticket_count,
	(SELECT COUNT(*) FROM invoices i WHERE i.customer_id = c.id) AS invoice_count`

func (r *repo) ListActivity(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ActivityFilter) ([]domain.Activity, error) {
	query := func(ids []snowflake.ID) ([]domain.Activity, error) {
		var rows []domain.Activity
		stmt := db.WithContext(ctx).
			Table("customers AS c").
			Select(activitySelect, domain.TicketStatusOpen).
			Where("c.org_id = ?", orgID)
		if filter.ActiveOnly {
			stmt = stmt.Where("c.is_active = ?", true)
		}
		if ids != nil {
			stmt = stmt.Where("c.id IN ?", ids)
		}
		if err := stmt.Order("c.id").Scan(&rows).Error; err != nil {
			return nil, err
		}
		return rows, nil
	}

	if filter.IDs == nil {
		return query(nil)
	}

	out := make([]domain.Activity, 0, len(filter.IDs))
	for _, chunk := range chunkIDs(filter.IDs) {
		rows, err := query(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func chunkIDs(ids []snowflake.ID) [][]snowflake.ID {
	chunks := make([][]snowflake.ID, 0, len(ids)/idChunkSize+1)
	for start := 0; start < len(ids); start += idChunkSize {
		end := start + idChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
