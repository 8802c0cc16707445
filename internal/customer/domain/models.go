package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Customer struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID      `gorm:"not null;index" json:"organization_id"`
	Name           string            `gorm:"not null" json:"name"`
	Email          string            `gorm:"not null" json:"email"`
	Phone          string            `json:"phone,omitempty"`
	Company        string            `json:"company,omitempty"`
	City           string            `json:"city,omitempty"`
	Country        string            `json:"country,omitempty"`
	Source         string            `json:"source,omitempty"`
	IsActive       bool              `gorm:"not null;index" json:"is_active"`
	TotalPurchases float64           `gorm:"not null" json:"total_purchases"`
	PurchaseCount  int64             `gorm:"not null" json:"purchase_count"`
	TotalQuantity  int64             `gorm:"not null" json:"total_quantity"`
	LastPurchaseAt *time.Time        `json:"last_purchase_at,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`

	Tickets  []Ticket  `gorm:"foreignKey:CustomerID" json:"tickets,omitempty"`
	Invoices []Invoice `gorm:"foreignKey:CustomerID" json:"invoices,omitempty"`
}

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	default:
		return false
	}
}

type Ticket struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"not null;index" json:"organization_id"`
	CustomerID snowflake.ID `gorm:"not null;index" json:"customer_id"`
	Subject    string       `gorm:"not null" json:"subject"`
	Status     TicketStatus `gorm:"not null" json:"status"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusSent  InvoiceStatus = "sent"
	InvoiceStatusPaid  InvoiceStatus = "paid"
	InvoiceStatusVoid  InvoiceStatus = "void"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusVoid:
		return true
	default:
		return false
	}
}

type Invoice struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID  `gorm:"not null;index" json:"organization_id"`
	CustomerID snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	Number     string        `gorm:"not null" json:"number"`
	Amount     float64       `gorm:"not null" json:"amount"`
	Status     InvoiceStatus `gorm:"not null" json:"status"`
	IssuedAt   time.Time     `gorm:"not null" json:"issued_at"`
	CreatedAt  time.Time     `gorm:"not null" json:"created_at"`
}

// Activity is a customer's purchase aggregates together with ticket and
// invoice counts. It is the input of segmentation features and analytics.
type Activity struct {
	ID              snowflake.ID
	CreatedAt       time.Time
	TotalPurchases  float64
	PurchaseCount   int64
	TotalQuantity   int64
	LastPurchaseAt  *time.Time
	TicketCount     int64
	OpenTicketCount int64
	InvoiceCount    int64
}
