package domain

import (
	"context"
	"errors"
	"time"

	"github.com/apipatb/earning-sub011/pkg/db/pagination"
)

type ListCustomerFilter struct {
	Name       string
	Email      string
	ActiveOnly bool
}

type ListCustomerRequest struct {
	PageToken  string
	PageSize   int
	Name       string
	Email      string
	ActiveOnly bool
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type CreateCustomerRequest struct {
	Name    string
	Email   string
	Phone   string
	Company string
	City    string
	Country string
	Source  string
}

// Purchase is one completed sale folded into the customer's totals.
type Purchase struct {
	Amount      float64
	Quantity    int64
	PurchasedAt time.Time
}

type RecordPurchaseRequest struct {
	CustomerID  string
	Amount      float64
	Quantity    int64
	PurchasedAt *time.Time
}

type OpenTicketRequest struct {
	CustomerID string
	Subject    string
}

type UpdateTicketStatusRequest struct {
	TicketID string
	Status   TicketStatus
}

type IssueInvoiceRequest struct {
	CustomerID string
	Number     string
	Amount     float64
	Status     InvoiceStatus
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(context.Context, string) (Customer, error)
	Deactivate(context.Context, string) error
	RecordPurchase(context.Context, RecordPurchaseRequest) (Customer, error)
	OpenTicket(context.Context, OpenTicketRequest) (Ticket, error)
	UpdateTicketStatus(context.Context, UpdateTicketStatusRequest) error
	IssueInvoice(context.Context, IssueInvoiceRequest) (Invoice, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidSubject      = errors.New("invalid_subject")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidNumber       = errors.New("invalid_number")
	ErrNotFound            = errors.New("not_found")
	ErrTicketNotFound      = errors.New("ticket_not_found")
)
