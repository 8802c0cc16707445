package service

import (
	"context"
	"strings"
	"time"

	"github.com/apipatb/earning-sub011/internal/clock"
	"github.com/apipatb/earning-sub011/internal/customer/domain"
	"github.com/apipatb/earning-sub011/internal/orgcontext"
	"github.com/apipatb/earning-sub011/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		clock: clk,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Customer{}, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	customer := domain.Customer{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(req.Phone),
		Company:   strings.TrimSpace(req.Company),
		City:      strings.TrimSpace(req.City),
		Country:   strings.TrimSpace(req.Country),
		Source:    strings.TrimSpace(req.Source),
		IsActive:  true,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		return domain.Customer{}, err
	}

	return customer, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListCustomerResponse{}, domain.ErrInvalidOrganization
	}

	page := pagination.Pagination{PageToken: strings.TrimSpace(req.PageToken), PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, orgID, domain.ListCustomerFilter{
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.TrimSpace(req.Email),
		ActiveOnly: req.ActiveOnly,
	}, page)
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	items, pageInfo, err := pagination.BuildCursorPageInfo(items, page.Size(), func(customer *domain.Customer) pagination.Cursor {
		return pagination.Cursor{
			ID:        customer.ID.String(),
			CreatedAt: customer.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, *item)
	}
	return domain.ListCustomerResponse{PageInfo: pageInfo, Customers: customers}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}

	customerID, err := parseID(id)
	if err != nil {
		return domain.Customer{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *item, nil
}

// Deactivate hides the customer from every segment evaluation from the next refresh on.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}

	customerID, err := parseID(id)
	if err != nil {
		return err
	}

	found, err := s.repo.SetActive(ctx, s.db, orgID, customerID, false)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) RecordPurchase(ctx context.Context, req domain.RecordPurchaseRequest) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}

	customerID, err := parseID(req.CustomerID)
	if err != nil {
		return domain.Customer{}, err
	}
	if req.Amount < 0 {
		return domain.Customer{}, domain.ErrInvalidAmount
	}
	if req.Quantity < 0 {
		return domain.Customer{}, domain.ErrInvalidQuantity
	}

	purchasedAt := s.clock.Now()
	if req.PurchasedAt != nil {
		purchasedAt = req.PurchasedAt.UTC()
	}

	var updated *domain.Customer
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.ApplyPurchase(ctx, tx, orgID, customerID, domain.Purchase{
			Amount:      req.Amount,
			Quantity:    req.Quantity,
			PurchasedAt: purchasedAt,
		}); err != nil {
			return err
		}
		var err error
		updated, err = s.repo.FindByID(ctx, tx, orgID, customerID)
		return err
	})
	if err != nil {
		return domain.Customer{}, err
	}
	if updated == nil {
		return domain.Customer{}, domain.ErrNotFound
	}

	s.log.Debug("purchase recorded",
		zap.String("customer_id", customerID.String()),
		zap.Float64("amount", req.Amount),
		zap.Int64("quantity", req.Quantity),
	)
	return *updated, nil
}

func (s *Service) OpenTicket(ctx context.Context, req domain.OpenTicketRequest) (domain.Ticket, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Ticket{}, domain.ErrInvalidOrganization
	}

	customerID, err := parseID(req.CustomerID)
	if err != nil {
		return domain.Ticket{}, err
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return domain.Ticket{}, domain.ErrInvalidSubject
	}

	if err := s.ensureCustomer(ctx, orgID, customerID); err != nil {
		return domain.Ticket{}, err
	}

	now := s.clock.Now()
	ticket := domain.Ticket{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		CustomerID: customerID,
		Subject:    subject,
		Status:     domain.TicketStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertTicket(ctx, s.db, &ticket); err != nil {
		return domain.Ticket{}, err
	}
	return ticket, nil
}

func (s *Service) UpdateTicketStatus(ctx context.Context, req domain.UpdateTicketStatusRequest) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}

	ticketID, err := parseID(req.TicketID)
	if err != nil {
		return err
	}
	if !req.Status.Valid() {
		return domain.ErrInvalidStatus
	}

	found, err := s.repo.UpdateTicketStatus(ctx, s.db, orgID, ticketID, req.Status)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrTicketNotFound
	}
	return nil
}

func (s *Service) IssueInvoice(ctx context.Context, req domain.IssueInvoiceRequest) (domain.Invoice, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Invoice{}, domain.ErrInvalidOrganization
	}

	customerID, err := parseID(req.CustomerID)
	if err != nil {
		return domain.Invoice{}, err
	}
	number := strings.TrimSpace(req.Number)
	if number == "" {
		return domain.Invoice{}, domain.ErrInvalidNumber
	}
	if req.Amount < 0 {
		return domain.Invoice{}, domain.ErrInvalidAmount
	}
	status := req.Status
	if status == "" {
		status = domain.InvoiceStatusDraft
	}
	if !status.Valid() {
		return domain.Invoice{}, domain.ErrInvalidStatus
	}

	if err := s.ensureCustomer(ctx, orgID, customerID); err != nil {
		return domain.Invoice{}, err
	}

	now := s.clock.Now()
	invoice := domain.Invoice{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		CustomerID: customerID,
		Number:     number,
		Amount:     req.Amount,
		Status:     status,
		IssuedAt:   now,
		CreatedAt:  now,
	}
	if err := s.repo.InsertInvoice(ctx, s.db, &invoice); err != nil {
		return domain.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) ensureCustomer(ctx context.Context, orgID, customerID snowflake.ID) error {
	item, err := s.repo.FindByID(ctx, s.db, orgID, customerID)
	if err != nil {
		return err
	}
	if item == nil {
		return domain.ErrNotFound
	}
	return nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
