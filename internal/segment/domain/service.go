package domain

import (
	"context"
	"errors"
)

type Service interface {
	Create(ctx context.Context, req CreateSegmentRequest) (*Segment, error)
	List(ctx context.Context, req ListSegmentRequest) ([]Segment, error)
	GetByID(ctx context.Context, id string) (*Segment, error)
	Update(ctx context.Context, req UpdateSegmentRequest) (*Segment, error)
	Delete(ctx context.Context, id string) error

	// UpdateMembership recomputes the members of a rule-based or clustering
	// segment and returns the new member count.
	UpdateMembership(ctx context.Context, req UpdateMembershipRequest) (int64, error)
	AddCustomers(ctx context.Context, req MembershipChangeRequest) (int64, error)
	RemoveCustomers(ctx context.Context, req MembershipChangeRequest) (int64, error)

	// CalculateAnalytics returns nil when the segment has no members.
	CalculateAnalytics(ctx context.Context, id string) (*SegmentAnalysis, error)

	CreatePredefined(ctx context.Context) ([]Segment, error)
	RefreshAutoSegments(ctx context.Context) (int, error)
}

type CreateSegmentRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	SegmentType SegmentType `json:"segment_type"`
	Criteria    *Criteria   `json:"criteria,omitempty"`
}

type ListSegmentRequest struct {
	IncludeAnalysis bool        `json:"include_analysis"`
	SegmentType     SegmentType `json:"segment_type,omitempty"`
	ActiveOnly      bool        `json:"active_only"`
}

type UpdateSegmentRequest struct {
	ID          string    `json:"id"`
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Criteria    *Criteria `json:"criteria,omitempty"`
	IsActive    *bool     `json:"is_active,omitempty"`
}

// UpdateMembershipRequest refreshes a segment. Criteria, when set, replaces
// the stored criteria. SegmentType, when set, must match the stored type.
type UpdateMembershipRequest struct {
	ID          string      `json:"id"`
	Criteria    *Criteria   `json:"criteria,omitempty"`
	SegmentType SegmentType `json:"segment_type,omitempty"`
}

type MembershipChangeRequest struct {
	SegmentID   string   `json:"segment_id"`
	CustomerIDs []string `json:"customer_ids"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidSegmentType  = errors.New("invalid_segment_type")
	ErrInvalidCriteria     = errors.New("invalid_criteria")
	ErrInvalidRuleMode     = errors.New("invalid_rule_mode")
	ErrInvalidRuleField    = errors.New("invalid_rule_field")
	ErrInvalidRuleOperator = errors.New("invalid_rule_operator")
	ErrInvalidRuleValue    = errors.New("invalid_rule_value")
	ErrInvalidMLConfig     = errors.New("invalid_ml_config")
	ErrInvalidCustomer     = errors.New("invalid_customer")

	ErrNotFound              = errors.New("not_found")
	ErrInvalidOperation      = errors.New("invalid_operation")
	ErrManualSegmentRequired = errors.New("manual_segment_required")
	ErrDuplicateSlug         = errors.New("duplicate_slug")
)

var validationErrors = []error{
	ErrInvalidOrganization,
	ErrInvalidID,
	ErrInvalidName,
	ErrInvalidSegmentType,
	ErrInvalidCriteria,
	ErrInvalidRuleMode,
	ErrInvalidRuleField,
	ErrInvalidRuleOperator,
	ErrInvalidRuleValue,
	ErrInvalidMLConfig,
	ErrInvalidCustomer,
}

// IsValidationError reports whether err was raised before any persistence access
// because the request itself was malformed.
func IsValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
