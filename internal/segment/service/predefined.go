package service

import (
	"context"
	"errors"

	"github.com/apipatb/earning-sub011/internal/config"
	"github.com/apipatb/earning-sub011/internal/orgcontext"
	"github.com/apipatb/earning-sub011/internal/segment/domain"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

type daysAgo struct {
	DaysAgo int `json:"daysAgo"`
}

// predefinedSegments are the built-in rule segments. Date thresholds are
// relative so every refresh moves the window forward.
func predefinedSegments(p config.Predefined) []domain.CreateSegmentRequest {
	return []domain.CreateSegmentRequest{
		{
			Name:        "High Value Customers",
			Description: "Customers whose lifetime purchases reach the high value threshold.",
			SegmentType: domain.SegmentTypeRuleBased,
			Criteria: domain.RuleCriteria(domain.ModeAnd,
				domain.NewRule("totalPurchases", domain.OperatorGte, p.HighValueMinPurchases),
			),
		},
		{
			Name:        "At Risk Customers",
			Description: "Buyers who have not purchased for a while.",
			SegmentType: domain.SegmentTypeRuleBased,
			Criteria: domain.RuleCriteria(domain.ModeAnd,
				domain.NewRule("lastPurchaseDate", domain.OperatorLt, daysAgo{p.AtRiskAfterDays}),
				domain.NewRule("purchaseCount", domain.OperatorGte, 1),
			),
		},
		{
			Name:        "New Customers",
			Description: "Customers who signed up recently.",
			SegmentType: domain.SegmentTypeRuleBased,
			Criteria: domain.RuleCriteria(domain.ModeAnd,
				domain.NewRule("createdAt", domain.OperatorGte, daysAgo{p.NewWithinDays}),
			),
		},
		{
			Name:        "Active Customers",
			Description: "Customers with a recent purchase.",
			SegmentType: domain.SegmentTypeRuleBased,
			Criteria: domain.RuleCriteria(domain.ModeAnd,
				domain.NewRule("lastPurchaseDate", domain.OperatorGte, daysAgo{p.ActiveWithinDays}),
			),
		},
		{
			Name:        "Inactive Customers",
			Description: "Customers who never purchased or stopped purchasing long ago.",
			SegmentType: domain.SegmentTypeRuleBased,
			Criteria: domain.RuleCriteria(domain.ModeOr,
				domain.NewRule("lastPurchaseDate", domain.OperatorLt, daysAgo{p.InactiveAfterDays}),
				domain.NewRule("purchaseCount", domain.OperatorEq, 0),
			),
		},
	}
}

// CreatePredefined creates the built-in segments the organization does not
// have yet and returns the ones it created.
func (s *Service) CreatePredefined(ctx context.Context) ([]domain.Segment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	defs := predefinedSegments(s.config().Predefined)
	slugs := make([]string, 0, len(defs))
	for _, def := range defs {
		slugs = append(slugs, slug.Make(def.Name))
	}

	existing, err := s.repo.FindBySlugs(ctx, s.db, orgID, slugs)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(existing))
	for _, segment := range existing {
		have[segment.Slug] = struct{}{}
	}

	created := make([]domain.Segment, 0, len(defs))
	for i, def := range defs {
		if _, ok := have[slugs[i]]; ok {
			continue
		}
		segment, err := s.create(ctx, orgID, def, slugs[i])
		if errors.Is(err, domain.ErrDuplicateSlug) {
			// Created by a concurrent call since the lookup above.
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, *segment)
	}

	s.log.Info("predefined segments ensured",
		zap.String("org_id", orgID.String()),
		zap.Int("created", len(created)),
		zap.Int("existing", len(existing)),
	)
	return created, nil
}
