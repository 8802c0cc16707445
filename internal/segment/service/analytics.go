package service

import (
	"context"
	"time"

	customerdomain "github.com/apipatb/earning-sub011/internal/customer/domain"
	"github.com/apipatb/earning-sub011/internal/orgcontext"
	"github.com/apipatb/earning-sub011/internal/segment/analytics"
	"github.com/apipatb/earning-sub011/internal/segment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	analyticsOutcomeComputed = "computed"
	analyticsOutcomeEmpty    = "empty"
	analyticsOutcomeError    = "error"
)

func (s *Service) CalculateAnalytics(ctx context.Context, id string) (*domain.SegmentAnalysis, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	segmentID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	segment, err := s.find(ctx, orgID, segmentID)
	if err != nil {
		return nil, err
	}

	var result *domain.SegmentAnalysis
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.recalculate(ctx, tx, segment, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recalculate upserts the analysis of segment from its current members, or
// removes it when the segment is empty.
func (s *Service) recalculate(ctx context.Context, tx *gorm.DB, segment *domain.Segment, now time.Time) (result *domain.SegmentAnalysis, err error) {
	defer func() {
		switch {
		case err != nil:
			s.metrics.RecordAnalyticsRun(ctx, analyticsOutcomeError)
		case result == nil:
			s.metrics.RecordAnalyticsRun(ctx, analyticsOutcomeEmpty)
		default:
			s.metrics.RecordAnalyticsRun(ctx, analyticsOutcomeComputed)
		}
	}()

	memberIDs, err := s.repo.ListMemberIDs(ctx, tx, segment.ID)
	if err != nil {
		return nil, err
	}
	if len(memberIDs) == 0 {
		return nil, s.repo.DeleteAnalysis(ctx, tx, segment.ID)
	}

	members, err := s.customerRepo.ListActivity(ctx, tx, segment.OrgID, customerdomain.ActivityFilter{IDs: memberIDs})
	if err != nil {
		return nil, err
	}

	result = analytics.Calculate(segment.OrgID, segment.ID, members, now)
	if result == nil {
		return nil, s.repo.DeleteAnalysis(ctx, tx, segment.ID)
	}
	if err := s.repo.UpsertAnalysis(ctx, tx, result); err != nil {
		return nil, err
	}

	s.log.Debug("segment analytics calculated",
		zap.String("segment_id", segment.ID.String()),
		zap.Int64("members", result.TotalMembers),
	)
	return result, nil
}
