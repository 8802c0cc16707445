package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	customerdomain "github.com/apipatb/earning-sub011/internal/customer/domain"
	"github.com/apipatb/earning-sub011/internal/lock"
	"github.com/apipatb/earning-sub011/internal/observability/logger"
	obsmetrics "github.com/apipatb/earning-sub011/internal/observability/metrics"
	"github.com/apipatb/earning-sub011/internal/orgcontext"
	"github.com/apipatb/earning-sub011/internal/segment/clustering"
	"github.com/apipatb/earning-sub011/internal/segment/domain"
	"github.com/apipatb/earning-sub011/internal/segment/rules"
	"github.com/apipatb/earning-sub011/pkg/telemetry/correlation"
	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// refreshMode selects what happens to the segment row inside the refresh
// transaction.
type refreshMode int

const (
	refreshOnly refreshMode = iota
	refreshInsert
	refreshPersist
)

func (s *Service) UpdateMembership(ctx context.Context, req domain.UpdateMembershipRequest) (int64, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidOrganization
	}
	segmentID, err := parseID(req.ID)
	if err != nil {
		return 0, err
	}
	if req.SegmentType != "" && !req.SegmentType.Valid() {
		return 0, domain.ErrInvalidSegmentType
	}

	segment, err := s.find(ctx, orgID, segmentID)
	if err != nil {
		return 0, err
	}
	if !segment.IsAuto {
		return 0, fmt.Errorf("%w: manual segments change only through add and remove", domain.ErrInvalidOperation)
	}
	if req.SegmentType != "" && req.SegmentType != segment.SegmentType {
		return 0, fmt.Errorf("%w: segment is %s", domain.ErrInvalidOperation, segment.SegmentType)
	}

	mode := refreshOnly
	criteria := req.Criteria
	if criteria != nil {
		if err := s.validateCriteria(segment.SegmentType, criteria); err != nil {
			return 0, err
		}
		encoded, err := criteria.Encode()
		if err != nil {
			return 0, err
		}
		segment.Criteria = encoded
		segment.UpdatedAt = s.clock.Now()
		mode = refreshPersist
	} else if criteria, err = s.storedCriteria(segment); err != nil {
		return 0, err
	}

	return s.refresh(ctx, segment, criteria, mode)
}

func (s *Service) AddCustomers(ctx context.Context, req domain.MembershipChangeRequest) (int64, error) {
	orgID, segment, customerIDs, err := s.prepareManualChange(ctx, req)
	if err != nil {
		return 0, err
	}

	owned, err := s.customerRepo.FilterOwned(ctx, s.db, orgID, customerIDs)
	if err != nil {
		return 0, err
	}
	if len(owned) != len(customerIDs) {
		return 0, fmt.Errorf("%w: %d of %d customers not found", domain.ErrInvalidCustomer, len(customerIDs)-len(owned), len(customerIDs))
	}

	return s.changeMembers(ctx, segment, func(tx *gorm.DB, now time.Time) error {
		return s.repo.AddMembers(ctx, tx, segment.ID, customerIDs, now)
	})
}

func (s *Service) RemoveCustomers(ctx context.Context, req domain.MembershipChangeRequest) (int64, error) {
	_, segment, customerIDs, err := s.prepareManualChange(ctx, req)
	if err != nil {
		return 0, err
	}

	return s.changeMembers(ctx, segment, func(tx *gorm.DB, _ time.Time) error {
		return s.repo.RemoveMembers(ctx, tx, segment.ID, customerIDs)
	})
}

// RefreshAutoSegments recomputes every active rule-based and clustering
// segment of the organization and returns how many were refreshed.
func (s *Service) RefreshAutoSegments(ctx context.Context) (int, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidOrganization
	}
	ctx, _ = correlation.Ensure(ctx)

	segments, err := s.repo.List(ctx, s.db, orgID, domain.ListSegmentFilter{AutoOnly: true, ActiveOnly: true})
	if err != nil {
		return 0, err
	}

	limit := s.config().RefreshConcurrency
	if limit < 1 {
		limit = 1
	}

	var refreshed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range segments {
		segment := segments[i]
		g.Go(func() error {
			criteria, err := s.storedCriteria(&segment)
			if err != nil {
				return fmt.Errorf("segment %s: %w", segment.ID, err)
			}
			if _, err := s.refresh(gctx, &segment, criteria, refreshOnly); err != nil {
				return fmt.Errorf("segment %s: %w", segment.ID, err)
			}
			refreshed.Add(1)
			return nil
		})
	}
	err = g.Wait()

	logger.WithContext(ctx, s.log).Info("auto segments refreshed",
		zap.Int("segments", len(segments)),
		zap.Int64("refreshed", refreshed.Load()),
		zap.Error(err),
	)
	return int(refreshed.Load()), err
}

// refresh recomputes the members of an auto segment under its lock and swaps
// them in with one transaction, together with the member count and analytics.
func (s *Service) refresh(ctx context.Context, segment *domain.Segment, criteria *domain.Criteria, mode refreshMode) (count int64, err error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "segment.refresh")
	span.SetAttributes(
		attribute.String("segment.id", segment.ID.String()),
		attribute.String("segment.type", string(segment.SegmentType)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.refreshMetrics.ObserveRefresh(string(segment.SegmentType), int(count), time.Since(started), metricError(err))
	}()

	cfg := s.config()
	lease, err := s.locker.Acquire(ctx, lockKey(segment.ID), cfg.LockTTL)
	if err != nil {
		return 0, err
	}
	defer s.release(lease)

	memberIDs, err := s.evaluate(ctx, segment.OrgID, segment.SegmentType, criteria)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch mode {
		case refreshInsert:
			if err := s.repo.Insert(ctx, tx, segment); err != nil {
				return err
			}
		case refreshPersist:
			if err := s.repo.Update(ctx, tx, segment); err != nil {
				return err
			}
		}
		if err := s.repo.ReplaceMembers(ctx, tx, segment.ID, memberIDs, now); err != nil {
			return err
		}
		var err error
		if count, err = s.syncMembership(ctx, tx, segment, now); err != nil {
			return err
		}
		return lease.Held(ctx)
	})
	if err != nil {
		return 0, err
	}

	segment.MemberCount = count
	segment.LastRefreshedAt = &now
	s.metrics.RecordMembersWritten(ctx, string(segment.SegmentType), int(count))
	logger.WithContext(ctx, s.log).Debug("segment refreshed",
		zap.String("segment_id", segment.ID.String()),
		zap.String("segment_type", string(segment.SegmentType)),
		zap.Int64("members", count),
	)
	return count, nil
}

// evaluate computes the member ids of an auto segment from current customer data.
func (s *Service) evaluate(ctx context.Context, orgID snowflake.ID, t domain.SegmentType, criteria *domain.Criteria) ([]snowflake.ID, error) {
	now := s.clock.Now()
	switch t {
	case domain.SegmentTypeRuleBased:
		scope, err := rules.Scope(criteria.Mode, criteria.Rules, now)
		if err != nil {
			return nil, err
		}
		return s.customerRepo.ListIDs(ctx, s.db, orgID, scope)

	case domain.SegmentTypeMLClustering:
		activity, err := s.customerRepo.ListActivity(ctx, s.db, orgID, customerdomain.ActivityFilter{ActiveOnly: true})
		if err != nil {
			return nil, err
		}
		outcome, err := clustering.Run(*criteria.ML, activity, s.config().MaxIterations, now)
		if err != nil {
			return nil, err
		}
		s.refreshMetrics.ObserveIterations(outcome.Iterations)
		logger.WithContext(ctx, s.log).Debug("clustering finished",
			zap.String("ml_type", string(criteria.ML.Type)),
			zap.Int("k", criteria.ML.K),
			zap.Int("customers", len(activity)),
			zap.Int("iterations", outcome.Iterations),
			zap.Int("cluster", outcome.Cluster),
			zap.Ints("sizes", outcome.Sizes),
			zap.Float64s("averages", outcome.Averages),
		)
		return outcome.MemberIDs, nil
	}
	return nil, domain.ErrInvalidSegmentType
}

func (s *Service) prepareManualChange(ctx context.Context, req domain.MembershipChangeRequest) (snowflake.ID, *domain.Segment, []snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, nil, nil, domain.ErrInvalidOrganization
	}
	segmentID, err := parseID(req.SegmentID)
	if err != nil {
		return 0, nil, nil, err
	}
	customerIDs, err := parseCustomerIDs(req.CustomerIDs)
	if err != nil {
		return 0, nil, nil, err
	}

	segment, err := s.find(ctx, orgID, segmentID)
	if err != nil {
		return 0, nil, nil, err
	}
	if segment.IsAuto {
		return 0, nil, nil, domain.ErrManualSegmentRequired
	}
	return orgID, segment, customerIDs, nil
}

// changeMembers applies a manual membership change and resyncs count and
// analytics in the same transaction.
func (s *Service) changeMembers(ctx context.Context, segment *domain.Segment, change func(tx *gorm.DB, now time.Time) error) (int64, error) {
	lease, err := s.locker.Acquire(ctx, lockKey(segment.ID), s.config().LockTTL)
	if err != nil {
		return 0, err
	}
	defer s.release(lease)

	now := s.clock.Now()
	var count int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := change(tx, now); err != nil {
			return err
		}
		var err error
		if count, err = s.syncMembership(ctx, tx, segment, now); err != nil {
			return err
		}
		return lease.Held(ctx)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// syncMembership writes the member count and recomputes analytics inside tx.
func (s *Service) syncMembership(ctx context.Context, tx *gorm.DB, segment *domain.Segment, now time.Time) (int64, error) {
	count, err := s.repo.CountMembers(ctx, tx, segment.ID)
	if err != nil {
		return 0, err
	}
	if err := s.repo.SetMemberCount(ctx, tx, segment.ID, count, now); err != nil {
		return 0, err
	}
	if _, err := s.recalculate(ctx, tx, segment, now); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Service) storedCriteria(segment *domain.Segment) (*domain.Criteria, error) {
	criteria, err := domain.DecodeCriteria(segment.Criteria)
	if err != nil {
		return nil, err
	}
	if err := s.validateCriteria(segment.SegmentType, criteria); err != nil {
		return nil, err
	}
	return criteria, nil
}

func (s *Service) release(lease lock.Lease) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		s.log.Warn("failed to release segment lock", zap.Error(err))
	}
}

func lockKey(segmentID snowflake.ID) string {
	return "segment:refresh:" + segmentID.String()
}

func parseCustomerIDs(values []string) ([]snowflake.ID, error) {
	if len(values) == 0 {
		return nil, domain.ErrInvalidCustomer
	}
	ids := make([]snowflake.ID, 0, len(values))
	seen := make(map[snowflake.ID]struct{}, len(values))
	for _, value := range values {
		id, err := snowflake.ParseString(strings.TrimSpace(value))
		if err != nil || id == 0 {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCustomer, value)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// metricError tags request validation failures so refresh metrics report
// them apart from storage failures.
func metricError(err error) error {
	if err != nil && domain.IsValidationError(err) {
		return fmt.Errorf("%w: %w", obsmetrics.ErrValidation, err)
	}
	return err
}
