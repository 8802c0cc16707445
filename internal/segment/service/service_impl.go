package service

import (
	"bytes"
	"context"
	"strings"

	"github.com/apipatb/earning-sub011/internal/clock"
	"github.com/apipatb/earning-sub011/internal/config"
	customerdomain "github.com/apipatb/earning-sub011/internal/customer/domain"
	"github.com/apipatb/earning-sub011/internal/lock"
	obsmetrics "github.com/apipatb/earning-sub011/internal/observability/metrics"
	"github.com/apipatb/earning-sub011/internal/orgcontext"
	"github.com/apipatb/earning-sub011/internal/segment/domain"
	"github.com/apipatb/earning-sub011/internal/segment/rules"
	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           domain.Repository
	CustomerRepo   customerdomain.Repository
	Locker         lock.Locker
	Config         *config.SegmentationConfigHolder
	Metrics        *obsmetrics.Metrics        `optional:"true"`
	RefreshMetrics *obsmetrics.RefreshMetrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           domain.Repository
	customerRepo   customerdomain.Repository
	locker         lock.Locker
	cfg            *config.SegmentationConfigHolder
	metrics        *obsmetrics.Metrics
	refreshMetrics *obsmetrics.RefreshMetrics
	tracer         trace.Tracer
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	locker := p.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("segment.service"),
		genID:          p.GenID,
		clock:          clk,
		repo:           p.Repo,
		customerRepo:   p.CustomerRepo,
		locker:         locker,
		cfg:            p.Config,
		metrics:        p.Metrics,
		refreshMetrics: p.RefreshMetrics,
		tracer:         otel.Tracer("segment.service"),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateSegmentRequest) (*domain.Segment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.create(ctx, orgID, req, "")
}

// create inserts the segment. An empty pinnedSlug derives a free slug from the
// name; a pinned slug is used as is and fails with ErrDuplicateSlug when taken.
func (s *Service) create(ctx context.Context, orgID snowflake.ID, req domain.CreateSegmentRequest, pinnedSlug string) (*domain.Segment, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if !req.SegmentType.Valid() {
		return nil, domain.ErrInvalidSegmentType
	}

	criteria := req.Criteria
	if err := s.validateCriteria(req.SegmentType, criteria); err != nil {
		return nil, err
	}
	encoded, err := criteria.Encode()
	if err != nil {
		return nil, err
	}

	id := s.genID.Generate()
	segmentSlug := pinnedSlug
	if segmentSlug == "" {
		if segmentSlug, err = s.freeSlug(ctx, orgID, id, name); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	segment := domain.Segment{
		ID:          id,
		OrgID:       orgID,
		Name:        name,
		Slug:        segmentSlug,
		Description: strings.TrimSpace(req.Description),
		Criteria:    encoded,
		SegmentType: req.SegmentType,
		IsAuto:      req.SegmentType.IsAuto(),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if !segment.IsAuto {
		if err := s.repo.Insert(ctx, s.db, &segment); err != nil {
			return nil, err
		}
	} else if _, err := s.refresh(ctx, &segment, criteria, refreshInsert); err != nil {
		return nil, err
	}

	s.metrics.RecordSegmentCreated(ctx, string(segment.SegmentType))
	return s.load(ctx, orgID, segment.ID)
}

func (s *Service) List(ctx context.Context, req domain.ListSegmentRequest) ([]domain.Segment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	if req.SegmentType != "" && !req.SegmentType.Valid() {
		return nil, domain.ErrInvalidSegmentType
	}

	segments, err := s.repo.List(ctx, s.db, orgID, domain.ListSegmentFilter{
		SegmentType: req.SegmentType,
		ActiveOnly:  req.ActiveOnly,
	})
	if err != nil {
		return nil, err
	}
	if !req.IncludeAnalysis || len(segments) == 0 {
		return segments, nil
	}

	ids := make([]snowflake.ID, 0, len(segments))
	for _, segment := range segments {
		ids = append(ids, segment.ID)
	}
	analyses, err := s.repo.ListAnalyses(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	bySegment := make(map[snowflake.ID]domain.SegmentAnalysis, len(analyses))
	for _, a := range analyses {
		bySegment[a.SegmentID] = a
	}
	for i := range segments {
		if a, ok := bySegment[segments[i].ID]; ok {
			a := a
			segments[i].Analysis = &a
		}
	}
	return segments, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Segment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	segmentID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, orgID, segmentID)
}

func (s *Service) Update(ctx context.Context, req domain.UpdateSegmentRequest) (*domain.Segment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	segmentID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}

	segment, err := s.find(ctx, orgID, segmentID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		segment.Name = name
		if segment.Slug, err = s.freeSlug(ctx, orgID, segment.ID, name); err != nil {
			return nil, err
		}
	}
	if req.Description != nil {
		segment.Description = strings.TrimSpace(*req.Description)
	}
	if req.IsActive != nil {
		segment.IsActive = *req.IsActive
	}

	var criteria *domain.Criteria
	criteriaChanged := false
	if req.Criteria != nil {
		if !segment.IsAuto {
			return nil, domain.ErrInvalidOperation
		}
		criteria = req.Criteria
		if err := s.validateCriteria(segment.SegmentType, criteria); err != nil {
			return nil, err
		}
		encoded, err := criteria.Encode()
		if err != nil {
			return nil, err
		}
		criteriaChanged = !bytes.Equal(encoded, segment.Criteria)
		segment.Criteria = encoded
	}
	segment.UpdatedAt = s.clock.Now()

	if criteriaChanged {
		if _, err := s.refresh(ctx, segment, criteria, refreshPersist); err != nil {
			return nil, err
		}
	} else if err := s.repo.Update(ctx, s.db, segment); err != nil {
		return nil, err
	}

	return s.load(ctx, orgID, segmentID)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	segmentID, err := parseID(id)
	if err != nil {
		return err
	}

	segment, err := s.find(ctx, orgID, segmentID)
	if err != nil {
		return err
	}

	lease, err := s.locker.Acquire(ctx, lockKey(segmentID), s.config().LockTTL)
	if err != nil {
		return err
	}
	defer s.release(lease)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeleteMembers(ctx, tx, segmentID); err != nil {
			return err
		}
		if err := s.repo.DeleteAnalysis(ctx, tx, segmentID); err != nil {
			return err
		}
		found, err := s.repo.Delete(ctx, tx, orgID, segmentID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound
		}
		return lease.Held(ctx)
	})
	if err != nil {
		return err
	}

	s.metrics.RecordSegmentDeleted(ctx, string(segment.SegmentType))
	return nil
}

// freeSlug returns the slug of name, suffixed with the segment id when another
// segment of the organization already uses it.
func (s *Service) freeSlug(ctx context.Context, orgID, segmentID snowflake.ID, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		return segmentID.String(), nil
	}
	taken, err := s.repo.FindBySlugs(ctx, s.db, orgID, []string{base})
	if err != nil {
		return "", err
	}
	for _, other := range taken {
		if other.ID != segmentID {
			return base + "-" + segmentID.String(), nil
		}
	}
	return base, nil
}

// find returns the segment without members or analysis.
func (s *Service) find(ctx context.Context, orgID, segmentID snowflake.ID) (*domain.Segment, error) {
	segment, err := s.repo.FindByID(ctx, s.db, orgID, segmentID)
	if err != nil {
		return nil, err
	}
	if segment == nil {
		return nil, domain.ErrNotFound
	}
	return segment, nil
}

// load returns the segment with its members and analysis.
func (s *Service) load(ctx context.Context, orgID, segmentID snowflake.ID) (*domain.Segment, error) {
	segment, err := s.find(ctx, orgID, segmentID)
	if err != nil {
		return nil, err
	}

	members, err := s.repo.ListMembers(ctx, s.db, segmentID)
	if err != nil {
		return nil, err
	}
	segment.Members = members

	analysis, err := s.repo.FindAnalysis(ctx, s.db, segmentID)
	if err != nil {
		return nil, err
	}
	segment.Analysis = analysis
	return segment, nil
}

// validateCriteria normalizes criteria in place for segment type t.
func (s *Service) validateCriteria(t domain.SegmentType, criteria *domain.Criteria) error {
	cfg := s.config()
	if err := criteria.Validate(t, cfg.DefaultClusters, cfg.MaxClusters); err != nil {
		return err
	}
	if t == domain.SegmentTypeRuleBased {
		return rules.Validate(criteria.Rules)
	}
	return nil
}

func (s *Service) config() config.SegmentationConfig {
	return s.cfg.Get()
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
