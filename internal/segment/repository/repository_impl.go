package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apipatb/earning-sub011/internal/segment/domain"
	pkgdb "github.com/apipatb/earning-sub011/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const memberBatchSize = 500

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, segment *domain.Segment) error {
	return slugConflict(db.WithContext(ctx).Create(segment).Error)
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, segment *domain.Segment) error {
	return slugConflict(db.WithContext(ctx).
		Model(&domain.Segment{}).
		Where("org_id = ? AND id = ?", segment.OrgID, segment.ID).
		Updates(map[string]any{
			"name":        segment.Name,
			"slug":        segment.Slug,
			"description": segment.Description,
			"criteria":    segment.Criteria,
			"is_active":   segment.IsActive,
			"updated_at":  segment.UpdatedAt,
		}).Error)
}

// slugConflict maps a unique violation on (org_id, slug) to ErrDuplicateSlug.
func slugConflict(err error) error {
	if pkgdb.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %v", domain.ErrDuplicateSlug, err)
	}
	return err
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Delete(&domain.Segment{})
	return res.RowsAffected > 0, res.Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Segment, error) {
	var segment domain.Segment
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&segment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &segment, nil
}

func (r *repo) FindBySlugs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, slugs []string) ([]domain.Segment, error) {
	if len(slugs) == 0 {
		return []domain.Segment{}, nil
	}
	var segments []domain.Segment
	err := db.WithContext(ctx).
		Where("org_id = ? AND slug IN ?", orgID, slugs).
		Order("id").
		Find(&segments).Error
	return segments, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListSegmentFilter) ([]domain.Segment, error) {
	stmt := db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.SegmentType != "" {
		stmt = stmt.Where("segment_type = ?", filter.SegmentType)
	}
	if filter.AutoOnly {
		stmt = stmt.Where("is_auto = ?", true)
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("is_active = ?", true)
	}

	var segments []domain.Segment
	if err := stmt.Order("created_at desc, id desc").Find(&segments).Error; err != nil {
		return nil, err
	}
	return segments, nil
}

func (r *repo) SetMemberCount(ctx context.Context, db *gorm.DB, id snowflake.ID, count int64, refreshedAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Segment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"member_count":      count,
			"last_refreshed_at": refreshedAt,
			"updated_at":        refreshedAt,
		}).Error
}

func (r *repo) ReplaceMembers(ctx context.Context, db *gorm.DB, segmentID snowflake.ID, customerIDs []snowflake.ID, addedAt time.Time) error {
	if err := r.DeleteMembers(ctx, db, segmentID); err != nil {
		return err
	}
	if len(customerIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		CreateInBatches(members(segmentID, customerIDs, addedAt), memberBatchSize).Error
}

func (r *repo) AddMembers(ctx context.Context, db *gorm.DB, segmentID snowflake.ID, customerIDs []snowflake.ID, addedAt time.Time) error {
	if len(customerIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(members(segmentID, customerIDs, addedAt), memberBatchSize).Error
}

func (r *repo) RemoveMembers(ctx context.Context, db *gorm.DB, segmentID snowflake.ID, customerIDs []snowflake.ID) error {
	if len(customerIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("segment_id = ? AND customer_id IN ?", segmentID, customerIDs).
		Delete(&domain.SegmentMember{}).Error
}

func (r *repo) DeleteMembers(ctx context.Context, db *gorm.DB, segmentID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("segment_id = ?", segmentID).
		Delete(&domain.SegmentMember{}).Error
}

func (r *repo) CountMembers(ctx context.Context, db *gorm.DB, segmentID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.SegmentMember{}).
		Where("segment_id = ?", segmentID).
		Count(&count).Error
	return count, err
}

func (r *repo) ListMembers(ctx context.Context, db *gorm.DB, segmentID snowflake.ID) ([]domain.SegmentMember, error) {
	var out []domain.SegmentMember
	err := db.WithContext(ctx).
		Where("segment_id = ?", segmentID).
		Order("customer_id").
		Find(&out).Error
	return out, err
}

func (r *repo) ListMemberIDs(ctx context.Context, db *gorm.DB, segmentID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.SegmentMember{}).
		Where("segment_id = ?", segmentID).
		Order("customer_id").
		Pluck("customer_id", &ids).Error
	return ids, err
}

func (r *repo) UpsertAnalysis(ctx context.Context, db *gorm.DB, analysis *domain.SegmentAnalysis) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "segment_id"}},
			UpdateAll: true,
		}).
		Create(analysis).Error
}

func (r *repo) DeleteAnalysis(ctx context.Context, db *gorm.DB, segmentID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("segment_id = ?", segmentID).
		Delete(&domain.SegmentAnalysis{}).Error
}

func (r *repo) FindAnalysis(ctx context.Context, db *gorm.DB, segmentID snowflake.ID) (*domain.SegmentAnalysis, error) {
	var analysis domain.SegmentAnalysis
	err := db.WithContext(ctx).
		Where("segment_id = ?", segmentID).
		Limit(1).
		Find(&analysis).Error
	if err != nil {
		return nil, err
	}
	if analysis.SegmentID == 0 {
		return nil, nil
	}
	return &analysis, nil
}

func (r *repo) ListAnalyses(ctx context.Context, db *gorm.DB, segmentIDs []snowflake.ID) ([]domain.SegmentAnalysis, error) {
	if len(segmentIDs) == 0 {
		return []domain.SegmentAnalysis{}, nil
	}
	var out []domain.SegmentAnalysis
	err := db.WithContext(ctx).
		Where("segment_id IN ?", segmentIDs).
		Find(&out).Error
	return out, err
}

func members(segmentID snowflake.ID, customerIDs []snowflake.ID, addedAt time.Time) []domain.SegmentMember {
	rows := make([]domain.SegmentMember, 0, len(customerIDs))
	seen := make(map[snowflake.ID]struct{}, len(customerIDs))
	for _, id := range customerIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, domain.SegmentMember{
			SegmentID:  segmentID,
			CustomerID: id,
			AddedAt:    addedAt,
		})
	}
	return rows
}
