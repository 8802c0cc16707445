package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListSegmentFilter struct {
	SegmentType SegmentType
	AutoOnly    bool
	ActiveOnly  bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, segment *Segment) error
	Update(ctx context.Context, db *gorm.DB, segment *Segment) error
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Segment, error)
	FindBySlugs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, slugs []string) ([]Segment, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListSegmentFilter) ([]Segment, error)
	SetMemberCount(ctx context.Context, db *gorm.DB, id snowflake.ID, count int64, refreshedAt time.Time) error

	ReplaceMembers(ctx context.Context, db *gorm.DB, segmentID snowflake.ID, customerIDs []snowflake.ID, addedAt time.Time) error
	AddMembers(ctx context.Context, db *gorm.DB, segmentID snowflake.ID, customerIDs []snowflake.ID, addedAt time.Time) error
	RemoveMembers(ctx context.Context, db *gorm.DB, segmentID snowflake.ID, customerIDs []snowflake.ID) error
	DeleteMembers(ctx context.Context, db *gorm.DB, segmentID snowflake.ID) error
	CountMembers(ctx context.Context, db *gorm.DB, segmentID snowflake.ID) (int64, error)
	ListMembers(ctx context.Context, db *gorm.DB, segmentID snowflake.ID) ([]SegmentMember, error)
	ListMemberIDs(ctx context.Context, db *gorm.DB, segmentID snowflake.ID) ([]snowflake.ID, error)

	UpsertAnalysis(ctx context.Context, db *gorm.DB, analysis *SegmentAnalysis) error
	DeleteAnalysis(ctx context.Context, db *gorm.DB, segmentID snowflake.ID) error
	FindAnalysis(ctx context.Context, db *gorm.DB, segmentID snowflake.ID) (*SegmentAnalysis, error)
	ListAnalyses(ctx context.Context, db *gorm.DB, segmentIDs []snowflake.ID) ([]SegmentAnalysis, error)
}
