package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type SegmentType string

const (
	SegmentTypeManual       SegmentType = "manual"
	SegmentTypeRuleBased    SegmentType = "rule-based"
	SegmentTypeMLClustering SegmentType = "ml-clustering"
)

func (t SegmentType) Valid() bool {
	switch t {
	case SegmentTypeManual, SegmentTypeRuleBased, SegmentTypeMLClustering:
		return true
	default:
		return false
	}
}

// IsAuto reports whether membership of this type is computed rather than curated.
func (t SegmentType) IsAuto() bool {
	return t != SegmentTypeManual
}

// Segment is a named grouping of customers owned by one organization.
type Segment struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID   `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:ux_segments_org_slug,priority:1"`
	Name            string         `json:"name" gorm:"type:text;not null"`
	Slug            string         `json:"slug" gorm:"type:text;not null;uniqueIndex:ux_segments_org_slug,priority:2"`
	Description     string         `json:"description,omitempty" gorm:"type:text"`
	Criteria        datatypes.JSON `json:"criteria,omitempty"`
	SegmentType     SegmentType    `json:"segment_type" gorm:"type:text;not null"`
	MemberCount     int64          `json:"member_count" gorm:"not null;default:0"`
	IsAuto          bool           `json:"is_auto" gorm:"not null"`
	IsActive        bool           `json:"is_active" gorm:"not null"`
	LastRefreshedAt *time.Time     `json:"last_refreshed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"not null"`

	Members  []SegmentMember  `json:"members,omitempty" gorm:"-"`
	Analysis *SegmentAnalysis `json:"analysis,omitempty" gorm:"-"`
}

func (Segment) TableName() string { return "segments" }

// SegmentMember associates one customer with one segment.
type SegmentMember struct {
	SegmentID  snowflake.ID `json:"segment_id" gorm:"primaryKey;autoIncrement:false"`
	CustomerID snowflake.ID `json:"customer_id" gorm:"primaryKey;autoIncrement:false;index"`
	AddedAt    time.Time    `json:"added_at" gorm:"not null"`
}

func (SegmentMember) TableName() string { return "segment_members" }

// SegmentAnalysis summarizes the members of a segment. Rates and scores are
// percentages in [0, 100].
type SegmentAnalysis struct {
	SegmentID            snowflake.ID `json:"segment_id" gorm:"primaryKey;autoIncrement:false"`
	OrgID                snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	TotalMembers         int64        `json:"total_members" gorm:"not null"`
	AvgLifetimeValue     float64      `json:"avg_lifetime_value" gorm:"not null"`
	TotalLifetimeValue   float64      `json:"total_lifetime_value" gorm:"not null"`
	AvgChurnRisk         float64      `json:"avg_churn_risk" gorm:"not null"`
	AvgEngagementScore   float64      `json:"avg_engagement_score" gorm:"not null"`
	AvgPurchaseFrequency float64      `json:"avg_purchase_frequency" gorm:"not null"`
	AvgRecencyDays       float64      `json:"avg_recency_days" gorm:"not null"`
	AvgTicketCount       float64      `json:"avg_ticket_count" gorm:"not null"`
	ConversionRate       float64      `json:"conversion_rate" gorm:"not null"`
	RetentionRate        float64      `json:"retention_rate" gorm:"not null"`
	LastCalculatedAt     time.Time    `json:"last_calculated_at" gorm:"not null"`
}

func (SegmentAnalysis) TableName() string { return "segment_analyses" }
