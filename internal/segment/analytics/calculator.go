package analytics

import (
	"math"
	"time"

	customerdomain "github.com/apipatb/earning-sub011/internal/customer/domain"
	"github.com/apipatb/earning-sub011/internal/segment/clustering"
	"github.com/apipatb/earning-sub011/internal/segment/domain"
	"github.com/bwmarrin/snowflake"
)

const (
	// RetentionWindowDays is how recent a purchase must be to count as retained.
	RetentionWindowDays = 90
	// ChurnHorizonDays is the recency at which churn risk saturates at 100.
	ChurnHorizonDays = 90
)

// Calculate summarizes members. It returns nil for an empty segment.
func Calculate(orgID, segmentID snowflake.ID, members []customerdomain.Activity, now time.Time) *domain.SegmentAnalysis {
	if len(members) == 0 {
		return nil
	}

	var (
		totalValue   float64
		purchases    float64
		recency      float64
		tickets      float64
		converted    int
		retained     int
		retainedFrom = now.AddDate(0, 0, -RetentionWindowDays)
	)
	for _, m := range members {
		totalValue += m.TotalPurchases
		purchases += float64(m.PurchaseCount)
		recency += clustering.RecencyDays(m.LastPurchaseAt, now)
		tickets += float64(m.TicketCount)
		if m.PurchaseCount > 0 || m.LastPurchaseAt != nil {
			converted++
		}
		if m.LastPurchaseAt != nil && !m.LastPurchaseAt.Before(retainedFrom) {
			retained++
		}
	}

	n := float64(len(members))
	avgFrequency := purchases / n
	avgRecency := recency / n

	return &domain.SegmentAnalysis{
		SegmentID:            segmentID,
		OrgID:                orgID,
		TotalMembers:         int64(len(members)),
		AvgLifetimeValue:     totalValue / n,
		TotalLifetimeValue:   totalValue,
		AvgChurnRisk:         ChurnRisk(avgRecency),
		AvgEngagementScore:   EngagementScore(avgFrequency, avgRecency),
		AvgPurchaseFrequency: avgFrequency,
		AvgRecencyDays:       avgRecency,
		AvgTicketCount:       tickets / n,
		ConversionRate:       float64(converted) / n * 100,
		RetentionRate:        float64(retained) / n * 100,
		LastCalculatedAt:     now,
	}
}

func ChurnRisk(avgRecencyDays float64) float64 {
	return math.Min(100, avgRecencyDays/ChurnHorizonDays*100)
}

func EngagementScore(avgFrequency, avgRecencyDays float64) float64 {
	return math.Max(0, math.Min(100, avgFrequency*10-avgRecencyDays/3))
}
