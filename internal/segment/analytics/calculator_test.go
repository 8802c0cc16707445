package analytics

import (
	"testing"
	"time"

	customerdomain "github.com/apipatb/earning-sub011/internal/customer/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func at(days int) *time.Time {
	t := now.AddDate(0, 0, -days)
	return &t
}

func TestCalculateEmptySegment(t *testing.T) {
	assert.Nil(t, Calculate(1, 2, nil, now))
}

func TestRecentBuyersAreFullyRetained(t *testing.T) {
	members := []customerdomain.Activity{
		{ID: 1, TotalPurchases: 100, PurchaseCount: 2, LastPurchaseAt: at(1)},
		{ID: 2, TotalPurchases: 300, PurchaseCount: 4, LastPurchaseAt: at(9), TicketCount: 3},
	}

	got := Calculate(1, 2, members, now)
	require.NotNil(t, got)

	assert.Equal(t, int64(2), got.TotalMembers)
	assert.Equal(t, 100.0, got.RetentionRate)
	assert.Equal(t, 100.0, got.ConversionRate)
	assert.Equal(t, 400.0, got.TotalLifetimeValue)
	assert.Equal(t, 200.0, got.AvgLifetimeValue)
	assert.Equal(t, 3.0, got.AvgPurchaseFrequency)
	assert.Equal(t, 5.0, got.AvgRecencyDays)
	assert.Equal(t, 1.5, got.AvgTicketCount)
	assert.InDelta(t, 5.0/90*100, got.AvgChurnRisk, 1e-9)
	assert.InDelta(t, 30-5.0/3, got.AvgEngagementScore, 1e-9)
	assert.Equal(t, now, got.LastCalculatedAt)
}

func TestNonPurchasersHaveZeroConversion(t *testing.T) {
	members := []customerdomain.Activity{{ID: 1}, {ID: 2}, {ID: 3}}

	got := Calculate(1, 2, members, now)
	require.NotNil(t, got)

	assert.Equal(t, 0.0, got.ConversionRate)
	assert.Equal(t, 0.0, got.RetentionRate)
	assert.Equal(t, 999.0, got.AvgRecencyDays)
	assert.Equal(t, 100.0, got.AvgChurnRisk)
	assert.Equal(t, 0.0, got.AvgEngagementScore)
}

func TestRetentionWindowBoundary(t *testing.T) {
	members := []customerdomain.Activity{
		{ID: 1, PurchaseCount: 1, LastPurchaseAt: at(RetentionWindowDays)},
		{ID: 2, PurchaseCount: 1, LastPurchaseAt: at(RetentionWindowDays + 1)},
	}

	got := Calculate(1, 2, members, now)
	require.NotNil(t, got)
	assert.Equal(t, 50.0, got.RetentionRate)
	assert.Equal(t, 100.0, got.ConversionRate)
}

func TestScoresAreClamped(t *testing.T) {
	assert.Equal(t, 100.0, ChurnRisk(500))
	assert.Equal(t, 0.0, ChurnRisk(0))
	assert.Equal(t, 100.0, EngagementScore(50, 0))
	assert.Equal(t, 0.0, EngagementScore(0, 300))
}
