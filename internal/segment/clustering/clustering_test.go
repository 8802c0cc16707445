package clustering

import (
	"testing"
	"time"

	customerdomain "github.com/apipatb/earning-sub011/internal/customer/domain"
	"github.com/apipatb/earning-sub011/internal/segment/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := now.Add(-time.Duration(n)*24*time.Hour - time.Hour)
	return &t
}

func TestRecencyDays(t *testing.T) {
	assert.Equal(t, float64(NeverPurchased), RecencyDays(nil, now))
	assert.Equal(t, 3.0, RecencyDays(daysAgo(3), now))

	future := now.Add(time.Hour)
	assert.Equal(t, 0.0, RecencyDays(&future, now))
}

func TestExtractFeatureVectors(t *testing.T) {
	customers := []customerdomain.Activity{
		{ID: 1, CreatedAt: now.AddDate(0, 0, -40), TotalPurchases: 300, PurchaseCount: 3, TotalQuantity: 7, LastPurchaseAt: daysAgo(5), TicketCount: 2, OpenTicketCount: 1, InvoiceCount: 4},
		{ID: 2, CreatedAt: now.AddDate(0, 0, -10)},
	}

	rfm, err := Extract(domain.MLTypeRFM, customers, now)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{1, 2}, rfm.IDs)
	assert.Equal(t, []float64{5, 3, 300}, rfm.Rows[0])
	assert.Equal(t, []float64{NeverPurchased, 0, 0}, rfm.Rows[1])

	behavioral, err := Extract(domain.MLTypeBehavioral, customers, now)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 100, 1, 7}, behavioral.Rows[0])
	assert.Equal(t, []float64{0, 0, 0, 0}, behavioral.Rows[1])

	engagement, err := Extract(domain.MLTypeEngagement, customers, now)
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 3, 2, 4, 5}, engagement.Rows[0])
	assert.Equal(t, []float64{10, 0, 0, 0, NeverPurchased}, engagement.Rows[1])

	_, err = Extract("psychographic", customers, now)
	assert.ErrorIs(t, err, domain.ErrInvalidMLConfig)
}

func TestNormalizeBounds(t *testing.T) {
	rows := [][]float64{
		{999, 1, 50},
		{3, 12, 12000},
		{40, 4, 900},
		{7, 7, -20},
	}

	out := Normalize(rows)
	require.Len(t, out, len(rows))
	for _, row := range out {
		for _, v := range row {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
	assert.Equal(t, 1.0, out[0][0])
	assert.Equal(t, 0.0, out[1][0])
	assert.Equal(t, 999.0, rows[0][0], "input must not be modified")
}

func TestNormalizeConstantColumn(t *testing.T) {
	out := Normalize([][]float64{{5, 1}, {5, 2}, {5, 3}})
	for _, row := range out {
		assert.Equal(t, 0.0, row[0])
	}
	assert.Equal(t, 0.5, out[1][1])
}

func TestNormalizeIsIdempotent(t *testing.T) {
	once := Normalize([][]float64{{1, 10, 3}, {4, 20, 3}, {2, 15, 3}, {9, 11, 3}})
	twice := Normalize(once)
	assert.Equal(t, once, twice)
}

func TestNormalizeEmpty(t *testing.T) {
	assert.Empty(t, Normalize(nil))
}

func TestKMeansSeparatesGroups(t *testing.T) {
	rows := [][]float64{
		{0, 0}, {0.1, 0}, {0, 0.1},
		{1, 1}, {0.9, 1}, {1, 0.9},
	}

	result, err := KMeans(rows, 2, 100)
	require.NoError(t, err)
	require.Len(t, result.Centroids, 2)

	first := result.Assignments[0]
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, result.Assignments[i])
	}
	for i := 3; i < 6; i++ {
		assert.NotEqual(t, first, result.Assignments[i])
	}
	assert.InDelta(t, 0.0333, result.Centroids[first][0], 0.001)
}

func TestKMeansIsDeterministic(t *testing.T) {
	rows := [][]float64{{0.2, 0.4}, {0.9, 0.1}, {0.5, 0.5}, {0.1, 0.8}, {0.7, 0.7}}
	a, err := KMeans(rows, 3, 100)
	require.NoError(t, err)
	b, err := KMeans(rows, 3, 100)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKMeansMoreClustersThanPoints(t *testing.T) {
	rows := [][]float64{{0, 0}, {0, 0}, {1, 1}}

	result, err := KMeans(rows, 5, 100)
	require.NoError(t, err)
	require.Len(t, result.Centroids, 5)

	used := map[int]int{}
	for _, c := range result.Assignments {
		used[c]++
	}
	assert.Len(t, used, 2)
}

func TestKMeansIterationCap(t *testing.T) {
	rows := [][]float64{{0}, {1}, {2}, {10}, {11}, {12}}
	result, err := KMeans(rows, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Iterations)
}

func TestKMeansRejectsInvalidK(t *testing.T) {
	_, err := KMeans([][]float64{{1}}, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidK)

	result, err := KMeans(nil, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, result.Assignments)
}

func TestSelectHighestMonetaryCluster(t *testing.T) {
	ds := Dataset{
		IDs: []snowflake.ID{1, 2, 3, 4, 5, 6},
		Rows: [][]float64{
			{1, 1, 40}, {1, 1, 60},
			{1, 1, 150}, {1, 1, 250},
			{1, 1, 10}, {1, 1, 10},
		},
	}
	result := Result{
		Assignments: []int{0, 0, 1, 1, 2, 2},
		Centroids:   [][]float64{{0}, {0}, {0}},
	}

	sel := Select(domain.MLTypeRFM, ds, result)

	assert.Equal(t, 1, sel.Cluster)
	assert.Equal(t, []float64{50, 200, 10}, sel.Averages)
	assert.Equal(t, []snowflake.ID{3, 4}, sel.MemberIDs)
	assert.Len(t, sel.Centroids, 3)
}

func TestSelectTiesAndEmptyClusters(t *testing.T) {
	ds := Dataset{
		IDs:  []snowflake.ID{1, 2},
		Rows: [][]float64{{5, 0, 0, 0}, {5, 0, 0, 0}},
	}
	sel := Select(domain.MLTypeBehavioral, ds, Result{
		Assignments: []int{1, 2},
		Centroids:   [][]float64{{0}, {0}, {0}},
	})
	assert.Equal(t, 1, sel.Cluster)
	assert.Equal(t, []snowflake.ID{1}, sel.MemberIDs)

	empty := Select(domain.MLTypeRFM, Dataset{}, Result{Centroids: [][]float64{{0}, {0}}})
	assert.Equal(t, -1, empty.Cluster)
	assert.Empty(t, empty.MemberIDs)
}

func TestSelectEngagementSumsSignals(t *testing.T) {
	ds := Dataset{
		IDs: []snowflake.ID{1, 2},
		Rows: [][]float64{
			{400, 1, 1, 1, 5},
			{1, 2, 2, 2, 999},
		},
	}
	sel := Select(domain.MLTypeEngagement, ds, Result{
		Assignments: []int{0, 1},
		Centroids:   [][]float64{{0}, {0}},
	})
	assert.Equal(t, 1, sel.Cluster)
	assert.Equal(t, []float64{3, 6}, sel.Averages)
}

func TestRunFindsHighValueCustomers(t *testing.T) {
	customers := make([]customerdomain.Activity, 0, 30)
	for i := 0; i < 25; i++ {
		customers = append(customers, customerdomain.Activity{
			ID:             snowflake.ID(i + 1),
			CreatedAt:      now.AddDate(-1, 0, 0),
			TotalPurchases: float64(50 + i*4),
			PurchaseCount:  int64(1 + i%3),
			LastPurchaseAt: daysAgo(10 + i*2),
		})
	}
	for i := 0; i < 5; i++ {
		customers = append(customers, customerdomain.Activity{
			ID:             snowflake.ID(100 + i),
			CreatedAt:      now.AddDate(-1, 0, 0),
			TotalPurchases: float64(20000 + i*500),
			PurchaseCount:  int64(20 + i),
			LastPurchaseAt: daysAgo(2),
		})
	}

	out, err := Run(domain.MLConfig{Type: domain.MLTypeRFM, K: 3}, customers, 100, now)
	require.NoError(t, err)

	assert.Greater(t, len(out.MemberIDs), 0)
	assert.Less(t, len(out.MemberIDs), 30)
	assert.ElementsMatch(t, []snowflake.ID{100, 101, 102, 103, 104}, out.MemberIDs)
}

func TestRunWithoutCustomers(t *testing.T) {
	out, err := Run(domain.MLConfig{Type: domain.MLTypeEngagement, K: 3}, nil, 100, now)
	require.NoError(t, err)
	assert.Empty(t, out.MemberIDs)
	assert.Equal(t, -1, out.Cluster)
}
