package clustering

import (
	"github.com/apipatb/earning-sub011/internal/segment/domain"
	"github.com/bwmarrin/snowflake"
)

// signalColumns are the raw feature columns whose sum scores a cluster.
var signalColumns = map[domain.MLType][]int{
	domain.MLTypeRFM:        {2},
	domain.MLTypeBehavioral: {0},
	domain.MLTypeEngagement: {1, 2, 3},
}

// Selection is the chosen cluster and the diagnostics behind the choice.
type Selection struct {
	Cluster   int
	MemberIDs []snowflake.ID
	Averages  []float64
	Sizes     []int
	Centroids [][]float64
}

// Select picks the cluster with the highest average signal, computed on the
// raw (not normalized) rows. Empty clusters are never chosen and ties keep
// the lower cluster index. Cluster is -1 when every cluster is empty.
func Select(t domain.MLType, ds Dataset, result Result) Selection {
	k := len(result.Centroids)
	sel := Selection{
		Cluster:   -1,
		MemberIDs: []snowflake.ID{},
		Averages:  make([]float64, k),
		Sizes:     make([]int, k),
		Centroids: result.Centroids,
	}

	columns := signalColumns[t]
	sums := make([]float64, k)
	for i, c := range result.Assignments {
		if c < 0 || c >= k {
			continue
		}
		sel.Sizes[c]++
		for _, col := range columns {
			sums[c] += ds.Rows[i][col]
		}
	}

	for c := 0; c < k; c++ {
		if sel.Sizes[c] == 0 {
			continue
		}
		sel.Averages[c] = sums[c] / float64(sel.Sizes[c])
		if sel.Cluster == -1 || sel.Averages[c] > sel.Averages[sel.Cluster] {
			sel.Cluster = c
		}
	}

	if sel.Cluster == -1 {
		return sel
	}
	for i, c := range result.Assignments {
		if c == sel.Cluster {
			sel.MemberIDs = append(sel.MemberIDs, ds.IDs[i])
		}
	}
	return sel
}
