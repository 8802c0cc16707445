package clustering

import (
	"errors"
	"math"
)

var ErrInvalidK = errors.New("invalid_k")

// Result is the outcome of one k-means run. Assignments[i] is the cluster
// of row i. A cluster can end up empty when k exceeds the number of
// distinct rows; its centroid then stays at its seed.
type Result struct {
	Assignments []int
	Centroids   [][]float64
	Iterations  int
}

// KMeans partitions rows into k clusters with Lloyd's algorithm under
// Euclidean distance. Seeding is farthest-first starting at row 0, so the
// result is deterministic for a given input. It stops when no assignment
// changes or after maxIter rounds.
func KMeans(rows [][]float64, k, maxIter int) (Result, error) {
	if k < 1 {
		return Result{}, ErrInvalidK
	}
	if maxIter < 1 {
		maxIter = 1
	}
	if len(rows) == 0 {
		return Result{Assignments: []int{}, Centroids: [][]float64{}}, nil
	}

	centroids := seed(rows, k)
	assignments := make([]int, len(rows))
	for i := range assignments {
		assignments[i] = -1
	}

	iterations := 0
	for iterations < maxIter {
		iterations++
		changed := false
		for i, row := range rows {
			c := nearest(row, centroids)
			if c != assignments[i] {
				assignments[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		recompute(rows, assignments, centroids)
	}

	return Result{
		Assignments: assignments,
		Centroids:   centroids,
		Iterations:  iterations,
	}, nil
}

func seed(rows [][]float64, k int) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(rows[0]))

	minDist := make([]float64, len(rows))
	for i, row := range rows {
		minDist[i] = sqDist(row, centroids[0])
	}

	for len(centroids) < k {
		best := 0
		for i := 1; i < len(rows); i++ {
			if minDist[i] > minDist[best] {
				best = i
			}
		}
		next := clone(rows[best])
		centroids = append(centroids, next)
		for i, row := range rows {
			if d := sqDist(row, next); d < minDist[i] {
				minDist[i] = d
			}
		}
	}
	return centroids
}

// nearest returns the closest centroid, preferring the lower index on ties.
func nearest(row []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(row, centroid); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

func recompute(rows [][]float64, assignments []int, centroids [][]float64) {
	width := len(rows[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, width)
	}
	for i, row := range rows {
		c := assignments[i]
		counts[c]++
		for j, v := range row {
			sums[c][j] += v
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for j := range sums[c] {
			centroids[c][j] = sums[c][j] / float64(counts[c])
		}
	}
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
