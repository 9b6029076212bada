package services

import (
	"math/rand"
	"time"

	"github.com/dipolehq/dipole/internal/models"
)

// ClusterAssignment is one populated cluster in a k-means partition.
// Cluster ids keep their original 0..k-1 numbering, so the list has gaps
// where a cluster ended up empty.
type ClusterAssignment struct {
	Cluster  int       `json:"cluster"`
	Centroid []float64 `json:"centroid"` // coordinate-wise mean, one entry per item in configuration order
	Members  []string  `json:"members"`  // session IDs
	Size     int       `json:"size"`
}

// Clusterer runs k-means over session response vectors. The random source
// drives centroid seeding only; everything after initialization is
// deterministic, so a seeded source makes whole runs reproducible. A
// Clusterer is not safe for concurrent use: its source is stateful.
type Clusterer struct {
	rng *rand.Rand
}

// NewClusterer seeds from the clock; partitions may differ between runs on
// identical data.
func NewClusterer() *Clusterer {
	return &Clusterer{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeededClusterer returns a fully reproducible clusterer.
func NewSeededClusterer(seed int64) *Clusterer {
	return &Clusterer{rng: rand.New(rand.NewSource(seed))}
}

// Cluster partitions completed sessions into at most k clusters over their
// normalized response vectors, one dimension per item with missing
// responses filled by the neutral 0. Fewer completed sessions than k is a
// defined no-op: empty result, no error. Iteration stops at maxIterations
// or as soon as an assignment pass moves no row.
func (c *Clusterer) Cluster(sessions []*models.Session, items []models.ScaleItem, k, maxIterations int) ([]*ClusterAssignment, error) {
	if k <= 0 {
		return nil, NewInvalidConfigurationError("cluster count must be positive")
	}
	if maxIterations <= 0 {
		return nil, NewInvalidConfigurationError("iteration budget must be positive")
	}

	var completed []*models.Session
	for _, s := range sessions {
		if s.Completed() {
			completed = append(completed, s)
		}
	}
	n := len(completed)
	if n < k {
		return []*ClusterAssignment{}, nil
	}

	rows := buildMatrix(completed, items)
	m := len(items)

	// Seed centroids from k distinct rows, chosen without replacement.
	centroids := make([][]float64, k)
	for i, ri := range c.rng.Perm(n)[:k] {
		centroids[i] = append([]float64(nil), rows[ri]...)
	}

	assign := make([]int, n)
	prev := make([]int, n)
	for i := range prev {
		prev[i] = -1
	}
	for iter := 0; iter < maxIterations; iter++ {
		for i, row := range rows {
			assign[i] = nearestCentroid(row, centroids)
		}
		if equalAssignments(assign, prev) {
			break
		}
		copy(prev, assign)

		// Recompute centroids as member means; a cluster that lost all
		// its rows keeps its previous coordinates.
		sums := make([][]float64, k)
		counts := make([]int, k)
		for ci := range sums {
			sums[ci] = make([]float64, m)
		}
		for i, row := range rows {
			ci := assign[i]
			counts[ci]++
			for j, v := range row {
				sums[ci][j] += v
			}
		}
		for ci := 0; ci < k; ci++ {
			if counts[ci] == 0 {
				continue
			}
			for j := 0; j < m; j++ {
				centroids[ci][j] = sums[ci][j] / float64(counts[ci])
			}
		}
	}

	members := make([][]string, k)
	for i, s := range completed {
		ci := assign[i]
		members[ci] = append(members[ci], s.ID)
	}
	out := make([]*ClusterAssignment, 0, k)
	for ci := 0; ci < k; ci++ {
		if len(members[ci]) == 0 {
			continue
		}
		out = append(out, &ClusterAssignment{
			Cluster:  ci,
			Centroid: centroids[ci],
			Members:  members[ci],
			Size:     len(members[ci]),
		})
	}
	return out, nil
}

// buildMatrix turns sessions into dense rows, one column per item in
// configuration order. Unanswered items contribute 0 so every row shares
// the same dimensionality.
func buildMatrix(sessions []*models.Session, items []models.ScaleItem) [][]float64 {
	rows := make([][]float64, len(sessions))
	for i, s := range sessions {
		row := make([]float64, len(items))
		for j, it := range items {
			if r := s.Response(it.ID); r != nil {
				row[j] = r.Normalized
			}
		}
		rows[i] = row
	}
	return rows
}

// nearestCentroid compares squared distances with strict <, so ties keep
// the lower-indexed centroid.
func nearestCentroid(row []float64, centroids [][]float64) int {
	best := 0
	bestDist := squaredDistance(row, centroids[0])
	for ci := 1; ci < len(centroids); ci++ {
		if d := squaredDistance(row, centroids[ci]); d < bestDist {
			best = ci
			bestDist = d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func equalAssignments(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
