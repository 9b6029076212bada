package services

import (
	"math"
	"sort"

	"github.com/dipolehq/dipole/internal/models"
)

// ItemStatistics summarizes the normalized responses of one item.
// Distribution is present in discrete mode only: one bucket per scale
// position, counting how many responses normalized back onto it.
type ItemStatistics struct {
	ItemID       string  `json:"item_id"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	Median       float64 `json:"median"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Count        int     `json:"count"`
	Distribution []int   `json:"distribution,omitempty"`
}

// ItemStats computes descriptive statistics over the normalized values of
// one item. values must already be filtered to completed sessions that
// answered the item.
//
// Mean and standard deviation use the population convention (divide by N)
// and are rounded to one decimal. Median, min and max are reported exactly.
// Empty input yields zeroed statistics with count 0 and, in discrete mode,
// an all-zero distribution.
func ItemStats(itemID string, values []float64, mode models.ScaleMode, points int) (*ItemStatistics, error) {
	if mode == models.ModeDiscrete && points <= 0 {
		return nil, NewInvalidConfigurationError("scale points must be positive")
	}
	st := &ItemStatistics{ItemID: itemID, Count: len(values)}
	if mode == models.ModeDiscrete {
		st.Distribution = make([]int, points)
	}
	if len(values) == 0 {
		return st, nil
	}

	// Mean and exact bounds in one pass.
	minV, maxV := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	n := float64(len(values))
	mean := sum / n

	// Population variance (divide by N).
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}

	// Median over a sorted copy; even counts average the two middles and
	// the result is not re-rounded.
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	m := len(sorted) / 2
	if len(sorted)%2 == 0 {
		st.Median = (sorted[m-1] + sorted[m]) / 2
	} else {
		st.Median = sorted[m]
	}

	st.Mean = round1(mean)
	st.StdDev = round1(math.Sqrt(sq / n))
	st.Min = minV
	st.Max = maxV

	// Map values back onto scale positions. Boundary rounding can land
	// outside the valid range; such values stay uncounted rather than
	// faulting.
	if mode == models.ModeDiscrete {
		mid := float64(points-1) / 2
		for _, v := range values {
			idx := int(math.Round((v/50)*mid + mid))
			if idx < 0 || idx >= points {
				continue
			}
			st.Distribution[idx]++
		}
	}
	return st, nil
}
