package services

import "github.com/dipolehq/dipole/internal/models"

// ReliabilityReport summarizes internal consistency across a project's
// items. Sessions enter the matrix only when they answered every item;
// alpha is undefined over ragged rows.
type ReliabilityReport struct {
	Alpha        float64 `json:"alpha"`
	ItemCount    int     `json:"item_count"`
	SessionCount int     `json:"session_count"`
}

// CronbachAlpha computes Cronbach's alpha over a [sessions][items] matrix
// of normalized values. Variances are population variances (divide by N),
// so perfectly correlated items score exactly 1. Degenerate inputs (fewer
// than two items, no rows, ragged rows, zero total variance) score 0, and
// results clamp to [0, 1].
func CronbachAlpha(matrix [][]float64) float64 {
	n := len(matrix)
	if n == 0 {
		return 0
	}
	k := len(matrix[0])
	if k < 2 {
		return 0
	}

	itemMeans := make([]float64, k)
	rowTotals := make([]float64, n)
	for i, row := range matrix {
		if len(row) != k {
			return 0
		}
		for j, v := range row {
			itemMeans[j] += v
			rowTotals[i] += v
		}
	}
	for j := range itemMeans {
		itemMeans[j] /= float64(n)
	}

	var sumItemVar float64
	for j := 0; j < k; j++ {
		var sq float64
		for i := 0; i < n; i++ {
			d := matrix[i][j] - itemMeans[j]
			sq += d * d
		}
		sumItemVar += sq / float64(n)
	}

	totalVar := populationVariance(rowTotals)
	if totalVar == 0 {
		return 0
	}

	kf := float64(k)
	alpha := (kf / (kf - 1)) * (1 - sumItemVar/totalVar)
	if alpha < 0 {
		return 0
	}
	if alpha > 1 {
		return 1
	}
	return alpha
}

func populationVariance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(values))
}

// reliabilityMatrix keeps only sessions that answered every item, one row
// per session in item configuration order.
func reliabilityMatrix(sessions []*models.Session, items []models.ScaleItem) [][]float64 {
	rows := make([][]float64, 0, len(sessions))
	for _, sess := range sessions {
		row := make([]float64, len(items))
		complete := true
		for j, item := range items {
			rec := sess.Response(item.ID)
			if rec == nil {
				complete = false
				break
			}
			row[j] = rec.Normalized
		}
		if complete {
			rows = append(rows, row)
		}
	}
	return rows
}
