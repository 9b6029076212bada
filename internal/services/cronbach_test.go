package services

import "testing"

func TestCronbachAlphaPerfectCorrelation(t *testing.T) {
	matrix := [][]float64{
		{-50, -50},
		{0, 0},
		{50, 50},
	}
	if got := CronbachAlpha(matrix); got < 0.999 || got > 1.001 {
		t.Fatalf("CronbachAlpha() = %v, want ~1.0 for identical items", got)
	}
}

func TestCronbachAlphaDegenerateInputs(t *testing.T) {
	if got := CronbachAlpha(nil); got != 0 {
		t.Fatalf("CronbachAlpha(nil) = %v, want 0", got)
	}
	if got := CronbachAlpha([][]float64{{10}, {20}}); got != 0 {
		t.Fatalf("CronbachAlpha(single item) = %v, want 0", got)
	}
	// Identical rows leave the total score without variance.
	flat := [][]float64{{10, 20}, {10, 20}}
	if got := CronbachAlpha(flat); got != 0 {
		t.Fatalf("CronbachAlpha(zero variance) = %v, want 0", got)
	}
	ragged := [][]float64{{1, 2}, {3}}
	if got := CronbachAlpha(ragged); got != 0 {
		t.Fatalf("CronbachAlpha(ragged) = %v, want 0", got)
	}
}

func TestCronbachAlphaStaysInBounds(t *testing.T) {
	matrix := [][]float64{
		{-50, 10, 40},
		{-10, 0, -30},
		{30, -20, 20},
		{50, 40, -10},
	}
	got := CronbachAlpha(matrix)
	if got < 0 || got > 1 {
		t.Fatalf("CronbachAlpha() = %v, out of [0, 1]", got)
	}
}
