package utils

import "math"

// Accuracy returns hits/total as a percentage rounded to two decimals.
// A zero total yields 0.
func Accuracy(hits, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(hits) / float64(total) * 100
	return Round(math.Min(math.Max(pct, 0), 100), 2)
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
