package domain

import (
	"errors"
	"math"
)

// ErrNoScores indicates an aggregation over an empty score set.
var ErrNoScores = errors.New("no scores to aggregate")

// Mean returns the arithmetic mean of scores.
func Mean(scores []float64) (float64, error) {
	if len(scores) == 0 {
		return 0, ErrNoScores
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores)), nil
}

// Spread returns max(scores) - min(scores), or 0 for an empty set.
func Spread(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	return hi - lo
}

// IsFiniteScore reports whether s is usable as a rubric score.
func IsFiniteScore(s float64) bool {
	return !math.IsNaN(s) && !math.IsInf(s, 0)
}
