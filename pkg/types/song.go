package types

import (
	"fmt"
	"math"
	"strconv"
)

// Song is a single catalogue entry as served to clients.
type Song struct {
	ID         string    `json:"_id"`
	Artist     string    `json:"artist"`
	Title      string    `json:"title"`
	Difficulty float64   `json:"difficulty"`
	Level      float64   `json:"level"`
	Released   string    `json:"released"`
	Ratings    []float64 `json:"ratings,omitempty"`
}

// RatingStats summarises the ratings of one song.
type RatingStats struct {
	Average float64 `json:"average_rating"`
	Lowest  float64 `json:"lowest_rating"`
	Highest float64 `json:"highest_rating"`
}

// DifficultyFilter selects the songs an average difficulty is computed over.
// The zero value is not meaningful; use AllLevels or MinLevel.
type DifficultyFilter struct {
	All bool
	Min float64
}

// AllLevels is the "no filter" sentinel. It never equals a numeric threshold,
// including zero.
func AllLevels() DifficultyFilter {
	return DifficultyFilter{All: true}
}

// MinLevel returns a greater-or-equal filter. Negative zero is folded into zero
// so that equal thresholds always produce equal keys.
func MinLevel(threshold float64) DifficultyFilter {
	if threshold == 0 {
		threshold = 0
	}
	return DifficultyFilter{Min: threshold}
}

// Label is the human readable description returned alongside the average.
func (f DifficultyFilter) Label() string {
	if f.All {
		return "All levels"
	}
	whole := math.Trunc(f.Min)
	if whole == 0 {
		whole = 0
	}
	return fmt.Sprintf("Level %s and above", strconv.FormatFloat(whole, 'f', 0, 64))
}

func (f DifficultyFilter) String() string {
	if f.All {
		return "all"
	}
	return fmt.Sprintf(">=%g", f.Min)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
