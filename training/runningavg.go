package training

import (
	"errors"
)

// ErrEmptyAverage is returned when a running average is read before any
// update.
var ErrEmptyAverage = errors.New("running average has no samples")

// RunningAverage is an online weighted mean accumulator. It is owned by
// a single loop and reset by re-instantiation, once per epoch.
type RunningAverage struct {
	sum   float64
	count float64
}

// NewRunningAverage creates an empty accumulator.
func NewRunningAverage() *RunningAverage {
	return &RunningAverage{}
}

// Update adds a weighted value.
func (r *RunningAverage) Update(value, weight float64) {
	r.sum += value * weight
	r.count += weight
}

// Average returns the weighted mean, or ErrEmptyAverage before the
// first update. It never produces NaN from an empty accumulator.
func (r *RunningAverage) Average() (float64, error) {
	if r.count == 0 {
		return 0, ErrEmptyAverage
	}
	return r.sum / r.count, nil
}

// Count returns the total accumulated weight.
func (r *RunningAverage) Count() float64 {
	return r.count
}
