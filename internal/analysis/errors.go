// Package analysis derives rates, change events, correlations, trends and
// insights from stored academic performance data. Everything here is pure:
// callers load inputs from storage and persist outputs themselves.
package analysis

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMetricInput = errors.New("invalid metric input")
	ErrInsufficientData   = errors.New("insufficient data")
)

type InvalidMetricInputError struct {
	Enrolled     int
	Passed       int
	Participated int
	Reason       string
}

func (e *InvalidMetricInputError) Error() string {
	return fmt.Sprintf("invalid metric input (enrolled=%d, participated=%d, passed=%d): %s",
		e.Enrolled, e.Participated, e.Passed, e.Reason)
}

func (e *InvalidMetricInputError) Is(target error) bool {
	return target == ErrInvalidMetricInput
}

// InsufficientDataError reports a statistic that could not be computed.
// It is not fatal: callers mark the result and move on.
type InsufficientDataError struct {
	Statistic string
	Need      int
	Have      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need %d, have %d", e.Statistic, e.Need, e.Have)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
