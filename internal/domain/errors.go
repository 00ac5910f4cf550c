package domain

import "errors"

// ErrInsufficientData marks series too short or too disjoint to score.
// It degrades the affected feature or symbol; it never aborts a whole cycle.
var ErrInsufficientData = errors.New("insufficient data")
