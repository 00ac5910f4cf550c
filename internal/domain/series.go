package domain

import (
	"sort"
	"time"
)

// Point is one observation in a daily time series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series is an ordered sequence of observations. Irregular gaps (market
// holidays) are allowed; series are treated as immutable once fetched.
type Series []Point

// Sorted returns a copy ordered by ascending timestamp.
func (s Series) Sorted() Series {
	out := make(Series, len(s))
	copy(out, s)
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Values returns the raw values in series order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Value
	}
	return out
}

// Last returns the most recent point, or false when the series is empty.
func (s Series) Last() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// Before returns the prefix of points with timestamps at or before cutoff.
// Assumes ascending order.
func (s Series) Before(cutoff time.Time) Series {
	i := sort.Search(len(s), func(i int) bool { return s[i].Time.After(cutoff) })
	return s[:i]
}
