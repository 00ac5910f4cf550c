// Package rolling provides windowed statistics over daily series. All
// functions are pure and allocation-light; insufficient history and zero
// variance resolve to 0 by contract, never NaN, so downstream scoring can
// sum contributions without sentinel checks.
package rolling

import (
	"errors"
	"math"
)

// ErrInvalidWindow is returned for windows that cannot produce a meaningful
// statistic. This is a programmer error and callers should treat it as fatal.
var ErrInvalidWindow = errors.New("rolling window must be at least 2")

// MeanStd returns the mean and sample standard deviation of values.
// Fewer than two values yield a zero deviation.
func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values) - 1)
	return mean, math.Sqrt(variance)
}

// ZScores computes the rolling z-score of each value against the trailing
// window ending at that value, aligned index-for-index with the input.
// Positions with fewer than window points of history, and windows with zero
// deviation, yield exactly 0.
func ZScores(values []float64, window int) ([]float64, error) {
	if window < 2 {
		return nil, ErrInvalidWindow
	}
	out := make([]float64, len(values))
	for i := window - 1; i < len(values); i++ {
		mean, std := MeanStd(values[i-window+1 : i+1])
		if std == 0 {
			continue
		}
		out[i] = (values[i] - mean) / std
	}
	return out, nil
}

// LastZScore is a convenience for the final point of a series; ok reports
// whether there was enough history to compute it.
func LastZScore(values []float64, window int) (z float64, ok bool, err error) {
	if window < 2 {
		return 0, false, ErrInvalidWindow
	}
	if len(values) < window {
		return 0, false, nil
	}
	zs, err := ZScores(values, window)
	if err != nil {
		return 0, false, err
	}
	return zs[len(zs)-1], true, nil
}

// Returns computes simple periodic returns, one shorter than the input.
// Non-positive prices produce a 0 return rather than an infinity.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 {
			continue
		}
		out[i-1] = (prices[i] - prev) / prev
	}
	return out
}

// Volatility computes the rolling annualized volatility of a return series:
// the sample deviation over the trailing window scaled by √periodsPerYear.
// Aligned with the input; positions with insufficient history are 0.
func Volatility(returns []float64, window int, periodsPerYear float64) ([]float64, error) {
	if window < 2 {
		return nil, ErrInvalidWindow
	}
	out := make([]float64, len(returns))
	scale := math.Sqrt(periodsPerYear)
	for i := window - 1; i < len(returns); i++ {
		_, std := MeanStd(returns[i-window+1 : i+1])
		out[i] = std * scale
	}
	return out, nil
}
