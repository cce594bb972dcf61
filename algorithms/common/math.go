package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ACRMS returns the RMS level of data with its DC offset removed, i.e. the
// standard deviation of the samples
func ACRMS(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	_, std := stat.MeanStdDev(data, nil)
	return std
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(floats.Dot(data, data) / float64(len(data)))
}

// DBFS converts a linear amplitude to decibels relative to full scale.
// Amplitudes at or below zero map to floorDB.
func DBFS(amplitude, floorDB float64) float64 {
	if amplitude <= 0 {
		return floorDB
	}
	return math.Max(20*math.Log10(amplitude), floorDB)
}

// EnergyPrefix returns cumulative sums of squares: prefix[k] = sum(x[j]^2, j < k).
// The returned slice has len(data)+1 entries so any window energy is
// prefix[end] - prefix[start].
func EnergyPrefix(data []float64) []float64 {
	prefix := make([]float64, len(data)+1)
	for i, v := range data {
		prefix[i+1] = prefix[i] + v*v
	}
	return prefix
}

// Clamp limits v to the closed interval [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// NextPowerOf2 returns the next power of 2 greater than or equal to n
func NextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
