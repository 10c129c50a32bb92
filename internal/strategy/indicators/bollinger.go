package indicators

import "math"

// StdDev computes the population standard deviation over the trailing length values.
// Indices before length-1 are undefined.
func StdDev(values []float64, length int) Series {
	out := undefinedSeries(len(values))
	if length <= 0 {
		return out
	}
	for i := length - 1; i < len(values); i++ {
		window := values[i-length+1 : i+1]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(length)

		variance := 0.0
		for _, v := range window {
			variance += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(variance / float64(length))
	}
	return out
}

// Bands is a Bollinger envelope around a simple moving average.
type Bands struct {
	Upper Series
	Basis Series
	Lower Series
}

// Bollinger computes basis = SMA(length) and basis ± mult*StdDev(length).
func Bollinger(values []float64, length int, mult float64) Bands {
	basis := SMA(values, length)
	dev := StdDev(values, length)
	upper := make(Series, len(values))
	lower := make(Series, len(values))
	for i := range values {
		// NaN propagates through the arithmetic for warm-up positions.
		upper[i] = basis[i] + mult*dev[i]
		lower[i] = basis[i] - mult*dev[i]
	}
	return Bands{Upper: upper, Basis: basis, Lower: lower}
}
