package indicators

// EMA computes an exponential moving average seeded with the first value.
//
// The output is defined from index 0: e[0] = v[0] and
// e[i] = v[i]*k + e[i-1]*(1-k) with k = 2/(length+1).
func EMA(values []float64, length int) Series {
	if length <= 0 {
		return undefinedSeries(len(values))
	}
	out := make(Series, len(values))
	k := 2.0 / float64(length+1)
	var prev float64
	for i, v := range values {
		if i == 0 {
			prev = v
		}
		e := v*k + prev*(1-k)
		out[i] = e
		prev = e
	}
	return out
}

// SMA computes the arithmetic mean of the trailing length values.
// Indices before length-1 are undefined.
func SMA(values []float64, length int) Series {
	out := undefinedSeries(len(values))
	if length <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= length {
			sum -= values[i-length]
		}
		if i >= length-1 {
			out[i] = sum / float64(length)
		}
	}
	return out
}
