package indicators

// MACDResult holds the three aligned MACD outputs.
type MACDResult struct {
	Line   Series
	Signal Series
	Hist   Series
}

// MACD computes line = EMA(fast) - EMA(slow), signal = EMA(line, signal)
// and hist = line - signal, all defined from index 0.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	efast := EMA(closes, fast)
	eslow := EMA(closes, slow)

	line := make(Series, len(closes))
	for i := range closes {
		line[i] = efast[i] - eslow[i]
	}
	sig := EMA(line, signal)

	hist := make(Series, len(closes))
	for i := range closes {
		hist[i] = line[i] - sig[i]
	}
	return MACDResult{Line: line, Signal: sig, Hist: hist}
}
