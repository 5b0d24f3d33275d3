package indicators

// Default periods for the trend indicators in an IndicatorSet.
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// SMA returns the simple moving average over the last period values, or over
// the whole series when it is shorter than period. An empty series yields 0.
func SMA(values []float64, period int) float64 {
	return mean(tail(values, period))
}

// EMASeries returns the exponential moving average at every index, seeded
// with the first sample and smoothed with alpha = 2/(period+1).
func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	alpha := 2.0 / float64(period+1)
	result := make([]float64, len(values))
	result[0] = values[0]
	for i := 1; i < len(values); i++ {
		result[i] = alpha*values[i] + (1-alpha)*result[i-1]
	}
	return result
}

// EMA returns the latest exponential moving average, 0 for an empty series.
func EMA(values []float64, period int) float64 {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// MACDResult holds the latest MACD line, signal and histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes EMA12 - EMA26 with an EMA9 signal line. Fewer than 26
// samples yield the zero result.
func MACD(values []float64) MACDResult {
	if len(values) < MACDSlow {
		return MACDResult{}
	}
	fast := EMASeries(values, MACDFast)
	slow := EMASeries(values, MACDSlow)

	line := make([]float64, len(values))
	for i := range values {
		line[i] = fast[i] - slow[i]
	}
	signal := EMASeries(line, MACDSignal)

	last := len(values) - 1
	return MACDResult{
		MACD:      line[last],
		Signal:    signal[last],
		Histogram: line[last] - signal[last],
	}
}
