package indicators

import (
	"trading-core/internal/models"
)

const windowSize = 50

// StreamCalculator computes an IndicatorSet in one pass with constant
// memory. EMA, MACD, RSI and OBV are carried as running state; windowed
// indicators read a ring of the most recent bars.
type StreamCalculator struct {
	n int

	ema12, ema26, signal float64

	rsiChanges       int
	avgGain, avgLoss float64

	obv       float64
	prevClose float64

	window [windowSize]models.Candle
	head   int // index of the oldest bar once the ring is full

	trueRanges [ATRPeriod]float64
	trHead     int
	trCount    int
}

// NewStreamCalculator returns an empty calculator.
func NewStreamCalculator() *StreamCalculator {
	return &StreamCalculator{}
}

// Push feeds the next bar in chronological order.
func (s *StreamCalculator) Push(c models.Candle) error {
	if !finite(c.Open, c.High, c.Low, c.Close) {
		return ErrNonFinite
	}

	fastAlpha := 2.0 / float64(MACDFast+1)
	slowAlpha := 2.0 / float64(MACDSlow+1)
	signalAlpha := 2.0 / float64(MACDSignal+1)

	if s.n == 0 {
		s.ema12 = c.Close
		s.ema26 = c.Close
		s.signal = 0
	} else {
		s.ema12 = fastAlpha*c.Close + (1-fastAlpha)*s.ema12
		s.ema26 = slowAlpha*c.Close + (1-slowAlpha)*s.ema26
		s.signal = signalAlpha*(s.ema12-s.ema26) + (1-signalAlpha)*s.signal

		s.pushChange(c.Close - s.prevClose)

		switch {
		case c.Close > s.prevClose:
			s.obv += float64(c.Volume)
		case c.Close < s.prevClose:
			s.obv -= float64(c.Volume)
		}

		s.trueRanges[s.trHead] = trueRange(c, s.prevClose)
		s.trHead = (s.trHead + 1) % ATRPeriod
		if s.trCount < ATRPeriod {
			s.trCount++
		}
	}

	if s.n < windowSize {
		s.window[s.n] = c
	} else {
		s.window[s.head] = c
		s.head = (s.head + 1) % windowSize
	}

	s.prevClose = c.Close
	s.n++
	return nil
}

func (s *StreamCalculator) pushChange(change float64) {
	var gain, loss float64
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	s.rsiChanges++
	switch {
	case s.rsiChanges < RSIPeriod:
		s.avgGain += gain
		s.avgLoss += loss
	case s.rsiChanges == RSIPeriod:
		s.avgGain = (s.avgGain + gain) / float64(RSIPeriod)
		s.avgLoss = (s.avgLoss + loss) / float64(RSIPeriod)
	default:
		s.avgGain = (s.avgGain*float64(RSIPeriod-1) + gain) / float64(RSIPeriod)
		s.avgLoss = (s.avgLoss*float64(RSIPeriod-1) + loss) / float64(RSIPeriod)
	}
}

// Len returns the number of bars pushed.
func (s *StreamCalculator) Len() int {
	return s.n
}

// recent returns the buffered bars oldest first.
func (s *StreamCalculator) recent() []models.Candle {
	if s.n < windowSize {
		return s.window[:s.n]
	}
	out := make([]models.Candle, 0, windowSize)
	out = append(out, s.window[s.head:]...)
	return append(out, s.window[:s.head]...)
}

// Snapshot returns the indicator values for the bars pushed so far.
func (s *StreamCalculator) Snapshot() models.IndicatorSet {
	bars := s.recent()
	closes := closePrices(bars)

	set := models.IndicatorSet{
		SMA20: SMA(closes, BollingerPeriod),
		SMA50: SMA(closes, windowSize),
		RSI14: neutralRSI,
		OBV:   s.obv,
	}
	if s.n > 0 {
		set.EMA12 = s.ema12
		set.EMA26 = s.ema26
	}
	if s.rsiChanges >= RSIPeriod {
		set.RSI14 = rsiFromAverages(s.avgGain, s.avgLoss)
	}
	if s.n >= MACDSlow {
		set.MACD = s.ema12 - s.ema26
		set.MACDSignal = s.signal
		set.MACDHist = set.MACD - set.MACDSignal
	}

	k := stochasticK(bars, StochasticPeriod)
	set.StochK, set.StochD = k, k

	bb := Bollinger(closes, BollingerPeriod, BollingerStdDev)
	set.BBUpper, set.BBMiddle, set.BBLower = bb.Upper, bb.Middle, bb.Lower

	if s.trCount < ATRPeriod {
		// fewer than period+1 bars, so every close is still buffered
		set.ATR14 = stdDev(closes)
	} else {
		var total float64
		for i := 0; i < ATRPeriod; i++ {
			total += s.trueRanges[(s.trHead+i)%ATRPeriod]
		}
		set.ATR14 = total / float64(ATRPeriod)
	}

	return set
}

// ComputeFast runs the streaming calculator over candles.
func ComputeFast(candles []models.Candle) (models.IndicatorSet, error) {
	calc := NewStreamCalculator()
	for _, c := range candles {
		if err := calc.Push(c); err != nil {
			return models.IndicatorSet{}, err
		}
	}
	set := calc.Snapshot()
	if !setFinite(set) {
		return models.IndicatorSet{}, ErrNonFinite
	}
	return set, nil
}
