package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"trading-core/internal/models"
)

// SyntheticProvider generates a reproducible random walk per symbol. It is
// the last link of the history chain and never fails for a valid symbol.
type SyntheticProvider struct {
	now func() time.Time
}

var (
	_ QuoteProvider   = (*SyntheticProvider)(nil)
	_ HistoryProvider = (*SyntheticProvider)(nil)
)

// NewSyntheticProvider creates a synthetic provider.
func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{now: time.Now}
}

func (p *SyntheticProvider) Name() string { return "synthetic" }

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return int64(h.Sum64() & math.MaxInt64)
}

// History returns days daily bars ending today. The walk is generated
// backwards from the most recent close, so a shorter history is always a
// suffix of a longer one for the same symbol.
func (p *SyntheticProvider) History(ctx context.Context, symbol string, days int) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, noData(p.Name(), "history", symbol)
	}

	seed := symbolSeed(symbol)
	rng := rand.New(rand.NewSource(seed))
	closePrice := 50 + float64(seed%45000)/100

	end := p.now().UTC().Truncate(24 * time.Hour)
	candles := make([]models.Candle, days)
	for i := days - 1; i >= 0; i-- {
		drift := rng.NormFloat64() * 0.015
		open := math.Max(closePrice/(1+drift), 0.01)
		spread := math.Abs(rng.NormFloat64()) * 0.005
		candles[i] = models.Candle{
			Timestamp: end.AddDate(0, 0, i-days+1),
			Open:      round2(open),
			High:      round2(math.Max(open, closePrice) * (1 + spread)),
			Low:       round2(math.Min(open, closePrice) * (1 - spread)),
			Close:     round2(closePrice),
			Volume:    100_000 + rng.Int63n(900_000),
		}
		closePrice = open
	}
	return candles, nil
}

// Quote derives a quote from the last two synthetic bars.
func (p *SyntheticProvider) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	bars, err := p.History(ctx, symbol, 2)
	if err != nil {
		return nil, err
	}
	prev, last := bars[0], bars[1]
	change := last.Close - prev.Close
	return &models.Quote{
		Symbol:        symbol,
		Current:       last.Close,
		Open:          last.Open,
		High:          last.High,
		Low:           last.Low,
		PreviousClose: prev.Close,
		Change:        round2(change),
		ChangePercent: change / prev.Close * 100,
		Timestamp:     p.now().UTC(),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
