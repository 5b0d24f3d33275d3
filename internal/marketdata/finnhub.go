package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"trading-core/internal/logging"
	"trading-core/internal/models"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

// FinnhubProvider serves quotes and daily candles from the Finnhub REST API.
type FinnhubProvider struct {
	client  *resty.Client
	token   string
	limiter *rate.Limiter
	logger  zerolog.Logger
	now     func() time.Time
}

var (
	_ QuoteProvider   = (*FinnhubProvider)(nil)
	_ HistoryProvider = (*FinnhubProvider)(nil)
)

// NewFinnhubProvider creates a Finnhub client. An empty BaseURL uses the public API.
func NewFinnhubProvider(token string, cfg HTTPConfig, logger zerolog.Logger) *FinnhubProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = finnhubBaseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}
	return &FinnhubProvider{
		client:  newRestClient(cfg),
		token:   token,
		limiter: limiter,
		logger:  logger.With().Str("provider", "finnhub").Logger(),
		now:     time.Now,
	}
}

func (p *FinnhubProvider) Name() string { return "finnhub" }

type finnhubQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

type finnhubCandles struct {
	Status string    `json:"s"`
	Close  []float64 `json:"c"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Open   []float64 `json:"o"`
	Time   []int64   `json:"t"`
	Volume []float64 `json:"v"`
}

// Quote fetches the latest quote. Finnhub answers unknown symbols with an
// all-zero payload, which is reported as no data.
func (p *FinnhubProvider) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	var out finnhubQuote
	if err := p.get(ctx, "quote", symbol, "/quote", map[string]string{"symbol": symbol}, &out); err != nil {
		return nil, err
	}
	if out.Current == 0 && out.Timestamp == 0 {
		return nil, noData(p.Name(), "quote", symbol)
	}
	return &models.Quote{
		Symbol:        symbol,
		Current:       out.Current,
		Open:          out.Open,
		High:          out.High,
		Low:           out.Low,
		PreviousClose: out.PreviousClose,
		Change:        out.Change,
		ChangePercent: out.ChangePercent,
		Timestamp:     time.Unix(out.Timestamp, 0).UTC(),
	}, nil
}

// History fetches daily candles covering the last days calendar days.
func (p *FinnhubProvider) History(ctx context.Context, symbol string, days int) ([]models.Candle, error) {
	to := p.now()
	from := to.AddDate(0, 0, -days)
	params := map[string]string{
		"symbol":     symbol,
		"resolution": "D",
		"from":       fmt.Sprint(from.Unix()),
		"to":         fmt.Sprint(to.Unix()),
	}

	var out finnhubCandles
	if err := p.get(ctx, "candles", symbol, "/stock/candle", params, &out); err != nil {
		return nil, err
	}
	if out.Status != "ok" || len(out.Close) == 0 {
		return nil, noData(p.Name(), "candles", symbol)
	}

	n := min(len(out.Close), len(out.Open), len(out.High), len(out.Low), len(out.Time))
	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		var vol int64
		if i < len(out.Volume) {
			vol = int64(out.Volume[i])
		}
		candles[i] = models.Candle{
			Timestamp: time.Unix(out.Time[i], 0).UTC(),
			Open:      out.Open[i],
			High:      out.High[i],
			Low:       out.Low[i],
			Close:     out.Close[i],
			Volume:    vol,
		}
	}
	return candles, nil
}

func (p *FinnhubProvider) get(ctx context.Context, op, symbol, path string, params map[string]string, result interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("finnhub rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("token", p.token).
		SetResult(result).
		Get(path)
	logging.LogAPICall(p.logger, "GET", path, time.Since(start), err)

	return classifyResponse(p.Name(), op, symbol, resp, err)
}
