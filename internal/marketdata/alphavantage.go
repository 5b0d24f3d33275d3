package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/logging"
	"trading-core/internal/models"
)

const alphaVantageBaseURL = "https://www.alphavantage.co"

// AlphaVantageProvider serves daily bars from the Alpha Vantage API.
type AlphaVantageProvider struct {
	client  *resty.Client
	apiKey  string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

var _ HistoryProvider = (*AlphaVantageProvider)(nil)

// NewAlphaVantageProvider creates an Alpha Vantage client. An empty BaseURL uses the public API.
func NewAlphaVantageProvider(apiKey string, cfg HTTPConfig, logger zerolog.Logger) *AlphaVantageProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = alphaVantageBaseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}
	return &AlphaVantageProvider{
		client:  newRestClient(cfg),
		apiKey:  apiKey,
		limiter: limiter,
		logger:  logger.With().Str("provider", "alphavantage").Logger(),
	}
}

func (p *AlphaVantageProvider) Name() string { return "alphavantage" }

type alphaVantageBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

type alphaVantageDaily struct {
	Series       map[string]alphaVantageBar `json:"Time Series (Daily)"`
	ErrorMessage string                     `json:"Error Message"`
	Note         string                     `json:"Note"`
	Information  string                     `json:"Information"`
}

// History fetches the compact daily series and keeps the last days bars.
func (p *AlphaVantageProvider) History(ctx context.Context, symbol string, days int) ([]models.Candle, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("alphavantage rate limiter: %w", err)
	}

	outputSize := "compact"
	if days > 100 {
		outputSize = "full"
	}

	var out alphaVantageDaily
	start := time.Now()
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function":   "TIME_SERIES_DAILY",
			"symbol":     symbol,
			"outputsize": outputSize,
			"apikey":     p.apiKey,
		}).
		SetResult(&out).
		Get("/query")
	logging.LogAPICall(p.logger, "GET", "/query", time.Since(start), err)

	if err := classifyResponse(p.Name(), "daily", symbol, resp, err); err != nil {
		return nil, err
	}
	// throttling is reported in-band with HTTP 200
	if out.Note != "" || out.Information != "" {
		return nil, apperrors.NewTransientError(p.Name(), "daily", fmt.Errorf("throttled: %s%s", out.Note, out.Information))
	}
	if out.ErrorMessage != "" || len(out.Series) == 0 {
		return nil, noData(p.Name(), "daily", symbol)
	}

	candles := make([]models.Candle, 0, len(out.Series))
	for date, bar := range out.Series {
		c, err := parseAlphaVantageBar(date, bar)
		if err != nil {
			p.logger.Debug().Err(err).Str("date", date).Msg("Skipping malformed bar")
			continue
		}
		candles = append(candles, c)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })

	if days > 0 && len(candles) > days {
		candles = candles[len(candles)-days:]
	}
	if len(candles) == 0 {
		return nil, noData(p.Name(), "daily", symbol)
	}
	return candles, nil
}

func parseAlphaVantageBar(date string, bar alphaVantageBar) (models.Candle, error) {
	ts, err := time.Parse("2006-01-02", date)
	if err != nil {
		return models.Candle{}, err
	}
	var vals [4]float64
	for i, s := range []string{bar.Open, bar.High, bar.Low, bar.Close} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Candle{}, err
		}
		vals[i] = v
	}
	vol, _ := strconv.ParseInt(bar.Volume, 10, 64)
	return models.Candle{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vol,
	}, nil
}
