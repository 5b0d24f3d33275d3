package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/logging"
	"trading-core/internal/models"
)

// kiteAPI is the subset of the Kite Connect client the provider uses.
type kiteAPI interface {
	GetQuote(instruments ...string) (kiteconnect.Quote, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
	GetInstruments() (kiteconnect.Instruments, error)
}

// KiteConfig holds Kite Connect credentials.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	Exchange    string
	HTTPTimeout time.Duration
}

// KiteProvider serves quotes and daily candles from Zerodha Kite Connect.
type KiteProvider struct {
	api      kiteAPI
	exchange string
	logger   zerolog.Logger
	now      func() time.Time

	tokensOnce sync.Once
	tokensErr  error
	tokens     map[string]int
}

var (
	_ QuoteProvider   = (*KiteProvider)(nil)
	_ HistoryProvider = (*KiteProvider)(nil)
)

// NewKiteProvider creates a provider with an authenticated Kite client.
func NewKiteProvider(cfg KiteConfig, logger zerolog.Logger) *KiteProvider {
	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetHTTPClient(&http.Client{Timeout: timeout})
	return newKiteProvider(client, cfg.Exchange, logger)
}

func newKiteProvider(api kiteAPI, exchange string, logger zerolog.Logger) *KiteProvider {
	if exchange == "" {
		exchange = "NSE"
	}
	return &KiteProvider{
		api:      api,
		exchange: exchange,
		logger:   logger.With().Str("provider", "kite").Logger(),
		now:      time.Now,
	}
}

func (p *KiteProvider) Name() string { return "kite" }

// instrument qualifies a bare symbol with the configured exchange.
func (p *KiteProvider) instrument(symbol string) string {
	if strings.Contains(symbol, ":") {
		return symbol
	}
	return p.exchange + ":" + symbol
}

// Quote fetches the latest quote.
func (p *KiteProvider) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := p.instrument(symbol)

	start := time.Now()
	quotes, err := p.api.GetQuote(key)
	logging.LogAPICall(p.logger, "GET", "/quote", time.Since(start), err)
	if err != nil {
		return nil, classifyKiteError("quote", symbol, err)
	}

	q, ok := quotes[key]
	if !ok || q.LastPrice == 0 {
		return nil, noData(p.Name(), "quote", symbol)
	}

	var changePct float64
	if q.OHLC.Close != 0 {
		changePct = q.NetChange / q.OHLC.Close * 100
	}
	return &models.Quote{
		Symbol:        symbol,
		Current:       q.LastPrice,
		Open:          q.OHLC.Open,
		High:          q.OHLC.High,
		Low:           q.OHLC.Low,
		PreviousClose: q.OHLC.Close,
		Change:        q.NetChange,
		ChangePercent: changePct,
		Timestamp:     q.LastTradeTime.Time,
	}, nil
}

// History fetches daily candles covering the last days calendar days.
func (p *KiteProvider) History(ctx context.Context, symbol string, days int) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token, err := p.instrumentToken(symbol)
	if err != nil {
		return nil, err
	}

	to := p.now()
	from := to.AddDate(0, 0, -days)

	start := time.Now()
	data, err := p.api.GetHistoricalData(token, "day", from, to, false, false)
	logging.LogAPICall(p.logger, "GET", "/instruments/historical", time.Since(start), err)
	if err != nil {
		return nil, classifyKiteError("historical", symbol, err)
	}
	if len(data) == 0 {
		return nil, noData(p.Name(), "historical", symbol)
	}

	candles := make([]models.Candle, len(data))
	for i, d := range data {
		candles[i] = models.Candle{
			Timestamp: d.Date.Time,
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    int64(d.Volume),
		}
	}
	return candles, nil
}

// instrumentToken resolves a symbol through the instrument dump, loaded once.
func (p *KiteProvider) instrumentToken(symbol string) (int, error) {
	p.tokensOnce.Do(func() {
		instruments, err := p.api.GetInstruments()
		if err != nil {
			p.tokensErr = classifyKiteError("instruments", symbol, err)
			return
		}
		p.tokens = make(map[string]int, len(instruments))
		for _, inst := range instruments {
			p.tokens[inst.Exchange+":"+inst.Tradingsymbol] = inst.InstrumentToken
		}
	})
	if p.tokensErr != nil {
		return 0, p.tokensErr
	}
	token, ok := p.tokens[p.instrument(symbol)]
	if !ok {
		return 0, noData(p.Name(), "instruments", symbol)
	}
	return token, nil
}

// classifyKiteError treats gateway, server and throttling codes as transient.
func classifyKiteError(op, symbol string, err error) error {
	var kerr kiteconnect.Error
	if errors.As(err, &kerr) {
		if kerr.Code == http.StatusTooManyRequests || kerr.Code >= 500 || kerr.ErrorType == kiteconnect.NetworkError {
			return apperrors.NewTransientError("kite", op, err)
		}
		if kerr.ErrorType == kiteconnect.InputError || kerr.ErrorType == kiteconnect.DataError {
			return apperrors.NewDataError(op, symbol, kerr.Message, apperrors.ErrNoData)
		}
		return fmt.Errorf("kite %s: %w", op, err)
	}
	return apperrors.NewTransientError("kite", op, err)
}
