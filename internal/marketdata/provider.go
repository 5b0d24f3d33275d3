// Package marketdata fetches quotes and daily bars from layered providers and
// merges them with computed indicators into cached snapshots.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/models"
)

// QuoteProvider returns the latest quote for a symbol.
type QuoteProvider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// HistoryProvider returns daily bars for a symbol, oldest first.
type HistoryProvider interface {
	Name() string
	History(ctx context.Context, symbol string, days int) ([]models.Candle, error)
}

// HTTPConfig holds network settings shared by HTTP providers.
type HTTPConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	// RequestsPerSecond paces outgoing calls; zero disables pacing
	RequestsPerSecond float64
	Burst             int
}

func newRestClient(cfg HTTPConfig) *resty.Client {
	connect := cfg.ConnectTimeout
	if connect <= 0 {
		connect = 10 * time.Second
	}
	total := cfg.RequestTimeout
	if total <= 0 {
		total = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
		TLSHandshakeTimeout: connect,
		MaxIdleConnsPerHost: 4,
	}
	return resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTransport(transport).
		SetTimeout(total).
		SetHeader("Accept", "application/json")
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.\-:]{1,20}$`)

// NormalizeSymbol upper-cases and validates a ticker symbol.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(s) {
		return "", apperrors.NewValidationError("symbol", symbol, "must be 1-20 characters of A-Z, 0-9, '.', '-' or ':'")
	}
	return s, nil
}

// classifyResponse maps a transport failure or HTTP status onto the error
// taxonomy: network errors, 429 and 5xx are transient; other 4xx mean no data.
func classifyResponse(provider, op, symbol string, resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return apperrors.NewTransientError(provider, op, err)
	}
	status := resp.StatusCode()
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return apperrors.NewTransientError(provider, op, fmt.Errorf("HTTP %d", status))
	case status >= 400:
		return apperrors.NewDataError(op, symbol, fmt.Sprintf("%s returned HTTP %d", provider, status), apperrors.ErrNoData)
	}
	return nil
}

func noData(provider, op, symbol string) error {
	return apperrors.NewDataError(op, symbol, provider+" has no data", apperrors.ErrNoData)
}
