package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	kitemodels "github.com/zerodha/gokiteconnect/v4/models"

	apperrors "trading-core/internal/errors"
)

func jsonServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestNormalizeSymbol(t *testing.T) {
	s, err := NormalizeSymbol("  aapl ")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", s)

	s, err = NormalizeSymbol("nse:infy")
	require.NoError(t, err)
	assert.Equal(t, "NSE:INFY", s)

	for _, bad := range []string{"", "AAPL$", "THIS-SYMBOL-IS-FAR-TOO-LONG", "A B"} {
		_, err := NormalizeSymbol(bad)
		assert.True(t, apperrors.IsValidation(err), bad)
	}
}

func TestFinnhubProvider_Quote(t *testing.T) {
	server := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		writeJSON(w, http.StatusOK, `{"c":191.5,"d":1.5,"dp":0.79,"h":192,"l":189,"o":190,"pc":190,"t":1704204000}`)
	})

	p := NewFinnhubProvider("secret", HTTPConfig{BaseURL: server.URL}, zerolog.Nop())
	q, err := p.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 191.5, q.Current)
	assert.Equal(t, 190.0, q.PreviousClose)
	assert.Equal(t, int64(1704204000), q.Timestamp.Unix())
}

func TestFinnhubProvider_QuoteUnknownSymbolIsNoData(t *testing.T) {
	server := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`)
	})

	p := NewFinnhubProvider("secret", HTTPConfig{BaseURL: server.URL}, zerolog.Nop())
	_, err := p.Quote(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, apperrors.ErrNoData)
	assert.False(t, apperrors.IsTransient(err))
}

func TestFinnhubProvider_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		server := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, tt.status, `{"error":"nope"}`)
		})
		p := NewFinnhubProvider("secret", HTTPConfig{BaseURL: server.URL}, zerolog.Nop())
		_, err := p.Quote(context.Background(), "AAPL")
		require.Error(t, err)
		assert.Equal(t, tt.transient, apperrors.IsTransient(err), "status %d", tt.status)
		if !tt.transient {
			assert.ErrorIs(t, err, apperrors.ErrNoData)
		}
	}
}

func TestFinnhubProvider_History(t *testing.T) {
	server := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/candle", r.URL.Path)
		assert.Equal(t, "D", r.URL.Query().Get("resolution"))
		writeJSON(w, http.StatusOK, `{"s":"ok","c":[10,11],"h":[10.5,11.5],"l":[9.5,10.5],"o":[9.8,10.2],"t":[1704153600,1704240000],"v":[1000,2000]}`)
	})

	p := NewFinnhubProvider("secret", HTTPConfig{BaseURL: server.URL}, zerolog.Nop())
	candles, err := p.History(context.Background(), "AAPL", 30)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 11.0, candles[1].Close)
	assert.Equal(t, int64(2000), candles[1].Volume)
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))
}

func TestFinnhubProvider_HistoryNoData(t *testing.T) {
	server := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"s":"no_data"}`)
	})

	p := NewFinnhubProvider("secret", HTTPConfig{BaseURL: server.URL}, zerolog.Nop())
	_, err := p.History(context.Background(), "AAPL", 30)
	assert.ErrorIs(t, err, apperrors.ErrNoData)
}

func TestAlphaVantageProvider_History(t *testing.T) {
	server := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		assert.Equal(t, "compact", r.URL.Query().Get("outputsize"))
		writeJSON(w, http.StatusOK, `{"Time Series (Daily)":{
			"2024-01-03":{"1. open":"11","2. high":"12","3. low":"10","4. close":"11.5","5. volume":"300"},
			"2024-01-02":{"1. open":"10","2. high":"11","3. low":"9","4. close":"10.5","5. volume":"200"},
			"2024-01-01":{"1. open":"9","2. high":"10","3. low":"8","4. close":"9.5","5. volume":"100"}}}`)
	})

	p := NewAlphaVantageProvider("key", HTTPConfig{BaseURL: server.URL}, zerolog.Nop())
	candles, err := p.History(context.Background(), "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 10.5, candles[0].Close)
	assert.Equal(t, 11.5, candles[1].Close)
	assert.Equal(t, int64(300), candles[1].Volume)
}

func TestAlphaVantageProvider_ThrottleNoteIsTransient(t *testing.T) {
	server := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`)
	})

	p := NewAlphaVantageProvider("key", HTTPConfig{BaseURL: server.URL}, zerolog.Nop())
	_, err := p.History(context.Background(), "AAPL", 10)
	assert.True(t, apperrors.IsTransient(err))
}

func TestAlphaVantageProvider_InvalidSymbolIsNoData(t *testing.T) {
	server := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"Error Message":"Invalid API call."}`)
	})

	p := NewAlphaVantageProvider("key", HTTPConfig{BaseURL: server.URL}, zerolog.Nop())
	_, err := p.History(context.Background(), "ZZZZ", 10)
	assert.ErrorIs(t, err, apperrors.ErrNoData)
}

func TestSyntheticProvider_Deterministic(t *testing.T) {
	p := NewSyntheticProvider()
	fixed := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	a, err := p.History(context.Background(), "AAPL", 60)
	require.NoError(t, err)
	b, err := p.History(context.Background(), "AAPL", 60)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	short, err := p.History(context.Background(), "AAPL", 20)
	require.NoError(t, err)
	assert.Equal(t, a[40:], short)

	other, err := p.History(context.Background(), "MSFT", 60)
	require.NoError(t, err)
	assert.NotEqual(t, a[59].Close, other[59].Close)

	for _, c := range a {
		assert.GreaterOrEqual(t, c.High, c.Low)
		assert.Greater(t, c.Close, 0.0)
	}
	assert.Equal(t, fixed.Truncate(24*time.Hour), a[59].Timestamp)
}

func TestSyntheticProvider_QuoteMatchesHistory(t *testing.T) {
	p := NewSyntheticProvider()
	q, err := p.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	bars, err := p.History(context.Background(), "AAPL", 100)
	require.NoError(t, err)
	assert.Equal(t, bars[99].Close, q.Current)
	assert.Equal(t, bars[98].Close, q.PreviousClose)
}

type fakeKite struct {
	instruments kiteconnect.Instruments
	history     []kiteconnect.HistoricalData
	err         error
	loads       int
}

func (f *fakeKite) GetQuote(instruments ...string) (kiteconnect.Quote, error) {
	return nil, f.err
}

func (f *fakeKite) GetHistoricalData(token int, interval string, from, to time.Time, continuous, oi bool) ([]kiteconnect.HistoricalData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

func (f *fakeKite) GetInstruments() (kiteconnect.Instruments, error) {
	f.loads++
	return f.instruments, nil
}

func TestKiteProvider_HistoryResolvesInstrumentOnce(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	api := &fakeKite{
		instruments: kiteconnect.Instruments{{InstrumentToken: 408065, Tradingsymbol: "INFY", Exchange: "NSE"}},
		history: []kiteconnect.HistoricalData{
			{Date: kitemodels.Time{Time: day}, Open: 1500, High: 1510, Low: 1490, Close: 1505, Volume: 1000},
		},
	}
	p := newKiteProvider(api, "", zerolog.Nop())

	for i := 0; i < 2; i++ {
		candles, err := p.History(context.Background(), "INFY", 30)
		require.NoError(t, err)
		require.Len(t, candles, 1)
		assert.Equal(t, 1505.0, candles[0].Close)
		assert.Equal(t, int64(1000), candles[0].Volume)
	}
	assert.Equal(t, 1, api.loads)

	_, err := p.History(context.Background(), "UNKNOWN", 30)
	assert.ErrorIs(t, err, apperrors.ErrNoData)
}

func TestKiteProvider_QuoteMissingIsNoData(t *testing.T) {
	p := newKiteProvider(&fakeKite{}, "NSE", zerolog.Nop())
	_, err := p.Quote(context.Background(), "INFY")
	assert.ErrorIs(t, err, apperrors.ErrNoData)
}

func TestClassifyKiteError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		noData    bool
	}{
		{"server", kiteconnect.Error{Code: http.StatusServiceUnavailable, ErrorType: kiteconnect.GeneralError, Message: "down"}, true, false},
		{"throttled", kiteconnect.Error{Code: http.StatusTooManyRequests, ErrorType: kiteconnect.GeneralError, Message: "slow down"}, true, false},
		{"network", kiteconnect.Error{Code: 0, ErrorType: kiteconnect.NetworkError, Message: "reset"}, true, false},
		{"input", kiteconnect.Error{Code: http.StatusBadRequest, ErrorType: kiteconnect.InputError, Message: "bad"}, false, true},
		{"token", kiteconnect.Error{Code: http.StatusForbidden, ErrorType: kiteconnect.TokenError, Message: "expired"}, false, false},
		{"plain", errors.New("dial tcp: refused"), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyKiteError("quote", "INFY", tt.err)
			assert.Equal(t, tt.transient, apperrors.IsTransient(err))
			assert.Equal(t, tt.noData, errors.Is(err, apperrors.ErrNoData))
		})
	}
}
