package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/execution"
	"trading-core/internal/models"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

var t0 = time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)

func buySignal(strategy string, at time.Time) models.TradingSignal {
	return models.TradingSignal{
		Symbol:     "aapl",
		Type:       models.SignalBuy,
		Strategy:   strategy,
		Confidence: 0.7,
		EntryPrice: 100,
		StopLoss:   97,
		TakeProfit: 105,
		Rationale:  "test",
		Timestamp:  at,
	}
}

func TestLedger_RecordAndListSignals(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	id1, err := l.RecordSignal(ctx, buySignal("momentum", t0))
	require.NoError(t, err)
	id2, err := l.RecordSignal(ctx, buySignal("breakout", t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	recs, err := l.Signals(ctx, "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "breakout", recs[0].Strategy)
	assert.Equal(t, "AAPL", recs[0].Symbol)

	recs, err = l.Signals(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = l.Signals(ctx, "MSFT", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLedger_RecordSignalValidates(t *testing.T) {
	l := openTestLedger(t)
	_, err := l.RecordSignal(context.Background(), models.TradingSignal{Symbol: "AAPL"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestLedger_SignalROI(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	id, err := l.RecordSignal(ctx, buySignal("momentum", t0))
	require.NoError(t, err)

	roi, err := l.SignalROI(ctx, id, 106)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, roi.ReturnPct, 1e-9)
	assert.Equal(t, OutcomeTargetHit, roi.Outcome)
	assert.True(t, roi.Won())

	roi, err = l.SignalROI(ctx, id, 96)
	require.NoError(t, err)
	assert.InDelta(t, -4.0, roi.ReturnPct, 1e-9)
	assert.Equal(t, OutcomeStopped, roi.Outcome)

	_, err = l.SignalROI(ctx, id+100, 100)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = l.SignalROI(ctx, id, 0)
	assert.True(t, apperrors.IsValidation(err))
}

func TestEvaluate_SellSignal(t *testing.T) {
	rec := SignalRecord{Symbol: "AAPL", Type: string(models.SignalSell), EntryPrice: 100, StopLoss: 103, TakeProfit: 95}

	roi := Evaluate(rec, 94)
	assert.InDelta(t, 6.0, roi.ReturnPct, 1e-9)
	assert.Equal(t, OutcomeTargetHit, roi.Outcome)

	roi = Evaluate(rec, 104)
	assert.InDelta(t, -4.0, roi.ReturnPct, 1e-9)
	assert.Equal(t, OutcomeStopped, roi.Outcome)

	roi = Evaluate(rec, 99)
	assert.Equal(t, OutcomeOpen, roi.Outcome)
}

func TestLedger_Summarize(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	for i, strat := range []string{"momentum", "momentum", "breakout"} {
		sig := buySignal(strat, t0.Add(time.Duration(i)*time.Minute))
		sig.EntryPrice = 100 + float64(i)*5 // 100, 105, 110
		_, err := l.RecordSignal(ctx, sig)
		require.NoError(t, err)
	}

	summary, err := l.Summarize(ctx, "AAPL", 104)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	byName := map[string]StrategySummary{}
	for _, s := range summary {
		byName[s.Strategy] = s
	}
	m := byName["momentum"]
	assert.Equal(t, 2, m.Signals)
	assert.Equal(t, 1, m.Wins)
	assert.InDelta(t, 0.5, m.WinRate(), 1e-9)
	assert.InDelta(t, (4.0+(104-105)/105.0*100)/2, m.AvgReturnPct, 1e-9)
	assert.Equal(t, 0, byName["breakout"].Wins)
}

func TestLedger_RecordExecutionUpserts(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	var sink execution.Sink = l
	rec := execution.Record{
		OrderID:        "ord-1",
		Symbol:         "AAPL",
		Side:           models.OrderSideBuy,
		Quantity:       10,
		Status:         models.OrderStatusFilled,
		ReferencePrice: 100,
		FillPrice:      100.05,
		Notional:       1000.5,
		SlippageBps:    5,
		LatencyMs:      3,
		SubmittedAt:    t0,
	}
	require.NoError(t, sink.RecordExecution(ctx, rec))

	rec.Status = models.OrderStatusCancelled
	require.NoError(t, sink.RecordExecution(ctx, rec))

	execs, err := l.Executions(ctx, "aapl", 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, string(models.OrderStatusCancelled), execs[0].Status)
	assert.InDelta(t, 5.0, execs[0].SlippageBps, 1e-9)
}

func TestLedger_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	_, err = l.RecordSignal(context.Background(), buySignal("momentum", t0))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Ping(context.Background()))
	recs, err := reopened.Signals(context.Background(), "AAPL", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
