package trading

import (
	"context"
	"math"

	"trading-core/internal/models"
)

// PersonalizedResult is a SignalResult filtered for one user.
type PersonalizedResult struct {
	SignalResult
	UserID          string                 `json:"user_id"`
	RiskTolerance   models.RiskTolerance   `json:"risk_tolerance"`
	ConfidenceFloor float64                `json:"confidence_floor"`
	FilteredOut     int                    `json:"filtered_out"`
	FitScore        float64                `json:"preference_fit_score"`
	Validation      models.TradeValidation `json:"trade_validation"`
}

// GetPersonalizedSignals loads the user's preferences, pre-validates the
// default trade size and keeps only signals at or above the user's
// confidence floor.
func (s *Service) GetPersonalizedSignals(ctx context.Context, symbol, sessionID, userID string) PersonalizedResult {
	out := PersonalizedResult{UserID: userID}
	if s.prefs == nil {
		out.SignalResult = SignalResult{Status: StatusError, Symbol: symbol, Error: "preferences not configured", Timestamp: s.now().UTC()}
		return out
	}

	prefs, err := s.prefs.Get(ctx, sessionID, userID)
	if err != nil {
		out.SignalResult = SignalResult{Status: statusFor(err), Symbol: symbol, Error: err.Error(), Timestamp: s.now().UTC()}
		return out
	}
	out.RiskTolerance = prefs.RiskTolerance
	out.ConfidenceFloor = prefs.RiskTolerance.ConfidenceFloor()

	portfolioValue := 0.0
	if s.portfolio != nil {
		if v, err := s.portfolio.PortfolioValue(ctx); err == nil {
			portfolioValue = v
		}
	}
	out.Validation = prefs.ValidateTrade(symbol, s.cfg.DefaultTradeSize, portfolioValue)

	out.SignalResult = s.GetSignals(ctx, symbol)
	if out.Status != StatusOK {
		return out
	}
	if !out.Validation.Allowed {
		out.FilteredOut = len(out.Signals)
		out.Signals = []models.TradingSignal{}
		return out
	}

	kept := make([]models.TradingSignal, 0, len(out.Signals))
	for _, sig := range out.Signals {
		if sig.Confidence+1e-9 >= out.ConfidenceFloor {
			kept = append(kept, sig)
		}
	}
	out.FilteredOut = len(out.Signals) - len(kept)
	out.FitScore = FitScore(len(out.Signals), kept, prefs.InWatchlist(out.Symbol))
	out.Signals = kept
	return out
}

// FitScore rates how well the kept signals match a user: the share of
// signals that passed the floor times their mean confidence, plus 0.1 for
// watchlist symbols, capped at 1.
func FitScore(total int, kept []models.TradingSignal, watchlisted bool) float64 {
	if total == 0 || len(kept) == 0 {
		return 0
	}
	var sum float64
	for _, sig := range kept {
		sum += sig.Confidence
	}
	score := float64(len(kept)) / float64(total) * (sum / float64(len(kept)))
	if watchlisted {
		score += 0.1
	}
	return math.Min(1, score)
}
