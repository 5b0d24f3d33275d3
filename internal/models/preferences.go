package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// MaxAuditEntries bounds the audit trail kept on a preference record.
const MaxAuditEntries = 100

// RiskTolerance is the user's appetite for risk.
type RiskTolerance string

const (
	RiskConservative RiskTolerance = "conservative"
	RiskModerate     RiskTolerance = "moderate"
	RiskAggressive   RiskTolerance = "aggressive"
	RiskExtreme      RiskTolerance = "extreme"
)

// Rank orders tolerances from 1 (conservative) to 4 (extreme); 0 if unknown.
func (r RiskTolerance) Rank() int {
	switch r {
	case RiskConservative:
		return 1
	case RiskModerate:
		return 2
	case RiskAggressive:
		return 3
	case RiskExtreme:
		return 4
	}
	return 0
}

// Valid reports whether r is a known tolerance.
func (r RiskTolerance) Valid() bool {
	return r.Rank() > 0
}

// IsHighRisk reports whether r is aggressive or extreme.
func (r RiskTolerance) IsHighRisk() bool {
	return r == RiskAggressive || r == RiskExtreme
}

// ConfidenceFloor is the minimum signal confidence shown at this tolerance.
func (r RiskTolerance) ConfidenceFloor() float64 {
	switch r {
	case RiskConservative:
		return 0.8
	case RiskModerate:
		return 0.6
	}
	return 0
}

// TradingStyle is the user's holding-period preference.
type TradingStyle string

const (
	StyleDayTrading      TradingStyle = "day_trading"
	StyleSwingTrading    TradingStyle = "swing_trading"
	StylePositionTrading TradingStyle = "position_trading"
	StyleScalping        TradingStyle = "scalping"
)

// Valid reports whether s is a known style.
func (s TradingStyle) Valid() bool {
	switch s {
	case StyleDayTrading, StyleSwingTrading, StylePositionTrading, StyleScalping:
		return true
	}
	return false
}

// RiskParameters are percentage-based limits; percentages are 0-100.
type RiskParameters struct {
	MaxPositionSizePct float64 `json:"max_position_size_pct"`
	MaxDailyLossPct    float64 `json:"max_daily_loss_pct"`
	MaxDrawdownPct     float64 `json:"max_drawdown_pct"`
	MinRiskRewardRatio float64 `json:"min_risk_reward_ratio"`
	StopLossPct        float64 `json:"stop_loss_pct"`
}

// PreferencesSnapshot is the state of a record without its audit trail.
type PreferencesSnapshot struct {
	RiskTolerance             RiskTolerance  `json:"risk_tolerance"`
	TradingStyle              TradingStyle   `json:"trading_style"`
	RiskParameters            RiskParameters `json:"risk_parameters"`
	Watchlist                 []string       `json:"watchlist"`
	BannedSymbols             []string       `json:"banned_symbols"`
	AllowAutonomousTrading    bool           `json:"allow_autonomous_trading"`
	MaxAutonomousPositionSize float64        `json:"max_autonomous_position_size"`
	ComplianceAcknowledged    bool           `json:"compliance_acknowledged"`
	RiskDisclosureAccepted    bool           `json:"risk_disclosure_accepted"`
}

// AuditEntry records one accepted preference update.
type AuditEntry struct {
	Timestamp         time.Time           `json:"timestamp"`
	Actor             string              `json:"actor"`
	Reason            string              `json:"reason"`
	ChangedFields     []string            `json:"changed_fields"`
	RiskToleranceFrom RiskTolerance       `json:"risk_tolerance_from,omitempty"`
	RiskToleranceTo   RiskTolerance       `json:"risk_tolerance_to,omitempty"`
	Escalation        bool                `json:"escalation,omitempty"`
	PriorState        PreferencesSnapshot `json:"prior_state"`
}

// IsEscalation reports whether the entry set tolerance to aggressive or
// extreme. Entries written without the Escalation flag count when they
// raised the rank.
func (e AuditEntry) IsEscalation() bool {
	return e.Escalation ||
		(e.RiskToleranceTo.IsHighRisk() && e.RiskToleranceTo.Rank() > e.RiskToleranceFrom.Rank())
}

// Escalates reports whether requesting tolerance to while at from is an
// escalation: a high-risk target at or above the current rank.
func Escalates(from, to RiskTolerance) bool {
	return to.IsHighRisk() && to.Rank() >= from.Rank()
}

// TradingPreferences is the persisted per-user preference record.
type TradingPreferences struct {
	UserID                    string         `json:"user_id"`
	SessionID                 string         `json:"session_id"`
	RiskTolerance             RiskTolerance  `json:"risk_tolerance"`
	TradingStyle              TradingStyle   `json:"trading_style"`
	RiskParameters            RiskParameters `json:"risk_parameters"`
	Watchlist                 []string       `json:"watchlist"`
	BannedSymbols             []string       `json:"banned_symbols"`
	AllowAutonomousTrading    bool           `json:"allow_autonomous_trading"`
	MaxAutonomousPositionSize float64        `json:"max_autonomous_position_size"`
	ComplianceAcknowledged    bool           `json:"compliance_acknowledged"`
	RiskDisclosureAccepted    bool           `json:"risk_disclosure_accepted"`
	AuditTrail                []AuditEntry   `json:"audit_trail"`
	CreatedAt                 time.Time      `json:"created_at"`
	UpdatedAt                 time.Time      `json:"updated_at"`
}

// DefaultPreferences returns the record a user gets on first access.
func DefaultPreferences(userID, sessionID string, now time.Time) *TradingPreferences {
	return &TradingPreferences{
		UserID:        userID,
		SessionID:     sessionID,
		RiskTolerance: RiskModerate,
		TradingStyle:  StyleSwingTrading,
		RiskParameters: RiskParameters{
			MaxPositionSizePct: 5.0,
			MaxDailyLossPct:    2.0,
			MaxDrawdownPct:     10.0,
			MinRiskRewardRatio: 2.0,
			StopLossPct:        2.0,
		},
		Watchlist:     []string{},
		BannedSymbols: []string{},
		AuditTrail:    []AuditEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy.
func (p *TradingPreferences) Clone() *TradingPreferences {
	if p == nil {
		return nil
	}
	c := *p
	c.Watchlist = slices.Clone(p.Watchlist)
	c.BannedSymbols = slices.Clone(p.BannedSymbols)
	c.AuditTrail = make([]AuditEntry, len(p.AuditTrail))
	for i, e := range p.AuditTrail {
		e.ChangedFields = slices.Clone(e.ChangedFields)
		e.PriorState.Watchlist = slices.Clone(e.PriorState.Watchlist)
		e.PriorState.BannedSymbols = slices.Clone(e.PriorState.BannedSymbols)
		c.AuditTrail[i] = e
	}
	return &c
}

// Snapshot returns the record's state without the audit trail.
func (p *TradingPreferences) Snapshot() PreferencesSnapshot {
	return PreferencesSnapshot{
		RiskTolerance:             p.RiskTolerance,
		TradingStyle:              p.TradingStyle,
		RiskParameters:            p.RiskParameters,
		Watchlist:                 slices.Clone(p.Watchlist),
		BannedSymbols:             slices.Clone(p.BannedSymbols),
		AllowAutonomousTrading:    p.AllowAutonomousTrading,
		MaxAutonomousPositionSize: p.MaxAutonomousPositionSize,
		ComplianceAcknowledged:    p.ComplianceAcknowledged,
		RiskDisclosureAccepted:    p.RiskDisclosureAccepted,
	}
}

// AppendAudit adds an entry, evicting the oldest beyond MaxAuditEntries.
func (p *TradingPreferences) AppendAudit(entry AuditEntry) {
	p.AuditTrail = append(p.AuditTrail, entry)
	if over := len(p.AuditTrail) - MaxAuditEntries; over > 0 {
		p.AuditTrail = slices.Clone(p.AuditTrail[over:])
	}
}

// RecentEscalation reports whether an escalation was recorded after since.
func (p *TradingPreferences) RecentEscalation(since time.Time) bool {
	for _, e := range p.AuditTrail {
		if e.Timestamp.After(since) && e.IsEscalation() {
			return true
		}
	}
	return false
}

// IsBanned reports whether symbol is on the banned list.
func (p *TradingPreferences) IsBanned(symbol string) bool {
	return containsSymbol(p.BannedSymbols, symbol)
}

// InWatchlist reports whether symbol is on the watchlist.
func (p *TradingPreferences) InWatchlist(symbol string) bool {
	return containsSymbol(p.Watchlist, symbol)
}

func containsSymbol(list []string, symbol string) bool {
	symbol = strings.ToUpper(symbol)
	for _, s := range list {
		if strings.ToUpper(s) == symbol {
			return true
		}
	}
	return false
}

// TradeValidation is the outcome of checking a proposed trade against preferences.
type TradeValidation struct {
	Symbol        string  `json:"symbol"`
	Allowed       bool    `json:"allowed"`
	RequestedSize float64 `json:"requested_size"`
	AdjustedSize  float64 `json:"adjusted_size"`
	Adjusted      bool    `json:"adjusted"`
	Reason        string  `json:"reason,omitempty"`
}

// ValidateTrade rejects banned symbols and clamps size to the position limit.
func (p *TradingPreferences) ValidateTrade(symbol string, size, portfolioValue float64) TradeValidation {
	v := TradeValidation{
		Symbol:        strings.ToUpper(symbol),
		Allowed:       true,
		RequestedSize: size,
		AdjustedSize:  size,
	}
	if p.IsBanned(symbol) {
		v.Allowed = false
		v.AdjustedSize = 0
		v.Reason = fmt.Sprintf("%s is on the banned symbol list", v.Symbol)
		return v
	}
	limit := p.RiskParameters.MaxPositionSizePct / 100 * portfolioValue
	if portfolioValue > 0 && size > limit {
		v.AdjustedSize = limit
		v.Adjusted = true
		v.Reason = fmt.Sprintf("position size %.2f exceeds %.2f%% of portfolio (%.2f); clamped to %.2f",
			size, p.RiskParameters.MaxPositionSizePct, portfolioValue, limit)
	}
	return v
}
