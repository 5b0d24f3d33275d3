package preferences

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/models"
)

// Update is a partial change to a preference record. Nil fields are left
// unchanged; a non-nil empty slice clears the list.
type Update struct {
	RiskTolerance             *models.RiskTolerance `json:"risk_tolerance,omitempty"`
	TradingStyle              *models.TradingStyle  `json:"trading_style,omitempty"`
	MaxPositionSizePct        *float64              `json:"max_position_size_pct,omitempty"`
	MaxDailyLossPct           *float64              `json:"max_daily_loss_pct,omitempty"`
	MaxDrawdownPct            *float64              `json:"max_drawdown_pct,omitempty"`
	MinRiskRewardRatio        *float64              `json:"min_risk_reward_ratio,omitempty"`
	StopLossPct               *float64              `json:"stop_loss_pct,omitempty"`
	Watchlist                 []string              `json:"watchlist,omitempty"`
	BannedSymbols             []string              `json:"banned_symbols,omitempty"`
	AllowAutonomousTrading    *bool                 `json:"allow_autonomous_trading,omitempty"`
	MaxAutonomousPositionSize *float64              `json:"max_autonomous_position_size,omitempty"`
	ComplianceAcknowledged    *bool                 `json:"compliance_acknowledged,omitempty"`
	RiskDisclosureAccepted    *bool                 `json:"risk_disclosure_accepted,omitempty"`
}

// Set assigns one field from its textual form, as typed on the command line.
// Lists are comma separated.
func (u *Update) Set(field, value string) error {
	value = strings.TrimSpace(value)
	switch field {
	case "risk_tolerance":
		r := models.RiskTolerance(strings.ToLower(value))
		u.RiskTolerance = &r
	case "trading_style":
		s := models.TradingStyle(strings.ToLower(value))
		u.TradingStyle = &s
	case "max_position_size_pct":
		return setFloat(&u.MaxPositionSizePct, field, value)
	case "max_daily_loss_pct":
		return setFloat(&u.MaxDailyLossPct, field, value)
	case "max_drawdown_pct":
		return setFloat(&u.MaxDrawdownPct, field, value)
	case "min_risk_reward_ratio":
		return setFloat(&u.MinRiskRewardRatio, field, value)
	case "stop_loss_pct":
		return setFloat(&u.StopLossPct, field, value)
	case "max_autonomous_position_size":
		return setFloat(&u.MaxAutonomousPositionSize, field, value)
	case "watchlist":
		u.Watchlist = splitSymbols(value)
	case "banned_symbols":
		u.BannedSymbols = splitSymbols(value)
	case "allow_autonomous_trading":
		return setBool(&u.AllowAutonomousTrading, field, value)
	case "compliance_acknowledged":
		return setBool(&u.ComplianceAcknowledged, field, value)
	case "risk_disclosure_accepted":
		return setBool(&u.RiskDisclosureAccepted, field, value)
	default:
		return apperrors.NewValidationError(field, value, "unknown preference field")
	}
	return nil
}

func setFloat(dst **float64, field, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return apperrors.NewValidationError(field, value, "not a number")
	}
	*dst = &f
	return nil
}

func setBool(dst **bool, field, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return apperrors.NewValidationError(field, value, "not a boolean")
	}
	*dst = &b
	return nil
}

func splitSymbols(value string) []string {
	out := []string{}
	for _, s := range strings.Split(value, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.RiskTolerance == nil && u.TradingStyle == nil &&
		u.MaxPositionSizePct == nil && u.MaxDailyLossPct == nil && u.MaxDrawdownPct == nil &&
		u.MinRiskRewardRatio == nil && u.StopLossPct == nil &&
		u.Watchlist == nil && u.BannedSymbols == nil &&
		u.AllowAutonomousTrading == nil && u.MaxAutonomousPositionSize == nil &&
		u.ComplianceAcknowledged == nil && u.RiskDisclosureAccepted == nil
}

// apply merges u into a copy of p.
func (u Update) apply(p *models.TradingPreferences) *models.TradingPreferences {
	next := p.Clone()
	if u.RiskTolerance != nil {
		next.RiskTolerance = *u.RiskTolerance
	}
	if u.TradingStyle != nil {
		next.TradingStyle = *u.TradingStyle
	}
	rp := &next.RiskParameters
	if u.MaxPositionSizePct != nil {
		rp.MaxPositionSizePct = *u.MaxPositionSizePct
	}
	if u.MaxDailyLossPct != nil {
		rp.MaxDailyLossPct = *u.MaxDailyLossPct
	}
	if u.MaxDrawdownPct != nil {
		rp.MaxDrawdownPct = *u.MaxDrawdownPct
	}
	if u.MinRiskRewardRatio != nil {
		rp.MinRiskRewardRatio = *u.MinRiskRewardRatio
	}
	if u.StopLossPct != nil {
		rp.StopLossPct = *u.StopLossPct
	}
	if u.Watchlist != nil {
		next.Watchlist = normalizeSymbols(u.Watchlist)
	}
	if u.BannedSymbols != nil {
		next.BannedSymbols = normalizeSymbols(u.BannedSymbols)
	}
	if u.AllowAutonomousTrading != nil {
		next.AllowAutonomousTrading = *u.AllowAutonomousTrading
	}
	if u.MaxAutonomousPositionSize != nil {
		next.MaxAutonomousPositionSize = *u.MaxAutonomousPositionSize
	}
	if u.ComplianceAcknowledged != nil {
		next.ComplianceAcknowledged = *u.ComplianceAcknowledged
	}
	if u.RiskDisclosureAccepted != nil {
		next.RiskDisclosureAccepted = *u.RiskDisclosureAccepted
	}
	return next
}

func normalizeSymbols(list []string) []string {
	return splitSymbols(strings.Join(list, ","))
}

// changedFields lists the record fields that differ between a and b.
func changedFields(a, b models.PreferencesSnapshot) []string {
	var changed []string
	add := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}
	add("risk_tolerance", a.RiskTolerance != b.RiskTolerance)
	add("trading_style", a.TradingStyle != b.TradingStyle)
	add("max_position_size_pct", a.RiskParameters.MaxPositionSizePct != b.RiskParameters.MaxPositionSizePct)
	add("max_daily_loss_pct", a.RiskParameters.MaxDailyLossPct != b.RiskParameters.MaxDailyLossPct)
	add("max_drawdown_pct", a.RiskParameters.MaxDrawdownPct != b.RiskParameters.MaxDrawdownPct)
	add("min_risk_reward_ratio", a.RiskParameters.MinRiskRewardRatio != b.RiskParameters.MinRiskRewardRatio)
	add("stop_loss_pct", a.RiskParameters.StopLossPct != b.RiskParameters.StopLossPct)
	add("watchlist", !slices.Equal(a.Watchlist, b.Watchlist))
	add("banned_symbols", !slices.Equal(a.BannedSymbols, b.BannedSymbols))
	add("allow_autonomous_trading", a.AllowAutonomousTrading != b.AllowAutonomousTrading)
	add("max_autonomous_position_size", a.MaxAutonomousPositionSize != b.MaxAutonomousPositionSize)
	add("compliance_acknowledged", a.ComplianceAcknowledged != b.ComplianceAcknowledged)
	add("risk_disclosure_accepted", a.RiskDisclosureAccepted != b.RiskDisclosureAccepted)
	return changed
}

// Validate checks a full record against the schema and business rules.
func Validate(p *models.TradingPreferences) error {
	if !p.RiskTolerance.Valid() {
		return apperrors.NewValidationError("risk_tolerance", p.RiskTolerance, "must be conservative, moderate, aggressive or extreme")
	}
	if !p.TradingStyle.Valid() {
		return apperrors.NewValidationError("trading_style", p.TradingStyle, "unknown trading style")
	}
	rp := p.RiskParameters
	for _, pct := range []struct {
		name  string
		value float64
	}{
		{"max_position_size_pct", rp.MaxPositionSizePct},
		{"max_daily_loss_pct", rp.MaxDailyLossPct},
		{"max_drawdown_pct", rp.MaxDrawdownPct},
		{"stop_loss_pct", rp.StopLossPct},
	} {
		if pct.value <= 0 || pct.value > 100 {
			return apperrors.NewValidationError(pct.name, pct.value, "must be in (0, 100]")
		}
	}
	if rp.MinRiskRewardRatio < 0 {
		return apperrors.NewValidationError("min_risk_reward_ratio", rp.MinRiskRewardRatio, "must not be negative")
	}
	if p.MaxAutonomousPositionSize < 0 {
		return apperrors.NewValidationError("max_autonomous_position_size", p.MaxAutonomousPositionSize, "must not be negative")
	}
	if rp.MaxPositionSizePct < rp.MaxDailyLossPct {
		return apperrors.NewValidationError("max_position_size_pct", rp.MaxPositionSizePct,
			fmt.Sprintf("must be at least max_daily_loss_pct (%.2f)", rp.MaxDailyLossPct))
	}
	if p.RiskTolerance == models.RiskConservative && rp.MaxPositionSizePct > 5 {
		return apperrors.NewValidationError("max_position_size_pct", rp.MaxPositionSizePct,
			"conservative risk tolerance allows at most 5%")
	}
	if p.AllowAutonomousTrading {
		if !p.ComplianceAcknowledged || !p.RiskDisclosureAccepted {
			return apperrors.NewValidationError("allow_autonomous_trading", true,
				"requires compliance acknowledgement and risk disclosure acceptance")
		}
		if p.RiskTolerance == models.RiskExtreme {
			return apperrors.NewValidationError("allow_autonomous_trading", true,
				"not permitted with extreme risk tolerance")
		}
	}
	return nil
}
