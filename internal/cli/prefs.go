package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"trading-core/internal/models"
	"trading-core/internal/preferences"
)

func addPreferenceCommands(rootCmd *cobra.Command, s *session) {
	cmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"preferences"},
		Short:   "View and update trading preferences",
	}

	var userID, sessionID string
	cmd.PersistentFlags().StringVar(&userID, "user", "", "user id (default: trading.default_user)")
	cmd.PersistentFlags().StringVar(&sessionID, "session", "cli", "session id")
	user := func() string {
		if userID != "" {
			return userID
		}
		return s.cfg.Trading.DefaultUser
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show a user's preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			prefs, err := app.Preferences.Get(cmd.Context(), sessionID, user())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(prefs)
			}
			renderPreferences(output, prefs)
			return nil
		},
	})

	var reason, actor string
	setCmd := &cobra.Command{
		Use:   "set KEY=VALUE [KEY=VALUE...]",
		Short: "Update preferences",
		Long: `Update one or more preference fields atomically. Keys are the JSON field
names, e.g. risk_tolerance, trading_style, max_position_size_pct,
watchlist (comma separated), allow_autonomous_trading.

Escalating to aggressive or extreme is allowed at most once per 24 hours.`,
		Example: `  trader prefs set risk_tolerance=aggressive --reason "more upside"
  trader prefs set watchlist=AAPL,MSFT banned_symbols=GME`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var update preferences.Update
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("invalid assignment %q (want KEY=VALUE)", arg)
				}
				if err := update.Set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
					return err
				}
			}

			app, err := s.App()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			prefs, err := app.Trading.UpdatePreferences(cmd.Context(), user(), sessionID, update, reason, actor)
			if err != nil {
				output.Error("Update rejected: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(prefs)
			}
			output.Success("Preferences updated for %s", prefs.UserID)
			renderPreferences(output, prefs)
			return nil
		},
	}
	setCmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit trail")
	setCmd.Flags().StringVar(&actor, "actor", "cli", "who made the change")
	cmd.AddCommand(setCmd)

	var limit int
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the preference change history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			prefs, err := app.Preferences.Get(cmd.Context(), sessionID, user())
			if err != nil {
				return err
			}
			trail := prefs.AuditTrail
			if limit > 0 && len(trail) > limit {
				trail = trail[len(trail)-limit:]
			}
			if output.IsJSON() {
				return output.JSON(trail)
			}
			if len(trail) == 0 {
				output.Dim("No changes recorded")
				return nil
			}
			table := NewTable(output, "TIME", "ACTOR", "FIELDS", "RISK", "REASON")
			for _, e := range trail {
				risk := ""
				if e.RiskToleranceTo != "" && e.RiskToleranceFrom != e.RiskToleranceTo {
					risk = fmt.Sprintf("%s -> %s", e.RiskToleranceFrom, e.RiskToleranceTo)
				}
				table.AddRow(
					e.Timestamp.Local().Format("2006-01-02 15:04"),
					e.Actor,
					strings.Join(e.ChangedFields, ","),
					risk,
					TruncateString(e.Reason, 40),
				)
			}
			table.Render()
			return nil
		},
	}
	auditCmd.Flags().IntVar(&limit, "limit", 20, "number of entries (0 for all)")
	cmd.AddCommand(auditCmd)

	rootCmd.AddCommand(cmd)
}

func renderPreferences(output *Output, p *models.TradingPreferences) {
	risk := string(p.RiskTolerance)
	if p.RiskTolerance.IsHighRisk() {
		risk = output.Yellow(risk)
	}
	output.Bold("Preferences: %s", p.UserID)
	output.Printf("  Risk tolerance:        %s (confidence floor %s)\n", risk, FormatConfidence(p.RiskTolerance.ConfidenceFloor()))
	output.Printf("  Trading style:         %s\n", p.TradingStyle)
	rp := p.RiskParameters
	output.Printf("  Max position size:     %.1f%%\n", rp.MaxPositionSizePct)
	output.Printf("  Max daily loss:        %.1f%%\n", rp.MaxDailyLossPct)
	output.Printf("  Max drawdown:          %.1f%%\n", rp.MaxDrawdownPct)
	output.Printf("  Min risk/reward:       %.2f\n", rp.MinRiskRewardRatio)
	output.Printf("  Stop loss:             %.1f%%\n", rp.StopLossPct)
	output.Printf("  Watchlist:             %s\n", listOrNone(p.Watchlist))
	output.Printf("  Banned symbols:        %s\n", listOrNone(p.BannedSymbols))
	output.Printf("  Autonomous trading:    %t (max %s)\n", p.AllowAutonomousTrading, FormatCurrency(p.MaxAutonomousPositionSize))
	output.Printf("  Acknowledgements:      compliance=%t disclosure=%t\n", p.ComplianceAcknowledged, p.RiskDisclosureAccepted)
	output.Dim("  Updated %s, %d audit entries", p.UpdatedAt.Local().Format("2006-01-02 15:04"), len(p.AuditTrail))
}

func listOrNone(list []string) string {
	if len(list) == 0 {
		return "-"
	}
	return strings.Join(list, ", ")
}
