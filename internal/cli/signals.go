package cli

import (
	"github.com/spf13/cobra"

	"trading-core/internal/trading"
)

func addSignalCommands(rootCmd *cobra.Command, s *session) {
	rootCmd.AddCommand(newSignalsCmd(s))
	rootCmd.AddCommand(newPersonalizedCmd(s))
}

func newSignalsCmd(s *session) *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "signals SYMBOL [SYMBOL...]",
		Short: "Generate trading signals for symbols",
		Long: `Fetch a market snapshot for each symbol, compute indicators and run
every strategy. Use --record to store the signals in the ledger for ROI
tracking.`,
		Example: `  trader signals AAPL
  trader signals AAPL MSFT --record
  trader signals TSLA --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			ctx := cmd.Context()

			results := make([]trading.SignalResult, 0, len(args))
			for _, symbol := range args {
				result := app.Trading.GetSignals(ctx, symbol)
				if record && result.Status == trading.StatusOK {
					for _, sig := range result.Signals {
						if _, err := app.Trading.RecordSignal(ctx, sig); err != nil {
							app.Logger.Warn().Err(err).Str("symbol", sig.Symbol).Msg("Failed to record signal")
						}
					}
				}
				results = append(results, result)
			}

			if output.IsJSON() {
				if len(results) == 1 {
					return output.JSON(results[0])
				}
				return output.JSON(results)
			}
			for i, result := range results {
				if i > 0 {
					output.Println()
				}
				renderSignalResult(output, result)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "record generated signals in the ledger")
	return cmd
}

func newPersonalizedCmd(s *session) *cobra.Command {
	var userID, sessionID string

	cmd := &cobra.Command{
		Use:   "personalized SYMBOL",
		Short: "Generate signals filtered by a user's risk preferences",
		Example: `  trader personalized AAPL
  trader personalized NVDA --user alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if userID == "" {
				userID = s.cfg.Trading.DefaultUser
			}

			result := app.Trading.GetPersonalizedSignals(cmd.Context(), args[0], sessionID, userID)
			if output.IsJSON() {
				return output.JSON(result)
			}

			renderSignalResult(output, result.SignalResult)
			if result.Status != trading.StatusOK {
				return nil
			}
			output.Println()
			output.Bold("Personalization (%s)", result.UserID)
			output.Printf("  Risk tolerance:   %s\n", result.RiskTolerance)
			output.Printf("  Confidence floor: %s\n", FormatConfidence(result.ConfidenceFloor))
			output.Printf("  Filtered out:     %d\n", result.FilteredOut)
			output.Printf("  Fit score:        %.2f\n", result.FitScore)

			v := result.Validation
			switch {
			case !v.Allowed:
				output.Warning("  Trade blocked: %s", v.Reason)
			case v.Adjusted:
				output.Warning("  Default trade size clamped %s -> %s: %s",
					FormatCurrency(v.RequestedSize), FormatCurrency(v.AdjustedSize), v.Reason)
			default:
				output.Printf("  Default trade size %s allowed\n", FormatCurrency(v.AdjustedSize))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (default: trading.default_user)")
	cmd.Flags().StringVar(&sessionID, "session", "cli", "session id")
	return cmd
}

func renderSignalResult(output *Output, r trading.SignalResult) {
	output.Printf("%s  %s\n", output.Cyan(r.Symbol), output.Status(r.Status))
	if r.Status != trading.StatusOK {
		if r.Error != "" {
			output.Error("  %s", r.Error)
		}
		return
	}

	m := r.Metrics
	output.Dim("  price %s  quote %s  history %s (%d bars)  indicators %s  %.0fms",
		FormatPrice(m.Price), m.DataSource, m.HistorySource, m.Bars, m.IndicatorPath, m.LatencyMs)

	if r.Indicators != nil {
		ind := r.Indicators
		output.Dim("  RSI %.1f  MACD hist %.3f  SMA20 %s  SMA50 %s  ATR %s",
			ind.RSI14, ind.MACDHist, FormatPrice(ind.SMA20), FormatPrice(ind.SMA50), FormatPrice(ind.ATR14))
	}

	if len(r.Signals) == 0 {
		output.Println("  No signals")
		return
	}
	table := NewTable(output, "STRATEGY", "SIGNAL", "CONF", "ENTRY", "STOP", "TARGET", "RATIONALE")
	for _, sig := range r.Signals {
		table.AddRow(
			sig.Strategy,
			output.Signal(sig.Type),
			FormatConfidence(sig.Confidence),
			FormatPrice(sig.EntryPrice),
			FormatPrice(sig.StopLoss),
			FormatPrice(sig.TakeProfit),
			TruncateString(sig.Rationale, 48),
		)
	}
	table.Render()
}
