package cli

import (
	"github.com/spf13/cobra"

	"trading-core/internal/trading"
)

func addTradeCommands(rootCmd *cobra.Command, s *session) {
	rootCmd.AddCommand(newTradeCmd(s))
}

func newTradeCmd(s *session) *cobra.Command {
	var (
		qty    float64
		limit  float64
		reason string
		userID string
	)

	cmd := &cobra.Command{
		Use:   "trade ACTION SYMBOL",
		Short: "Submit a trade intent (signal, buy or sell)",
		Long: `Submit a trade intent. The signal action returns signals for SYMBOL.
Buy and sell intents are validated and queued as pending trades awaiting
confirmation; nothing is sent to a broker.`,
		Example: `  trader trade signal AAPL
  trader trade buy AAPL --qty 10 --reason "breakout"
  trader trade sell MSFT --qty 5 --limit 410.50`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if userID == "" {
				userID = s.cfg.Trading.DefaultUser
			}

			result := app.Trading.ExecuteTrade(cmd.Context(), trading.TradeIntent{
				Action:     trading.Action(args[0]),
				Symbol:     args[1],
				Quantity:   qty,
				LimitPrice: limit,
				UserID:     userID,
				Reason:     reason,
			})
			if output.IsJSON() {
				return output.JSON(result)
			}

			if result.Signals != nil {
				renderSignalResult(output, *result.Signals)
				return nil
			}
			output.Printf("%s %s %s  %s\n", output.Cyan(result.Symbol), result.Action,
				FormatQuantity(result.Quantity), output.Status(result.Status))
			if result.OrderID != "" {
				output.Printf("  Order ID: %s\n", result.OrderID)
			}
			if result.Message != "" {
				if result.Status == trading.StatusPending {
					output.Info("  %s", result.Message)
				} else {
					output.Error("  %s", result.Message)
				}
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&qty, "qty", 0, "quantity for buy and sell (optional)")
	cmd.Flags().Float64Var(&limit, "limit", 0, "limit price (0 for market)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the intent")
	cmd.Flags().StringVar(&userID, "user", "", "user id (default: trading.default_user)")
	return cmd
}
