package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"trading-core/internal/marketdata"
	"trading-core/internal/models"
)

func addExecutionCommands(rootCmd *cobra.Command, s *session) {
	rootCmd.AddCommand(newRebalanceCmd(s))
}

func newRebalanceCmd(s *session) *cobra.Command {
	var targetArgs []string

	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Move the paper portfolio to target positions",
		Long: `Price each target symbol from market data, build the order plan that
moves the paper broker's positions to the targets and execute it. Fills,
slippage and latency are recorded in the ledger and the audit journal.`,
		Example: `  trader rebalance --target AAPL=10,MSFT=5
  trader rebalance --target AAPL=10 --target NVDA=3 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseTargets(targetArgs)
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return fmt.Errorf("at least one --target is required")
			}

			app, err := s.App()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			ctx := cmd.Context()

			prices := make(map[string]float64, len(targets))
			for sym := range targets {
				snap, err := app.Market.GetRealTimeData(ctx, sym)
				if err != nil {
					app.Logger.Warn().Err(err).Str("symbol", sym).Msg("No price for target, broker default applies")
					continue
				}
				prices[sym] = snap.Quote.Current
				app.Broker.UpdateMarketPrice(sym, snap.Quote.Current)
			}

			results, execErr := app.Router.Rebalance(ctx, targets, prices)
			stats := app.Monitor.Stats()
			value, _ := app.Broker.PortfolioValue(ctx)

			if output.IsJSON() {
				if err := output.JSON(map[string]interface{}{
					"orders":          results,
					"execution":       stats,
					"portfolio_value": value,
				}); err != nil {
					return err
				}
				return execErr
			}

			renderOrders(output, results)
			output.Println()
			output.Printf("Filled %d/%d  notional %s  avg slippage %.1f bps  avg latency %.1f ms\n",
				stats.OrdersFilled, stats.OrdersSubmitted, FormatCurrency(stats.Notional),
				stats.AvgSlippageBps, stats.AvgLatencyMs)
			output.Printf("Portfolio value: %s\n", FormatCurrency(value))
			if execErr != nil {
				output.Warning("Some orders failed: %v", execErr)
			}
			return execErr
		},
	}

	cmd.Flags().StringArrayVar(&targetArgs, "target", nil, "target position SYMBOL=QTY (repeatable, comma separated)")
	return cmd
}

func renderOrders(output *Output, results []models.OrderResult) {
	if len(results) == 0 {
		output.Dim("Already at target, no orders")
		return
	}
	table := NewTable(output, "ORDER", "SYMBOL", "SIDE", "QTY", "REF", "FILL", "STATUS")
	for _, r := range results {
		status := string(r.Status)
		switch r.Status {
		case models.OrderStatusFilled:
			status = output.Green(status)
		case models.OrderStatusRejected:
			status = output.Red(status + " " + r.Reason)
		}
		table.AddRow(
			TruncateString(r.OrderID, 8),
			r.Symbol,
			string(r.Side),
			FormatQuantity(r.Quantity),
			FormatPrice(r.ReferencePrice),
			FormatPrice(r.AvgFillPrice),
			status,
		)
	}
	table.Render()
}

// parseTargets reads SYMBOL=QTY pairs given as separate values or comma
// separated.
func parseTargets(pairs []string) (map[string]float64, error) {
	targets := make(map[string]float64)
	for _, raw := range pairs {
		for _, pair := range strings.Split(raw, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			symbol, qty, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("invalid target %q (want SYMBOL=QTY)", pair)
			}
			sym, err := marketdata.NormalizeSymbol(symbol)
			if err != nil {
				return nil, err
			}
			q, err := strconv.ParseFloat(strings.TrimSpace(qty), 64)
			if err != nil || q < 0 {
				return nil, fmt.Errorf("invalid quantity in %q", pair)
			}
			targets[sym] = q
		}
	}
	return targets, nil
}
