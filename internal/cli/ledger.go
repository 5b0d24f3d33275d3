package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"trading-core/internal/ledger"
	"trading-core/internal/marketdata"
)

func addLedgerCommands(rootCmd *cobra.Command, s *session) {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect recorded signals, executions and ROI",
	}

	var limit int
	cmd.PersistentFlags().IntVar(&limit, "limit", 20, "maximum rows (0 for all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "signals [SYMBOL]",
		Short: "List recorded signals, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := optionalSymbol(args)
			if err != nil {
				return err
			}
			app, err := s.App()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			recs, err := app.Ledger.Signals(cmd.Context(), symbol, limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(recs)
			}
			if len(recs) == 0 {
				output.Dim("No signals recorded")
				return nil
			}
			table := NewTable(output, "ID", "TIME", "SYMBOL", "STRATEGY", "SIGNAL", "CONF", "ENTRY")
			for _, r := range recs {
				table.AddRow(
					strconv.FormatUint(uint64(r.ID), 10),
					r.SignalTime.Local().Format("2006-01-02 15:04"),
					r.Symbol,
					r.Strategy,
					r.Type,
					FormatConfidence(r.Confidence),
					FormatPrice(r.EntryPrice),
				)
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "executions [SYMBOL]",
		Short: "List routed orders, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := optionalSymbol(args)
			if err != nil {
				return err
			}
			app, err := s.App()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			recs, err := app.Ledger.Executions(cmd.Context(), symbol, limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(recs)
			}
			if len(recs) == 0 {
				output.Dim("No executions recorded")
				return nil
			}
			table := NewTable(output, "ORDER", "SYMBOL", "SIDE", "QTY", "FILL", "SLIP BPS", "STATUS")
			for _, r := range recs {
				table.AddRow(
					TruncateString(r.OrderID, 8),
					r.Symbol,
					r.Side,
					FormatQuantity(r.Quantity),
					FormatPrice(r.FillPrice),
					fmt.Sprintf("%.1f", r.SlippageBps),
					r.Status,
				)
			}
			table.Render()
			return nil
		},
	})

	var exit float64
	roiCmd := &cobra.Command{
		Use:   "roi ID",
		Short: "Evaluate a recorded signal's return",
		Long: `Evaluate a recorded signal against an exit price. Without --exit the
current market price is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 0)
			if err != nil {
				return fmt.Errorf("invalid signal id %q", args[0])
			}
			app, err := s.App()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			ctx := cmd.Context()

			price := exit
			if price <= 0 {
				rec, err := app.Ledger.Signal(ctx, uint(id))
				if err != nil {
					return err
				}
				if price, err = currentPrice(cmd, app, rec.Symbol); err != nil {
					return err
				}
			}

			roi, err := app.Ledger.SignalROI(ctx, uint(id), price)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(roi)
			}
			renderROI(output, roi)
			return nil
		},
	}
	roiCmd.Flags().Float64Var(&exit, "exit", 0, "exit price (default: current market price)")
	cmd.AddCommand(roiCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "summary SYMBOL",
		Short: "Summarize per-strategy ROI at the current price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := marketdata.NormalizeSymbol(args[0])
			if err != nil {
				return err
			}
			app, err := s.App()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			price, err := currentPrice(cmd, app, symbol)
			if err != nil {
				return err
			}
			summaries, err := app.Ledger.Summarize(cmd.Context(), symbol, price)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":     symbol,
					"price":      price,
					"strategies": summaries,
				})
			}
			output.Printf("%s at %s\n", output.Cyan(symbol), FormatPrice(price))
			if len(summaries) == 0 {
				output.Dim("No signals recorded")
				return nil
			}
			table := NewTable(output, "STRATEGY", "SIGNALS", "WINS", "WIN RATE", "AVG RETURN")
			for _, sum := range summaries {
				table.AddRow(
					sum.Strategy,
					strconv.Itoa(sum.Signals),
					strconv.Itoa(sum.Wins),
					fmt.Sprintf("%.0f%%", sum.WinRate()*100),
					output.Signed(sum.AvgReturnPct),
				)
			}
			table.Render()
			return nil
		},
	})

	rootCmd.AddCommand(cmd)
}

func optionalSymbol(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	return marketdata.NormalizeSymbol(args[0])
}

func currentPrice(cmd *cobra.Command, app *App, symbol string) (float64, error) {
	snap, err := app.Market.GetRealTimeData(cmd.Context(), symbol)
	if err != nil {
		return 0, fmt.Errorf("pricing %s: %w", symbol, err)
	}
	return snap.Quote.Current, nil
}

func renderROI(output *Output, roi ledger.ROI) {
	output.Printf("Signal #%d  %s %s (%s)\n", roi.SignalID, output.Cyan(roi.Symbol), roi.Type, roi.Strategy)
	output.Printf("  Entry:   %s\n", FormatPrice(roi.EntryPrice))
	output.Printf("  Exit:    %s\n", FormatPrice(roi.ExitPrice))
	output.Printf("  Return:  %s\n", output.Signed(roi.ReturnPct))
	output.Printf("  Outcome: %s\n", roi.Outcome)
}
