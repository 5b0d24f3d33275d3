package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"trading-core/internal/telemetry"
)

func addTelemetryCommands(rootCmd *cobra.Command, s *session) {
	rootCmd.AddCommand(newTelemetryCmd(s))
	rootCmd.AddCommand(newServeMetricsCmd(s))
}

func newTelemetryCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "telemetry",
		Short: "Print a telemetry snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			snap := app.Trading.Telemetry(cmd.Context())
			if output.IsJSON() {
				return output.JSON(snap)
			}

			values := snap.Values()
			table := NewTable(output, "METRIC", "VALUE")
			for _, name := range telemetry.Names() {
				table.AddRow(name, formatMetric(values[name]))
			}
			table.Render()

			if len(snap.Breakers) > 0 {
				output.Println()
				breakers := NewTable(output, "BREAKER", "STATE", "REQUESTS", "FAILURES", "TRIPS")
				for _, b := range snap.Breakers {
					state := string(b.State)
					if state != "CLOSED" {
						state = output.Red(state)
					}
					breakers.AddRow(b.Name, state, formatMetric(float64(b.TotalRequests)),
						formatMetric(float64(b.TotalFailures)), formatMetric(float64(b.Trips)))
				}
				breakers.Render()
			}
			output.Dim("health: %s", snap.Health)
			return nil
		},
	}
}

func formatMetric(v float64) string {
	if v == float64(int64(v)) {
		return FormatQuantity(v)
	}
	return FormatPrice(v)
}

func newServeMetricsCmd(s *session) *cobra.Command {
	var (
		addr     string
		watch    []string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve Prometheus metrics and health over HTTP",
		Long: `Serve /metrics in Prometheus text format and /healthz as JSON. With
--watch, signals for the listed symbols are regenerated every --interval so
the exported gauges track live activity.`,
		Example: `  trader serve-metrics
  trader serve-metrics --addr :9100 --watch AAPL,MSFT --interval 1m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = s.cfg.Telemetry.ListenAddr
			}
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", app.Exporter.Handler(app.Trading.Telemetry))
			mux.Handle("/healthz", app.Health.HealthHTTPHandler())
			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			symbols := splitSymbols(watch)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				app.Logger.Info().Str("addr", addr).Msg("Serving metrics")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
			if len(symbols) > 0 {
				g.Go(func() error {
					ticker := time.NewTicker(interval)
					defer ticker.Stop()
					for {
						for _, sym := range symbols {
							r := app.Trading.GetSignals(gctx, sym)
							app.Logger.Debug().Str("symbol", sym).Str("status", string(r.Status)).Int("signals", len(r.Signals)).Msg("Watch refresh")
						}
						select {
						case <-gctx.Done():
							return nil
						case <-ticker.C:
						}
					}
				})
			}

			err = g.Wait()
			app.Logger.Info().Msg("Metrics server stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: telemetry.listen_addr)")
	cmd.Flags().StringSliceVar(&watch, "watch", nil, "symbols to refresh periodically")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "refresh interval for --watch")
	return cmd
}

func splitSymbols(values []string) []string {
	var out []string
	for _, v := range values {
		for _, sym := range strings.Split(v, ",") {
			if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
				out = append(out, sym)
			}
		}
	}
	return out
}
