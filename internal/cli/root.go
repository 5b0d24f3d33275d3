package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trading-core/internal/config"
	"trading-core/internal/logging"
	"trading-core/internal/security"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-10-01"
)

// session loads configuration once per invocation and wires the App on
// first use, so commands that only read config never open a database.
type session struct {
	configDir string
	debug     bool

	cfg    *config.Config
	logger zerolog.Logger
	app    *App
}

func (s *session) load() error {
	cfg, err := config.Load(s.configDir)
	if err != nil {
		return err
	}
	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File
	logCfg.FilePath = cfg.Logging.FilePath
	if s.debug {
		logCfg.Level = "debug"
	}
	s.cfg = cfg
	s.logger = logging.NewLoggerWithConfig(logCfg)
	return nil
}

// App returns the wired application, building it on first call.
func (s *session) App() (*App, error) {
	if s.app != nil {
		return s.app, nil
	}
	app, err := NewApp(s.cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("initializing pipeline: %w", err)
	}
	s.app = app
	return app, nil
}

func (s *session) close() error {
	if s.app == nil {
		return nil
	}
	err := s.app.Close()
	s.app = nil
	return err
}

func (s *session) dir() string {
	if s.configDir != "" {
		return s.configDir
	}
	return config.DefaultConfigDir()
}

// Execute runs the CLI and releases whatever the invoked command opened.
func Execute(ctx context.Context) error {
	s := &session{}
	err := newRootCmd(s).ExecuteContext(ctx)
	return errors.Join(err, s.close())
}

// newRootCmd creates the root command for the CLI.
func newRootCmd(s *session) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Trading signal and execution pipeline",
		Long: `trader fetches market data, computes indicators, runs the momentum,
mean-reversion and breakout strategies, filters signals through each user's
risk preferences and simulates execution against a paper broker.

Buy and sell intents are never routed directly: they are queued as pending
trades for confirmation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.load()
		},
	}

	rootCmd.PersistentFlags().StringVar(&s.configDir, "config", "", "config directory (default: ~/.config/trading-core)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&s.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(s))
	addSignalCommands(rootCmd, s)
	addTradeCommands(rootCmd, s)
	addPreferenceCommands(rootCmd, s)
	addExecutionCommands(rootCmd, s)
	addTelemetryCommands(rootCmd, s)
	addLedgerCommands(rootCmd, s)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// no config needed
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
				return
			}
			output.Printf("trader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

func newConfigCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration. Credentials are always masked.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"config":      s.cfg,
					"credentials": maskedCredentials(s.cfg.Credentials),
				})
			}
			showConfig(output, s.cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": s.dir()})
			}
			output.Println(s.dir())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := s.cfg.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func maskedCredentials(c config.Credentials) map[string]string {
	return map[string]string{
		"kite.api_key":         security.MaskCredential(c.Kite.APIKey),
		"kite.access_token":    security.MaskCredential(c.Kite.AccessToken),
		"finnhub.token":        security.MaskCredential(c.Finnhub.Token),
		"alphavantage.api_key": security.MaskCredential(c.AlphaVantage.APIKey),
	}
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Market Data")
	output.Printf("  Quote provider:    %s\n", cfg.MarketData.QuoteProvider)
	output.Printf("  History providers: %v (+ synthetic)\n", cfg.MarketData.HistoryProviders)
	output.Printf("  History days:      %d\n", cfg.MarketData.HistoryDays)
	output.Printf("  Quote TTL:         %s\n", cfg.MarketData.QuoteTTL)
	output.Printf("  Fast indicators:   %t\n", cfg.MarketData.FastIndicators)
	output.Println()

	output.Bold("Resilience")
	output.Printf("  Failure threshold: %d\n", cfg.Resilience.FailureThreshold)
	output.Printf("  Breaker timeout:   %s\n", cfg.Resilience.BreakerTimeout)
	output.Printf("  Retry attempts:    %d (%s .. %s)\n", cfg.Resilience.RetryAttempts, cfg.Resilience.RetryInitialDelay, cfg.Resilience.RetryMaxDelay)
	output.Println()

	output.Bold("Paper Broker")
	output.Printf("  Initial cash:      %s\n", FormatCurrency(cfg.Broker.InitialCash))
	output.Printf("  Slippage:          %.1f bps\n", cfg.Broker.SlippageBps)
	output.Println()

	output.Bold("Preferences")
	output.Printf("  Reads/min:         %d\n", cfg.Preferences.ReadsPerMinute)
	output.Printf("  Writes/min:        %d\n", cfg.Preferences.WritesPerMinute)
	output.Printf("  Audit dir:         %s\n", cfg.Preferences.AuditDir)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Preferences DB:    %s\n", cfg.Storage.PreferencesDB)
	output.Printf("  Ledger DB:         %s\n", cfg.Storage.LedgerDB)
	output.Println()

	output.Bold("Credentials")
	for _, key := range []string{"kite.api_key", "kite.access_token", "finnhub.token", "alphavantage.api_key"} {
		value := maskedCredentials(cfg.Credentials)[key]
		if value == "" {
			value = output.DimText("(not set)")
		}
		output.Printf("  %-21s %s\n", key+":", value)
	}
}
