package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"signal-trader/internal/broker"
	"signal-trader/internal/classifier"
	"signal-trader/internal/config"
	"signal-trader/internal/execution"
	"signal-trader/internal/logging"
	"signal-trader/internal/models"
	"signal-trader/internal/notify"
	"signal-trader/internal/positions"
	"signal-trader/internal/security"
	"signal-trader/internal/store"
	"signal-trader/internal/symbols"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-01-01"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    *store.SQLiteStore
	Broker   broker.Broker
	Paper    *broker.PaperBroker // non-nil in paper mode
	Monitor  *positions.Monitor
	Service  *execution.Service
	Notifier *notify.MultiNotifier
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	dataStore, err := store.NewSQLiteStore(cfg.Trading.DatabasePath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, some features may be unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Trading.DatabasePath).Msg("SQLite store initialized")
	}

	app.Notifier = notify.NewMultiNotifier(&cfg.Notifications)
	if cfg.UI.ColorEnabled {
		app.Notifier.AddChannel(notify.NewTerminalNotifier())
	}

	if app.Store != nil {
		app.Monitor = positions.NewMonitor(cfg.Trading.Username, app.Store, cfg.Monitor.HistoryLimit, logger)
	}

	app.Broker = buildBroker(app)
	if app.Broker != nil && app.Monitor != nil {
		resolver := symbols.NewResolver(app.Store, logger)
		app.Service = execution.NewService(execution.Config{
			Enabled:             cfg.Execution.Enabled,
			ConfidenceThreshold: cfg.Execution.ConfidenceThreshold,
			DuplicateWindow:     time.Duration(cfg.Execution.DuplicateWindowSeconds) * time.Second,
			TradingLots:         cfg.Execution.TradingLots,
			MinEntryTolerance:   cfg.Execution.MinEntryTolerance,
			MaxEntryTolerance:   cfg.Execution.MaxEntryTolerance,
			DefaultProduct:      models.ProductType(cfg.Trading.DefaultProduct),
			Username:            cfg.Trading.Username,
		}, app.Broker, app.Monitor, resolver, app.Notifier, logger)
	}

	rootCmd := &cobra.Command{
		Use:   "signal-trader",
		Short: "Signal Trader - channel-signal execution CLI",
		Long: `Signal Trader turns free-text trade calls into broker orders.

Messages are classified by a rule engine with LLM and regex fallbacks,
validated, priced against live quotes and executed in paper or live mode.
Open positions are monitored with multi-target progressive exits.

Use 'signal-trader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/signal-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newClassifyCmd(app))
	rootCmd.AddCommand(newPositionsCmd(app))
	rootCmd.AddCommand(newStatsCmd(app))

	return rootCmd
}

// buildBroker selects the paper or live adapter from the trading mode.
// Live mode prefers the access token from credentials and falls back to
// the encrypted token store when a passphrase is available.
func buildBroker(app *App) broker.Broker {
	cfg := app.Config

	if cfg.IsPaperMode() {
		var ledger broker.OrderLedger
		if app.Store != nil {
			ledger = app.Store
		}
		paper := broker.NewPaperBroker(cfg.Trading.Username, ledger, app.Logger)
		app.Paper = paper
		app.Logger.Debug().Msg("Paper broker initialized")
		return paper
	}

	if cfg.Credentials.Zerodha.APIKey == "" {
		app.Logger.Warn().Msg("No Zerodha API key configured, live trading unavailable")
		return nil
	}

	accessToken := cfg.Credentials.Zerodha.AccessToken
	if accessToken == "" {
		if passphrase := os.Getenv("SIGNAL_TRADER_PASSPHRASE"); passphrase != "" {
			tokens := security.NewTokenStore(config.DefaultConfigDir())
			token, err := tokens.Load(passphrase)
			if err != nil {
				app.Logger.Warn().Err(err).Msg("Failed to load encrypted access token")
			} else {
				accessToken = token
			}
		}
	}

	zerodha := broker.NewZerodhaBroker(broker.ZerodhaConfig{
		APIKey:      cfg.Credentials.Zerodha.APIKey,
		AccessToken: accessToken,
	})
	if !zerodha.IsAuthenticated() {
		app.Logger.Warn().Msg("Zerodha broker initialized without access token")
	}
	return zerodha
}

// newParser assembles the classification chain: rule engine first, the
// LLM parser when enabled, regex extraction as the last resort.
func newParser(app *App) classifier.Parser {
	cfg := app.Config

	var symbolSet map[string]struct{}
	if cfg.Classifier.SymbolsCSV != "" {
		set, err := symbols.LoadSymbolSet(cfg.Classifier.SymbolsCSV)
		if err != nil {
			app.Logger.Warn().Err(err).Str("path", cfg.Classifier.SymbolsCSV).Msg("Failed to load symbol set")
		} else {
			symbolSet = set
		}
	}

	parsers := []classifier.Parser{classifier.New(symbolSet, app.Logger)}
	if cfg.Classifier.LLMEnabled && cfg.Credentials.OpenAI.APIKey != "" {
		parsers = append(parsers, classifier.NewLLMParser(cfg.Credentials.OpenAI.APIKey, cfg.Classifier.LLMModel, app.Logger))
	}
	parsers = append(parsers, classifier.NewRegexParser())

	return classifier.NewChain(app.Logger, parsers...)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Signal Trader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

// showConfig prints the non-secret configuration sections.
func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Trading")
	output.Printf("  mode:            %s\n", cfg.Trading.Mode)
	output.Printf("  default product: %s\n", cfg.Trading.DefaultProduct)
	output.Printf("  username:        %s\n", cfg.Trading.Username)
	output.Printf("  database:        %s\n", cfg.Trading.DatabasePath)

	output.Bold("Execution")
	output.Printf("  enabled:              %t\n", cfg.Execution.Enabled)
	output.Printf("  confidence threshold: %.2f\n", cfg.Execution.ConfidenceThreshold)
	output.Printf("  duplicate window:     %ds\n", cfg.Execution.DuplicateWindowSeconds)
	output.Printf("  trading lots:         %d\n", cfg.Execution.TradingLots)
	output.Printf("  entry tolerance:      %.2f .. %.2f\n", cfg.Execution.MinEntryTolerance, cfg.Execution.MaxEntryTolerance)

	output.Bold("Classifier")
	output.Printf("  symbols csv: %s\n", cfg.Classifier.SymbolsCSV)
	output.Printf("  llm enabled: %t\n", cfg.Classifier.LLMEnabled)
	output.Printf("  llm model:   %s\n", cfg.Classifier.LLMModel)

	output.Bold("Monitor")
	output.Printf("  poll interval: %ds\n", cfg.Monitor.PollIntervalSeconds)
	output.Printf("  trailing:      %t\n", cfg.Monitor.TrailingEnabled)
	output.Printf("  history limit: %d\n", cfg.Monitor.HistoryLimit)

	output.Bold("Notifications")
	output.Printf("  enabled:  %t\n", cfg.Notifications.Enabled)
	output.Printf("  level:    %s\n", cfg.Notifications.Level)
	output.Printf("  webhook:  %t\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  telegram: %t\n", cfg.Notifications.Telegram.Enabled)
	return nil
}
