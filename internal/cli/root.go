package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"earnings-tracker/internal/config"
	"earnings-tracker/internal/logging"
	"earnings-tracker/internal/provider"
	"earnings-tracker/internal/resilience"
	"earnings-tracker/internal/service"
	"earnings-tracker/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. The store and service are opened
// on first use so that commands like version never touch the database.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   *store.SQLiteStore
	Service *service.Service
	Breaker *resilience.CircuitBreaker
	Monitor *resilience.ServiceMonitor
}

// Execute builds the command tree and runs it with ctx.
func Execute(ctx context.Context, logger zerolog.Logger) error {
	app := &App{Logger: logger}
	defer app.Close()
	return NewRootCmd(app).ExecuteContext(ctx)
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "earnings",
		Short: "Earnings Tracker - how stocks move around earnings announcements",
		Long: `Earnings Tracker fetches quarterly earnings and daily prices from Alpha Vantage,
aligns each announcement with the closing prices that bracket it, and reports
per-company statistics, a cross-company leaderboard and an investment calculator.

Use 'earnings companies seed' to register the default watch list, then
'earnings sync' to populate the local database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			if app.Config == nil {
				dir, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Logger = logging.NewLoggerWithConfig(logConfigFrom(cfg))
			}

			// Handle debug flag
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/earnings-tracker)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addSyncCommands(rootCmd, app)
	addAnalysisCommands(rootCmd, app)
	addCompanyCommands(rootCmd, app)
	addStatusCommands(rootCmd, app)
	addServeCommands(rootCmd, app)

	return rootCmd
}

func logConfigFrom(cfg *config.Config) logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = cfg.Log.Level
	if cfg.Log.File != "" {
		lc.FilePath = cfg.Log.File
	} else {
		lc.FilePath = filepath.Join(cfg.Dir(), "logs", "earnings.log")
	}
	return lc
}

// open prepares the store and service. With needProvider set it fails when
// no API key is configured; otherwise a missing key only disables fetching.
func (a *App) open(needProvider bool) error {
	if needProvider {
		if err := a.Config.RequireAPIKey(); err != nil {
			return err
		}
	}
	if a.Service != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(a.Config.Store.Path), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(a.Config.Store.Path)
	if err != nil {
		return err
	}
	a.Store = st
	a.Logger.Debug().Str("path", a.Config.Store.Path).Msg("SQLite store initialized")

	a.Breaker = resilience.NewCircuitBreaker("provider_quota", resilience.QuotaCircuitConfig(a.Config.Sync.QuotaOpenDuration))
	a.Breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		a.Logger.Warn().Str("circuit", name).Str("from", string(from)).Str("to", string(to)).Msg("Circuit state changed")
	})
	a.Monitor = resilience.NewServiceMonitor()

	opts := []service.Option{
		service.WithLogger(a.Logger),
		service.WithQuotaCircuit(a.Breaker),
		service.WithServiceMonitor(a.Monitor),
	}
	if key := a.Config.Credentials.AlphaVantage.APIKey; key != "" {
		client := provider.NewClient(key,
			provider.WithBaseURL(a.Config.Provider.BaseURL),
			provider.WithMinInterval(a.Config.Provider.MinInterval),
			provider.WithCooldown(a.Config.Provider.Cooldown),
			provider.WithMaxRetries(a.Config.Provider.MaxRetries),
			provider.WithRetryWait(a.Config.Provider.RetryWait),
			provider.WithTimeout(a.Config.Provider.Timeout),
			provider.WithPayloadCache(st),
			provider.WithQuotaCircuit(a.Breaker),
			provider.WithServiceMonitor(a.Monitor),
			provider.WithLogger(a.Logger),
		)
		opts = append(opts, service.WithProvider(client))
		a.Logger.Debug().Msg("Alpha Vantage client initialized")
	}

	a.Service = service.New(st, service.ConfigFrom(a.Config), opts...)
	return nil
}

// Close releases the service and the store.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Close()
		a.Service = nil
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close store")
		}
		a.Store = nil
	}
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
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
				output.Printf("Earnings Tracker v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				masked := *app.Config
				masked.Credentials.AlphaVantage.APIKey = maskKey(masked.Credentials.AlphaVantage.APIKey)
				return output.JSON(masked)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.Config.Dir()})
			} else {
				output.Println(app.Config.Dir())
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
			keyErr := app.Config.RequireAPIKey()
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true, "api_key": keyErr == nil})
			}
			output.Success("✓ Configuration is valid")
			if keyErr != nil {
				output.Warning("No API key configured; only stored data can be served")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Provider")
	output.Printf("  Base URL:        %s\n", cfg.Provider.BaseURL)
	output.Printf("  Min Interval:    %s\n", cfg.Provider.MinInterval)
	output.Printf("  Cooldown:        %s\n", cfg.Provider.Cooldown)
	output.Printf("  Max Retries:     %d\n", cfg.Provider.MaxRetries)
	output.Printf("  Timeout:         %s\n", cfg.Provider.Timeout)
	output.Printf("  API Key:         %s\n", maskKey(cfg.Credentials.AlphaVantage.APIKey))
	output.Println()

	output.Bold("Alignment")
	output.Printf("  Convention:      %s\n", cfg.Alignment.Convention)
	output.Printf("  Unspecified As:  %s\n", cfg.Alignment.UnspecifiedAs)
	output.Printf("  Max Attempts:    %d\n", cfg.Calendar.MaxAttempts)
	output.Printf("  Max Span:        %d days\n", cfg.Calendar.MaxSpanDays)
	output.Println()

	output.Bold("Sync")
	output.Printf("  Earnings Stale:  %s\n", cfg.Sync.EarningsStale)
	output.Printf("  Prices Stale:    %s\n", cfg.Sync.PricesStale)
	output.Printf("  Market Hours:    %s\n", cfg.Sync.MarketHoursStale)
	output.Printf("  Symbol Attempts: %d\n", cfg.Sync.SymbolAttempts)
	output.Printf("  Quota Open For:  %s\n", cfg.Sync.QuotaOpenDuration)
	output.Println()

	output.Bold("Storage & Server")
	output.Printf("  Database:        %s\n", cfg.Store.Path)
	output.Printf("  Port:            %d\n", cfg.Server.Port)
	output.Printf("  Refresh:         %s\n", cfg.Server.RefreshSchedule)
	output.Printf("  Log Level:       %s\n", cfg.Log.Level)
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 4:
		return "****"
	default:
		return "****" + key[len(key)-4:]
	}
}
