// Package cli provides the command-line interface for the econsim terminal.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"econsim-terminal/internal/config"
	"econsim-terminal/internal/gateway"
	"econsim-terminal/internal/logging"
	"econsim-terminal/internal/models"
	"econsim-terminal/internal/security"
	"econsim-terminal/internal/session"
)

// Version information
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// App holds the application dependencies. It is filled in by the root
// command's pre-run once flags are parsed.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	API       *gateway.Client
	Audit     *security.AuditLogger
	Access    *security.AccessController
	Validator *security.InputValidator
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "econsim",
		Short: "Terminal client for the economy simulation game",
		Long: `econsim is a terminal client for the economy simulation game service.

It shows the market, order ladders, inventory and the world map for a
company, places and cancels orders, claims locations, builds extractors
and changes the simulation speed.

Use 'econsim watch' for a live view that refreshes on its own.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.Audit != nil {
				_ = app.Audit.Close()
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/econsim)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("api", "", "game service base URL (overrides config)")

	addCoreCommands(rootCmd, app)
	addMarketCommands(rootCmd, app)
	addInventoryCommands(rootCmd, app)
	addWorldCommands(rootCmd, app)
	addOrderCommands(rootCmd, app)
	addWatchCommand(rootCmd, app)

	return rootCmd
}

func (a *App) init(cmd *cobra.Command) error {
	configDir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	if api, _ := cmd.Flags().GetString("api"); api != "" {
		cfg.API.BaseURL = api
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.Config = cfg

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.File = cfg.Logging.File
	logCfg.FilePath = filepath.Join(cfg.Dir, "logs", "econsim.log")
	a.Logger = logging.NewLoggerWithConfig(logCfg)

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}

	// Requests are bounded only by the caller's context.
	a.API = gateway.New(gateway.Config{
		BaseURL: cfg.API.BaseURL,
		Logger:  a.Logger,
	})

	if cfg.Security.AuditEnabled {
		auditCfg := security.DefaultAuditConfig()
		auditCfg.LogDir = filepath.Join(cfg.Dir, "audit")
		audit, err := security.NewAuditLogger(auditCfg)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Audit log unavailable")
		} else {
			a.Audit = audit
		}
	}
	a.Access = security.NewAccessController(cfg.Security.ReadOnlyMode, a.Audit)
	a.Validator = security.NewInputValidator(a.Audit)

	a.Logger.Debug().
		Str("api", cfg.API.BaseURL).
		Bool("read_only", cfg.Security.ReadOnlyMode).
		Msg("Configuration loaded")
	return nil
}

// selections are applied to a session before it starts.
type selections struct {
	company   *int64
	good      *int64
	chartGood *int64
	location  *int64
}

// openSession builds and starts a session. Load failures are returned
// alongside the session, which stays usable.
func (a *App) openSession(ctx context.Context, sel selections) (*session.Session, error) {
	p := a.Config.Polling
	logger := a.Logger
	if sel.company != nil {
		logger = logging.WithCompany(logger, *sel.company)
	}
	sess, err := session.New(session.Options{
		API: a.API,
		Intervals: session.Intervals{
			Orders: p.OrdersInterval,
			Depth:  p.DepthInterval,
			Stats:  p.StatsInterval,
			Trades: p.TradesInterval,
		},
		CandleMinutes: p.CandleMinutes,
		ExtractorRate: a.Config.Trading.ExtractorRatePerHour,
		Access:        a.Access,
		Validator:     a.Validator,
		Audit:         a.Audit,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	sess.Company.SetPtr(sel.company)
	sess.MarketGood.SetPtr(sel.good)
	sess.ChartGood.SetPtr(sel.chartGood)
	sess.Location.SetPtr(sel.location)

	return sess, sess.Start(ctx)
}

// resolveCompany accepts a company id or a case-insensitive name.
func (a *App) resolveCompany(ctx context.Context, raw string) (models.Company, error) {
	companies, err := a.API.Companies(ctx)
	if err != nil {
		return models.Company{}, err
	}
	id, idErr := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	for _, c := range companies {
		if (idErr == nil && c.ID == id) || strings.EqualFold(c.Name, strings.TrimSpace(raw)) {
			return c, nil
		}
	}
	return models.Company{}, fmt.Errorf("unknown company %q", raw)
}

// resolveGood accepts a good id or a case-insensitive name.
func (a *App) resolveGood(ctx context.Context, raw string) (models.Good, error) {
	goods, err := a.API.Goods(ctx)
	if err != nil {
		return models.Good{}, err
	}
	id, idErr := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	for _, g := range goods {
		if (idErr == nil && g.ID == id) || strings.EqualFold(g.Name, strings.TrimSpace(raw)) {
			return g, nil
		}
	}
	return models.Good{}, fmt.Errorf("unknown good %q", raw)
}

// optionalCompany resolves the --company flag when set.
func (a *App) optionalCompany(cmd *cobra.Command) (*int64, error) {
	raw, _ := cmd.Flags().GetString("company")
	if raw == "" {
		return nil, nil
	}
	c, err := a.resolveCompany(cmd.Context(), raw)
	if err != nil {
		return nil, err
	}
	return &c.ID, nil
}

// optionalGood resolves a good flag when set.
func (a *App) optionalGood(cmd *cobra.Command, flag string) (*int64, error) {
	raw, _ := cmd.Flags().GetString(flag)
	if raw == "" {
		return nil, nil
	}
	g, err := a.resolveGood(cmd.Context(), raw)
	if err != nil {
		return nil, err
	}
	return &g.ID, nil
}

func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("econsim v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
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
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.Path(app.Config.Dir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
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

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Game Service")
	output.Printf("  Base URL:        %s\n", cfg.API.BaseURL)
	output.Println()

	output.Bold("Polling")
	output.Printf("  Orders:          %s\n", cfg.Polling.OrdersInterval)
	output.Printf("  Depth:           %s\n", cfg.Polling.DepthInterval)
	output.Printf("  Stats:           %s\n", cfg.Polling.StatsInterval)
	output.Printf("  Trades:          %s\n", cfg.Polling.TradesInterval)
	output.Printf("  Candle window:   %d min\n", cfg.Polling.CandleMinutes)
	output.Println()

	output.Bold("Trading")
	output.Printf("  Extractor rate:  %d/h\n", cfg.Trading.ExtractorRatePerHour)
	presets := make([]string, 0, len(cfg.Trading.SpeedPresets))
	for _, p := range cfg.SpeedPresets() {
		presets = append(presets, FormatSpeed(p))
	}
	output.Printf("  Speed presets:   %s\n", strings.Join(presets, " "))
	output.Println()

	output.Bold("Security")
	output.Printf("  Read-only:       %v\n", cfg.Security.ReadOnlyMode)
	output.Printf("  Audit log:       %v\n", cfg.Security.AuditEnabled)
	output.Println()

	listen := cfg.Server.Listen
	if listen == "" {
		listen = "disabled"
	}
	output.Bold("Status Server")
	output.Printf("  Listen:          %s\n", listen)
}

// Execute runs the root command and reports a failure on stderr.
func Execute(ctx context.Context, logger zerolog.Logger) int {
	rootCmd := NewRootCmd(logger)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
