package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/app"
	"github.com/joescharf/campus/internal/auth"
	"github.com/joescharf/campus/internal/gateway"
	"github.com/joescharf/campus/internal/output"
	"github.com/joescharf/campus/internal/store"
	"github.com/joescharf/campus/internal/validate"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "campus",
	Short: "Campus issue reporting",
	Long: `campus lets students report campus problems and lets admins triage them.

It serves a live web UI (campus serve), a terminal client (campus tui)
and an MCP tool server (campus mcp) over a SQLite or PostgreSQL backend.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/campus/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CAMPUS")
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default, rooted at dir.
func setDefaults(dir string) {
	viper.SetDefault("state_dir", dir)
	viper.SetDefault("backend", "sqlite")
	viper.SetDefault("db_path", filepath.Join(dir, "campus.db"))
	viper.SetDefault("postgres_dsn", "")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("serve.addr", "localhost:8080")
	viper.SetDefault("serve.session_ttl", "30m")
	viper.SetDefault("serve.secure_cookie", false)

	viper.SetDefault("issues.page_size", gateway.DefaultConfig.PageSize)
	viper.SetDefault("retry.attempts", gateway.DefaultConfig.RetryAttempts)
	viper.SetDefault("retry.base_delay", gateway.DefaultConfig.RetryBaseDelay.String())

	viper.SetDefault("limits.title_min", validate.DefaultLimits.MinTitle)
	viper.SetDefault("limits.title_max", validate.DefaultLimits.MaxTitle)
	viper.SetDefault("limits.description_min", validate.DefaultLimits.MinDescription)
	viper.SetDefault("limits.description_max", validate.DefaultLimits.MaxDescription)
	viper.SetDefault("limits.password_min", validate.DefaultLimits.MinPasswordLength)

	viper.SetDefault("ui.notification_timeout", app.DefaultConfig.NotificationTimeout.String())
	viper.SetDefault("ui.search_debounce", app.DefaultConfig.SearchDebounce.String())

	viper.SetDefault("mcp.email", "")
	viper.SetDefault("mcp.password", "")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// The store is opened lazily, only by commands that need it, so
	// config/version run without a database.
}

// newLogger builds the process logger. Production JSON goes to stderr, or
// to outputs when given, so stdout stays free for stdio transports.
func newLogger(outputs ...string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(viper.GetString("log_level")); err == nil {
		cfg.Level = lvl
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	if len(outputs) > 0 {
		cfg.OutputPaths = outputs
		cfg.ErrorOutputPaths = outputs
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// getStore returns the shared store, opening and migrating it on first call.
func getStore(ctx context.Context, logger *zap.Logger) (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	var (
		s   store.Store
		err error
	)
	switch backend := viper.GetString("backend"); backend {
	case "sqlite", "":
		dbPath := viper.GetString("db_path")
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		ui.VerboseLog("Opening SQLite database %s", dbPath)
		s, err = store.NewSQLiteStore(dbPath)
	case "postgres":
		dsn := viper.GetString("postgres_dsn")
		if dsn == "" {
			return nil, fmt.Errorf("backend is postgres but postgres_dsn is empty")
		}
		ui.VerboseLog("Connecting to PostgreSQL")
		s, err = store.NewPostgresStore(dsn, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q (want sqlite or postgres)", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// appConfig reads the session tunables from viper.
func appConfig() app.Config {
	cfg := app.DefaultConfig
	cfg.Gateway = gateway.Config{
		PageSize:       viper.GetInt("issues.page_size"),
		RetryAttempts:  viper.GetInt("retry.attempts"),
		RetryBaseDelay: viper.GetDuration("retry.base_delay"),
	}
	cfg.Limits = validate.Limits{
		MinTitle:          viper.GetInt("limits.title_min"),
		MaxTitle:          viper.GetInt("limits.title_max"),
		MinDescription:    viper.GetInt("limits.description_min"),
		MaxDescription:    viper.GetInt("limits.description_max"),
		MinPasswordLength: viper.GetInt("limits.password_min"),
	}
	cfg.NotificationTimeout = viper.GetDuration("ui.notification_timeout")
	cfg.SearchDebounce = viper.GetDuration("ui.search_debounce")
	return cfg
}

// newApp opens the backend and builds the shared App.
func newApp(ctx context.Context, logger *zap.Logger) (*app.App, error) {
	s, err := getStore(ctx, logger)
	if err != nil {
		return nil, err
	}
	provider := auth.NewProvider(s, auth.WithLogger(logger))
	return app.New(appConfig(), s, provider, logger, nil), nil
}

// closeStore closes the shared store if one was opened.
func closeStore() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
}
