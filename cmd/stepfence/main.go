package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stepfence/StepFence/internal/api"
	"github.com/stepfence/StepFence/internal/config"
	"github.com/stepfence/StepFence/internal/countdown"
	"github.com/stepfence/StepFence/internal/ledger"
	"github.com/stepfence/StepFence/internal/lockfile"
	"github.com/stepfence/StepFence/internal/mission"
	"github.com/stepfence/StepFence/internal/monitor"
	"github.com/stepfence/StepFence/internal/notify"
	"github.com/stepfence/StepFence/internal/recovery"
	"github.com/stepfence/StepFence/internal/scheduler"
	"github.com/stepfence/StepFence/internal/steps"
	"github.com/stepfence/StepFence/internal/store"
	"github.com/stepfence/StepFence/internal/tasks"
	"github.com/stepfence/StepFence/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for StepFence state data
	DefaultStateDir = "/var/lib/stepfence"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "stepfence.db"
	// DefaultSelfID is the engine's own target identifier, always exempt
	DefaultSelfID = "com.stepfence.app"
	// DefaultLauncherID is the home-screen identifier, always exempt
	DefaultLauncherID = "com.android.launcher"
)

func main() {
	initializeLogger()

	cfg := loadEnvironmentConfig()
	flags := parseCommandLineFlags(cfg)

	if err := run(flags); err != nil {
		slog.Error("StepFence failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("StepFence exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	APIAddr     string
	SelfID      string
	LauncherID  string
	ExactWake   bool
	TwilioSID   string
}

// Flags holds command line flag values
type Flags struct {
	stateDir   *string
	dbDSN      *string
	apiAddr    *string
	selfID     *string
	launcherID *string
	exactWake  *bool
}

// initializeLogger sets up structured logging; LOG_LEVEL=debug enables debug output.
func initializeLogger() {
	level := slog.LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	cfg := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("STEPFENCE_STATE_DIR"),
		APIAddr:     os.Getenv("API_ADDR"),
		SelfID:      os.Getenv("STEPFENCE_SELF_ID"),
		LauncherID:  os.Getenv("STEPFENCE_LAUNCHER_ID"),
		ExactWake:   util.ParseBoolEnv("STEPFENCE_EXACT_WAKE", true),
		TwilioSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
	}

	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = filepath.Join(cfg.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", cfg.DatabaseURL)
	}
	if cfg.SelfID == "" {
		cfg.SelfID = DefaultSelfID
	}
	if cfg.LauncherID == "" {
		cfg.LauncherID = DefaultLauncherID
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", cfg.DatabaseURL != "",
		"STEPFENCE_STATE_DIR", cfg.StateDir,
		"API_ADDR", cfg.APIAddr,
		"STEPFENCE_EXACT_WAKE", cfg.ExactWake,
		"TWILIO_ACCOUNT_SID_SET", cfg.TwilioSID != "")

	return cfg
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(cfg Config) Flags {
	flags := Flags{
		stateDir:   flag.String("state-dir", cfg.StateDir, "state directory for StepFence data (overrides $STEPFENCE_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", cfg.DatabaseURL, "database DSN for the state store (overrides $DATABASE_URL)"),
		apiAddr:    flag.String("api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)"),
		selfID:     flag.String("self-id", cfg.SelfID, "engine's own target identifier (overrides $STEPFENCE_SELF_ID)"),
		launcherID: flag.String("launcher-id", cfg.LauncherID, "home-screen target identifier (overrides $STEPFENCE_LAUNCHER_ID)"),
		exactWake:  flag.Bool("exact-wake", cfg.ExactWake, "whether exact wake scheduling is permitted (overrides $STEPFENCE_EXACT_WAKE)"),
	}
	flag.Parse()
	return flags
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	}
	return storeOpts
}

// buildNotifier selects the Twilio SMS channel when configured, the
// slog channel otherwise.
func buildNotifier() notify.Notifier {
	if os.Getenv("TWILIO_ACCOUNT_SID") == "" {
		return notify.NewSlogNotifier()
	}
	twilioNotifier, err := notify.NewTwilioNotifier()
	if err != nil {
		slog.Warn("Twilio notifier unavailable, falling back to log notifier", "error", err)
		return notify.NewSlogNotifier()
	}
	slog.Info("Using Twilio SMS notification channel")
	return twilioNotifier
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Single-instance lock: two monitors on the same store would double-block.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.NewStore(buildStoreOptions(flags)...)
	if err != nil {
		return err
	}
	defer st.Close()

	notifier := buildNotifier()
	engineCfg := config.New(st)
	led := ledger.New(st)
	tracker := steps.New(st)
	taskMgr := tasks.NewManager(st, led)

	timer := scheduler.NewSimpleTimer()
	defer timer.Stop()
	wake := mission.NewTimerWake(timer, *flags.exactWake)
	missionMgr := mission.NewManager(st, led, tracker, notifier, wake)

	agg := countdown.New(led, countdown.LogSink{})
	querier := monitor.NewReportedQuerier(monitor.DefaultForegroundMaxAge)
	blocker := monitor.NewNotifierBlocker(notifier)
	mon := monitor.New(engineCfg, led, querier, blocker, notifier, *flags.selfID, *flags.launcherID)

	// Restore scheduled surface from persisted state.
	rec := recovery.NewManager(led, agg, missionMgr)
	if err := rec.RecoverAll(ctx); err != nil {
		slog.Warn("Recovery finished with errors", "error", err)
	}

	// Midnight rollover regenerates the task list eagerly; claims also detect
	// rollover lazily, so a missed job is harmless.
	cronSched := scheduler.NewScheduler()
	defer cronSched.Stop()
	if err := cronSched.AddJob(scheduler.MidnightSpec, func() {
		if err := taskMgr.Rollover(); err != nil {
			slog.Error("Midnight rollover failed", "error", err)
		}
	}); err != nil {
		return err
	}

	go mon.Run(ctx)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(ctx, engineCfg, led, taskMgr, missionMgr, tracker, agg, querier, timer, apiOpts...)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("API shutdown failed", "error", err)
		}
	}()

	slog.Info("Bootstrapping StepFence", "state_dir", *flags.stateDir, "api_addr", *flags.apiAddr)
	return server.Run()
}
