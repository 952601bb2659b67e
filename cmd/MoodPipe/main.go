package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BTreeMap/MoodPipe/internal/api"
	"github.com/BTreeMap/MoodPipe/internal/insight"
	"github.com/BTreeMap/MoodPipe/internal/lockfile"
	"github.com/BTreeMap/MoodPipe/internal/providers"
	"github.com/BTreeMap/MoodPipe/internal/store"
	"github.com/BTreeMap/MoodPipe/internal/util"
	"github.com/BTreeMap/MoodPipe/internal/vision"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for MoodPipe state data
	DefaultStateDir = "/var/lib/moodpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "moodpipe.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Hold the state directory exclusively for the lifetime of the process
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// Build module options
	storeOpts := buildStoreOptions(flags)
	visionOpts := buildVisionOptions(flags)
	insightOpts := buildInsightOptions(flags)
	providerOpts := buildProviderOptions(flags, config)
	apiOpts := buildAPIOptions(flags)

	// Start the service
	slog.Info("Bootstrapping MoodPipe with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "vision", len(visionOpts), "insight", len(insightOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, visionOpts, insightOpts, providerOpts, apiOpts); err != nil {
		slog.Error("MoodPipe failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("MoodPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseDSN     string
	StateDir        string
	GeminiKey       string
	GeminiModel     string
	OpenAIKey       string
	APIAddr         string
	SyncSchedule    string
	RedirectBase    string
	StravaID        string
	StravaSecret    string
	GoogleFitID     string
	GoogleFitSecret string
	WithingsID      string
	WithingsSecret  string
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	geminiKey    *string
	geminiModel  *string
	openaiKey    *string
	apiAddr      *string
	syncSchedule *string
	redirectBase *string
}

// initializeLogger sets up structured logging, at debug level when
// MOODPIPE_DEBUG is set
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("MOODPIPE_DEBUG", false) {
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

	config := Config{
		DatabaseDSN:     os.Getenv("DATABASE_DSN"),
		StateDir:        os.Getenv("MOODPIPE_STATE_DIR"),
		GeminiKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     os.Getenv("GEMINI_MODEL"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		APIAddr:         os.Getenv("API_ADDR"),
		SyncSchedule:    os.Getenv("SYNC_SCHEDULE"),
		RedirectBase:    os.Getenv("OAUTH_REDIRECT_BASE"),
		StravaID:        os.Getenv("STRAVA_CLIENT_ID"),
		StravaSecret:    os.Getenv("STRAVA_CLIENT_SECRET"),
		GoogleFitID:     os.Getenv("GOOGLE_FIT_CLIENT_ID"),
		GoogleFitSecret: os.Getenv("GOOGLE_FIT_CLIENT_SECRET"),
		WithingsID:      os.Getenv("WITHINGS_CLIENT_ID"),
		WithingsSecret:  os.Getenv("WITHINGS_CLIENT_SECRET"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No MOODPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("MOODPIPE_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// Legacy deployments exported DATABASE_URL instead
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = os.Getenv("DATABASE_URL")
		if config.DatabaseDSN != "" {
			slog.Debug("Using DATABASE_URL as DATABASE_DSN", "dsn_set", true)
		}
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_DSN_SET", config.DatabaseDSN != "",
		"MOODPIPE_STATE_DIR", config.StateDir,
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"GEMINI_MODEL", config.GeminiModel,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"SYNC_SCHEDULE", config.SyncSchedule,
		"OAUTH_REDIRECT_BASE", config.RedirectBase,
		"STRAVA_CREDENTIALS_SET", config.StravaID != "" && config.StravaSecret != "",
		"GOOGLE_FIT_CREDENTIALS_SET", config.GoogleFitID != "" && config.GoogleFitSecret != "",
		"WITHINGS_CREDENTIALS_SET", config.WithingsID != "" && config.WithingsSecret != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for MoodPipe data (overrides $MOODPIPE_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseDSN, "database DSN for the MoodPipe store (overrides $DATABASE_DSN or $DATABASE_URL)"),
		geminiKey:    flag.String("gemini-api-key", config.GeminiKey, "Gemini API key for screenshot extraction (overrides $GEMINI_API_KEY)"),
		geminiModel:  flag.String("gemini-model", config.GeminiModel, "Gemini model for screenshot extraction (overrides $GEMINI_MODEL)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for insight generation (overrides $OPENAI_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		syncSchedule: flag.String("sync-schedule", config.SyncSchedule, "cron schedule for provider metric syncs (overrides $SYNC_SCHEDULE)"),
		redirectBase: flag.String("redirect-base", config.RedirectBase, "base URL for OAuth callbacks (overrides $OAUTH_REDIRECT_BASE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"geminiKeySet", *flags.geminiKey != "",
		"geminiModel", *flags.geminiModel,
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"syncSchedule", *flags.syncSchedule,
		"redirectBase", *flags.redirectBase)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseDSN && config.DatabaseDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated database DSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
		slog.Debug("State directory created successfully", "state_dir", stateDir)
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		// Check if it's a PostgreSQL DSN using the shared detection function
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			// Assume SQLite for file paths
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildVisionOptions constructs screenshot extraction options
func buildVisionOptions(flags Flags) []vision.GeminiOption {
	var visionOpts []vision.GeminiOption
	if *flags.geminiKey != "" {
		visionOpts = append(visionOpts, vision.WithAPIKey(*flags.geminiKey))
	}
	if *flags.geminiModel != "" {
		visionOpts = append(visionOpts, vision.WithModel(*flags.geminiModel))
	}
	return visionOpts
}

// buildInsightOptions constructs insight generation options
func buildInsightOptions(flags Flags) []insight.Option {
	var insightOpts []insight.Option
	if *flags.openaiKey != "" {
		insightOpts = append(insightOpts, insight.WithAPIKey(*flags.openaiKey))
	}
	return insightOpts
}

// buildProviderOptions constructs per-provider OAuth options. Client
// credentials are environment-only; the redirect base is shared by all
// providers.
func buildProviderOptions(flags Flags, config Config) api.ProviderOptions {
	var opts api.ProviderOptions
	if config.StravaID != "" && config.StravaSecret != "" {
		opts.Strava = append(opts.Strava, providers.WithCredentials(config.StravaID, config.StravaSecret))
	}
	if config.GoogleFitID != "" && config.GoogleFitSecret != "" {
		opts.GoogleFit = append(opts.GoogleFit, providers.WithCredentials(config.GoogleFitID, config.GoogleFitSecret))
	}
	if config.WithingsID != "" && config.WithingsSecret != "" {
		opts.Withings = append(opts.Withings, providers.WithCredentials(config.WithingsID, config.WithingsSecret))
	}
	if *flags.redirectBase != "" {
		base := strings.TrimRight(*flags.redirectBase, "/")
		opts.Strava = append(opts.Strava, providers.WithRedirectURL(base+"/oauth/"+providers.ProviderStrava+"/callback"))
		opts.GoogleFit = append(opts.GoogleFit, providers.WithRedirectURL(base+"/oauth/"+providers.ProviderGoogleFit+"/callback"))
		opts.Withings = append(opts.Withings, providers.WithRedirectURL(base+"/oauth/"+providers.ProviderWithings+"/callback"))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.syncSchedule != "" {
		apiOpts = append(apiOpts, api.WithSyncSchedule(*flags.syncSchedule))
	}
	return apiOpts
}
