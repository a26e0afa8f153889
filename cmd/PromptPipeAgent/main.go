package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/BTreeMap/PromptPipeAgent/internal/api"
	"github.com/BTreeMap/PromptPipeAgent/internal/flow"
	"github.com/BTreeMap/PromptPipeAgent/internal/genai"
	"github.com/BTreeMap/PromptPipeAgent/internal/store"
	"github.com/BTreeMap/PromptPipeAgent/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PromptPipe Agent state data
	DefaultStateDir = "/var/lib/promptpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "promptpipe.db"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)
	flags := parseCommandLineFlags(config)

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	genaiClient, err := buildGenAIClient(flags, config)
	if err != nil {
		slog.Error("Failed to initialize GenAI client", "error", err)
		os.Exit(1)
	}

	orchestrator := buildOrchestrator(st, genaiClient, flags)

	server := api.NewServer(orchestrator, api.WithAddr(*flags.apiAddr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping PromptPipe Agent",
		"api_addr", *flags.apiAddr,
		"dsn_set", *flags.dbDSN != "",
		"state_dir", *flags.stateDir,
		"history_limit", *flags.historyLimit)
	if err := server.Run(ctx); err != nil {
		slog.Error("PromptPipe Agent failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("PromptPipe Agent exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL       string
	StateDir          string
	OpenAIKey         string
	OpenAIModel       string
	APIAddr           string
	HistoryLimit      int
	CoordinatorPrompt string
	IntakePrompt      string
	FeedbackPrompt    string
	PromptGenPrompt   string
	Debug             bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir          *string
	dbDSN             *string
	openaiKey         *string
	openaiModel       *string
	apiAddr           *string
	historyLimit      *int
	coordinatorPrompt *string
	intakePrompt      *string
	feedbackPrompt    *string
	promptGenPrompt   *string
}

// initializeLogger sets up structured logging
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
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
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StateDir:          os.Getenv("PROMPTPIPE_STATE_DIR"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		APIAddr:           os.Getenv("API_ADDR"),
		HistoryLimit:      util.ParseIntEnv("CHAT_HISTORY_LIMIT", flow.DefaultHistoryLimit),
		CoordinatorPrompt: os.Getenv("COORDINATOR_PROMPT_FILE"),
		IntakePrompt:      os.Getenv("INTAKE_PROMPT_FILE"),
		FeedbackPrompt:    os.Getenv("FEEDBACK_PROMPT_FILE"),
		PromptGenPrompt:   os.Getenv("PROMPT_GENERATOR_PROMPT_FILE"),
		Debug:             util.ParseBoolEnv("DEBUG", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PROMPTPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}

	return config
}

// parseCommandLineFlags parses command line flags with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:          flag.String("state-dir", config.StateDir, "Directory for state data (overrides PROMPTPIPE_STATE_DIR)"),
		dbDSN:             flag.String("db-dsn", config.DatabaseURL, "Database DSN: postgres:// URL or SQLite file path (overrides DATABASE_URL)"),
		openaiKey:         flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides OPENAI_API_KEY)"),
		openaiModel:       flag.String("openai-model", config.OpenAIModel, "OpenAI model (overrides OPENAI_MODEL)"),
		apiAddr:           flag.String("api-addr", config.APIAddr, "API listen address (overrides API_ADDR)"),
		historyLimit:      flag.Int("history-limit", config.HistoryLimit, "Chat history messages per turn: -1 unlimited, 0 none, N last-N (overrides CHAT_HISTORY_LIMIT)"),
		coordinatorPrompt: flag.String("coordinator-prompt-file", config.CoordinatorPrompt, "Coordinator system prompt file (overrides COORDINATOR_PROMPT_FILE)"),
		intakePrompt:      flag.String("intake-prompt-file", config.IntakePrompt, "Intake system prompt file (overrides INTAKE_PROMPT_FILE)"),
		feedbackPrompt:    flag.String("feedback-prompt-file", config.FeedbackPrompt, "Feedback system prompt file (overrides FEEDBACK_PROMPT_FILE)"),
		promptGenPrompt:   flag.String("prompt-generator-prompt-file", config.PromptGenPrompt, "Prompt generator system prompt file (overrides PROMPT_GENERATOR_PROMPT_FILE)"),
	}
	flag.Parse()
	return flags
}

// buildStore selects the persistence backend from the DSN: postgres URLs
// use the Postgres store, everything else SQLite under the state directory.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		slog.Info("Using Postgres store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	if dsn == "" {
		dsn = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("No DSN configured, using SQLite under state dir", "path", dsn)
	}
	slog.Info("Using SQLite store", "path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildGenAIClient assembles the GenAI client options
func buildGenAIClient(flags Flags, config Config) (*genai.Client, error) {
	opts := []genai.Option{genai.WithAPIKey(*flags.openaiKey)}
	if *flags.openaiModel != "" {
		opts = append(opts, genai.WithModel(*flags.openaiModel))
	}
	if config.Debug {
		opts = append(opts, genai.WithDebugMode(true), genai.WithStateDir(*flags.stateDir))
	}
	return genai.NewClient(opts...)
}

// buildOrchestrator wires the tools, handler modules, and router
func buildOrchestrator(st store.Store, genaiClient genai.ClientInterface, flags Flags) *flow.Orchestrator {
	transitionTool := flow.NewStateTransitionTool(st)
	profileTool := flow.NewProfileSaveTool(st)
	schedulerTool := flow.NewSchedulerTool(st)
	promptTool := flow.NewPromptGeneratorTool(st, genaiClient, *flags.promptGenPrompt)

	limit := *flags.historyLimit
	coordinator := flow.NewCoordinatorModule(st, genaiClient, *flags.coordinatorPrompt, limit, transitionTool, promptTool)
	intake := flow.NewIntakeModule(st, genaiClient, *flags.intakePrompt, limit, transitionTool, profileTool, schedulerTool, promptTool)
	feedback := flow.NewFeedbackModule(st, genaiClient, *flags.feedbackPrompt, limit, transitionTool, profileTool)

	return flow.NewOrchestrator(st, coordinator, intake, feedback)
}
