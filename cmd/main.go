package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/config"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/delayed"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/dispatcher"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/github"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/metrics"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/phase"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/session"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/state"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/taskstore"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/template"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/webhook"
)

var (
	loadDotEnv    = godotenv.Load
	newTaskStore  = taskstore.NewStore
	newDispatcher = dispatcher.New
	newSubmitter  = func(logger zerolog.Logger) delayed.Submitter { return delayed.NewSpawner(logger) }
	newRunner     = func() session.CommandRunner { return session.ExecRunner{} }
	newMetrics    = metrics.New

	defaultListenServe = http.ListenAndServe
)

func main() {
	if err := run(context.Background(), defaultListenServe); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator failed: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	return logger
}

func run(ctx context.Context, serve func(string, http.Handler) error) error {
	// .env is optional
	_ = loadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg)

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("state_dir", cfg.StateDir).
		Int("cooldown_minutes", cfg.CooldownMinutes).
		Str("template_selector", cfg.TemplateSelector).
		Int("workers", cfg.DispatcherWorkers).
		Int("queue_size", cfg.DispatcherQueueSize).
		Msg("starting webhook orchestrator")

	stateManager := state.NewManager(cfg.StateDir, cfg.CooldownWindow(), logger)
	cleaned := stateManager.CleanupOldEntries(cfg.RetentionDays)
	logger.Info().
		Int("removed_requests", cleaned.RemovedRequests).
		Int("removed_cooldowns", cleaned.RemovedCooldowns).
		Msg("startup state cleanup")

	entries := template.BuiltinCatalog(cfg.TemplatesDir)
	if cfg.TemplateCatalog != "" {
		if entries, err = template.LoadCatalog(cfg.TemplateCatalog, cfg.TemplatesDir); err != nil {
			return fmt.Errorf("failed to load template catalog: %w", err)
		}
	}
	selector, err := template.New(cfg.TemplateSelector, entries, cfg.DefaultTemplate)
	if err != nil {
		return fmt.Errorf("failed to initialize template selector: %w", err)
	}

	plan := phase.DefaultPlan()
	if cfg.PhasePlanFile != "" {
		if plan, err = phase.LoadPlan(cfg.PhasePlanFile); err != nil {
			return fmt.Errorf("failed to load phase plan: %w", err)
		}
	}

	m := newMetrics()
	submitter := newSubmitter(logger)
	hook, err := phase.NewTestingHook(cfg.TestingHook, submitter, filepath.Join(cfg.StateDir, "testing_hook.log"))
	if err != nil {
		return fmt.Errorf("failed to initialize testing hook: %w", err)
	}
	scheduler, err := phase.NewScheduler(phase.Config{
		Plan:          plan,
		Submitter:     submitter,
		Ledger:        phase.NewLedger(filepath.Join(cfg.StateDir, "scheduled_transitions.json"), logger),
		Hook:          hook,
		SenderPath:    cfg.MessageSender,
		TargetSuffix:  cfg.SessionTargetSuffix,
		SubmitTimeout: cfg.SubmitTimeout,
		Observer:      m,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize phase scheduler: %w", err)
	}
	if n := scheduler.PruneFired(time.Duration(cfg.RetentionDays) * 24 * time.Hour); n > 0 {
		logger.Info().Int("pruned", n).Msg("pruned fired phase transitions")
	}

	ghClient, err := github.NewClient(cfg.GitHubToken, cfg.GitHubAPIURL)
	if err != nil {
		return fmt.Errorf("failed to initialize GitHub client: %w", err)
	}
	fetcher := github.NewContentFetcher(ghClient, nil, logger)

	runs := newTaskStore()
	runner := newRunner()
	creator, err := session.NewCreator(session.Config{
		Selector:    selector,
		State:       stateManager,
		Launcher:    session.NewCommandLauncher(runner, cfg.SessionLauncher, cfg.LaunchTimeout, logger),
		Messenger:   session.NewCommandMessenger(runner, cfg.MessageSender, cfg.MessageTimeout),
		Scheduler:   scheduler,
		Runs:        runs,
		Fetcher:     fetcher,
		Observer:    m,
		SettleDelay: cfg.SettleDelay,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session creator: %w", err)
	}

	sessionDispatcher := newDispatcher(creator, dispatcher.Config{
		Workers:   cfg.DispatcherWorkers,
		QueueSize: cfg.DispatcherQueueSize,
	}, logger)
	defer sessionDispatcher.Shutdown(ctx)

	intake, err := webhook.NewIntake(webhook.IntakeConfig{
		State:      stateManager,
		Dispatcher: sessionDispatcher,
		// tracker fetches on the request path are single-pass
		Adapter:    webhook.NewAdapter(fetcher.WithAttempts(1), logger),
		Recorder:   m,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize intake: %w", err)
	}

	server, err := webhook.NewServer(webhook.ServerConfig{
		Intake:         intake,
		State:          stateManager,
		Phases:         scheduler,
		Sessions:       session.NewTmuxProber(runner, cfg.TmuxBin),
		Runs:           runs,
		Metrics:        m.Handler(),
		Gauges:         m,
		Port:           cfg.Port,
		RetentionDays:  cfg.RetentionDays,
		WebhookSecret:  cfg.WebhookSecret,
		AdminJWTSecret: cfg.AdminJWTSecret,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	if cfg.WebhookSecret == "" {
		logger.Warn().Msg("WEBHOOK_SECRET not set, webhook signatures are not verified")
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn().Msg("ADMIN_JWT_SECRET not set, admin endpoints are unauthenticated")
	}
	logger.Info().Str("addr", cfg.Addr()).Msg("server listening")

	if err := serve(cfg.Addr(), server.Router()); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}
