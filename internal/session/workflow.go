// Package session runs the session-creation workflow for accepted requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/phase"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/prompt"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/state"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/taskstore"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/template"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/webhook"
)

// Workflow outcomes.
const (
	OutcomeLaunched     = "launched"
	OutcomeDegraded     = "degraded"
	OutcomeParamsFailed = "params_failed"
	OutcomeLaunchFailed = "launch_failed"
)

// Launcher starts a session.
type Launcher interface {
	Launch(ctx context.Context, project, templatePath, paramsFile string) error
}

// Messenger delivers a message to a session.
type Messenger interface {
	Send(ctx context.Context, target, message string) error
}

// PhaseScheduler turns the phase plan into delayed deliveries.
type PhaseScheduler interface {
	ScheduleAll(ctx context.Context, project string) []phase.Transition
	Target(project string) string
	Plan() *phase.Plan
}

// Observer receives workflow outcomes.
type Observer interface {
	RecordWorkflow(outcome string, seconds float64)
}

type nopObserver struct{}

func (nopObserver) RecordWorkflow(string, float64) {}

// Params is the hand-off file read back by the session launcher.
type Params struct {
	ProjectName     string `json:"project_name"`
	TemplatePath    string `json:"template_path"`
	TemplateName    string `json:"template_name"`
	GitHubRepo      string `json:"github_repo"`
	ProgressTracker string `json:"progress_tracker"`
	StarterPrompt   string `json:"starter_prompt"`
	Timestamp       string `json:"timestamp"`
	RequestID       string `json:"request_id"`
}

// Config wires a Creator.
type Config struct {
	Selector    template.Selector
	State       *state.Manager
	Launcher    Launcher
	Messenger   Messenger
	Scheduler   PhaseScheduler
	Runs        *taskstore.Store
	Fetcher     webhook.ContentFetcher
	Observer    Observer
	InitMessage string
	SettleDelay time.Duration
	Now         func() time.Time
	Sleep       func(ctx context.Context, d time.Duration)
}

// Creator runs the session-creation workflow.
type Creator struct {
	cfg    Config
	logger zerolog.Logger
}

// NewCreator creates a Creator.
func NewCreator(cfg Config, logger zerolog.Logger) (*Creator, error) {
	switch {
	case cfg.Selector == nil:
		return nil, errors.New("session creator: selector is required")
	case cfg.State == nil:
		return nil, errors.New("session creator: state manager is required")
	case cfg.Launcher == nil:
		return nil, errors.New("session creator: launcher is required")
	case cfg.Messenger == nil:
		return nil, errors.New("session creator: messenger is required")
	case cfg.Scheduler == nil:
		return nil, errors.New("session creator: scheduler is required")
	}
	if cfg.Runs == nil {
		cfg.Runs = taskstore.NewStore()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.InitMessage == "" {
		cfg.InitMessage = prompt.InitMessage
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &Creator{cfg: cfg, logger: logger.With().Str("component", "session.creator").Logger()}, nil
}

// Execute launches a session for req. Launch failures are returned and leave
// the project without a cooldown. Once the launcher succeeds, message delivery
// failures are logged and the remaining steps still run.
func (c *Creator) Execute(ctx context.Context, req *webhook.ProjectRequest) error {
	if req == nil {
		return errors.New("session creator: request is nil")
	}
	started := c.cfg.Now()
	log := c.logger.With().Str("project", req.ProjectName).Str("request_id", req.RequestID).Logger()
	runs := c.cfg.Runs

	runID := runs.Create(&taskstore.Run{ProjectName: req.ProjectName, RequestID: req.RequestID})
	runs.UpdateStatus(runID, taskstore.StatusRunning)

	fail := func(outcome string, err error) error {
		log.Error().Err(err).Str("outcome", outcome).Msg("session creation failed")
		runs.AddLog(runID, "error", err.Error())
		runs.UpdateStatus(runID, taskstore.StatusFailed)
		c.cfg.Observer.RecordWorkflow(outcome, c.cfg.Now().Sub(started).Seconds())
		return err
	}

	tracker := c.tracker(ctx, log, req)

	ref := c.cfg.Selector.Select(req.RequirementsSummary, req.TemplateHint)
	runs.SetTemplate(runID, ref.Name)
	runs.AddLog(runID, "info", fmt.Sprintf("selected template %s (%s)", ref.Name, ref.Reason))
	log.Info().Str("template", ref.Name).Str("reason", ref.Reason).Msg("template selected")

	params := Params{
		ProjectName:     req.ProjectName,
		TemplatePath:    ref.Path,
		TemplateName:    ref.Name,
		GitHubRepo:      req.RepoReference(),
		ProgressTracker: tracker,
		StarterPrompt:   req.StarterPrompt,
		Timestamp:       c.cfg.Now().Format(time.RFC3339Nano),
		RequestID:       req.RequestID,
	}
	paramsFile := c.cfg.State.ParamsPath(req.ProjectName)
	if err := state.WriteJSONAtomic(paramsFile, params); err != nil {
		return fail(OutcomeParamsFailed, fmt.Errorf("save session parameters: %w", err))
	}
	log.Info().Str("params_file", paramsFile).Msg("saved session parameters")

	if err := c.cfg.Launcher.Launch(ctx, req.ProjectName, ref.Path, paramsFile); err != nil {
		return fail(OutcomeLaunchFailed, err)
	}
	runs.AddLog(runID, "success", "session launched")
	log.Info().Msg("session launched")

	c.cfg.State.SetCooldown(req.ProjectName)

	target := c.cfg.Scheduler.Target(req.ProjectName)
	degraded := false

	initMsg := prompt.Render(c.cfg.InitMessage, prompt.Vars{
		prompt.KeyProjectName:  req.ProjectName,
		prompt.KeyTemplateName: orNA(ref.Name),
		prompt.KeyGitHubRepo:   orNA(params.GitHubRepo),
		prompt.KeyTimestamp:    params.Timestamp,
	})
	if err := c.cfg.Messenger.Send(ctx, target, initMsg); err != nil {
		degraded = true
		log.Error().Err(err).Msg("failed to send initialization message")
		runs.AddLog(runID, "error", "initialization message failed: "+err.Error())
	} else {
		log.Info().Msg("initialization message sent")
		runs.AddLog(runID, "info", "initialization message sent")
	}

	starter := req.StarterPrompt
	if starter == "" && tracker != "" {
		starter = prompt.StarterPrompt(tracker)
	}
	if starter != "" {
		c.cfg.Sleep(ctx, c.cfg.SettleDelay)
		if err := c.cfg.Messenger.Send(ctx, target, starter); err != nil {
			degraded = true
			log.Error().Err(err).Msg("failed to send starter prompt")
			runs.AddLog(runID, "error", "starter prompt failed: "+err.Error())
		} else {
			log.Info().Msg("starter prompt sent")
			runs.AddLog(runID, "info", "starter prompt sent")
		}
	}

	transitions := c.cfg.Scheduler.ScheduleAll(ctx, req.ProjectName)
	if len(transitions) < c.cfg.Scheduler.Plan().Len()-1 {
		degraded = true
	}
	runs.AddLog(runID, "info", fmt.Sprintf("scheduled %d phase transitions", len(transitions)))

	outcome := OutcomeLaunched
	if degraded {
		outcome = OutcomeDegraded
	}
	runs.UpdateStatus(runID, taskstore.StatusCompleted)
	c.cfg.Observer.RecordWorkflow(outcome, c.cfg.Now().Sub(started).Seconds())
	log.Info().Str("outcome", outcome).Int("transitions", len(transitions)).Msg("session creation finished")
	return nil
}

// tracker returns the request's tracker content, fetching it when only a URL
// was supplied.
func (c *Creator) tracker(ctx context.Context, log zerolog.Logger, req *webhook.ProjectRequest) string {
	if req.TrackerContent != "" || req.TrackerURL == "" || c.cfg.Fetcher == nil {
		return req.TrackerContent
	}
	content, err := c.cfg.Fetcher.Fetch(ctx, req.TrackerURL)
	if err != nil {
		log.Error().Err(err).Str("url", req.TrackerURL).Msg("failed to fetch progress tracker")
		return ""
	}
	return content
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
