package webhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/state"
)

var requiredFields = []string{"project_name", "requirements_summary"}

// Response is an intake decision ready to be written as JSON.
type Response struct {
	Status int
	Body   map[string]any
}

// IntakeConfig wires an Intake.
type IntakeConfig struct {
	State      *state.Manager
	Dispatcher TaskDispatcher
	Adapter    *Adapter
	Recorder   Recorder
	Now        func() time.Time
}

// Intake turns a raw payload into exactly one accept or reject decision.
type Intake struct {
	state      *state.Manager
	dispatcher TaskDispatcher
	adapter    *Adapter
	recorder   Recorder
	now        func() time.Time
	logger     zerolog.Logger
}

// NewIntake creates an Intake.
func NewIntake(cfg IntakeConfig, logger zerolog.Logger) (*Intake, error) {
	if cfg.State == nil {
		return nil, errors.New("webhook intake: state manager is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("webhook intake: dispatcher is required")
	}
	if cfg.Adapter == nil {
		cfg.Adapter = NewAdapter(nil, logger)
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Intake{
		state:      cfg.State,
		dispatcher: cfg.Dispatcher,
		adapter:    cfg.Adapter,
		recorder:   cfg.Recorder,
		now:        cfg.Now,
		logger:     logger.With().Str("component", "webhook.intake").Logger(),
	}, nil
}

// Handle runs the intake checks in order: duplicate, required fields,
// cooldown, then the atomic mark and dispatch. Nothing here waits on an
// external process.
func (in *Intake) Handle(ctx context.Context, data map[string]any) Response {
	if data == nil {
		data = map[string]any{}
	}
	if IsIdeabrowPayload(data) {
		data = in.adapter.Transform(ctx, data)
	}

	rawName := stringField(data, "project_name")
	if rawName == "" {
		rawName = "unknown"
	}
	receivedAt := in.now()
	timestamp := firstNonEmpty(
		stringField(data, "original_timestamp"),
		stringField(data, "timestamp"),
		receivedAt.Format(time.RFC3339Nano),
	)
	requestID := state.GenerateRequestID(rawName, timestamp)
	log := in.logger.With().Str("request_id", requestID).Logger()

	if in.state.IsDuplicate(requestID) {
		return in.duplicate(log, rawName, requestID)
	}

	var missing []string
	for _, field := range requiredFields {
		if stringField(data, field) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return in.invalid(log, missing, requestID)
	}

	name := NormalizeProjectName(stringField(data, "project_name"))
	if name == "" {
		return in.invalid(log, []string{"project_name"}, requestID)
	}
	log = log.With().Str("project", name).Logger()

	if in.state.IsInCooldown(name) {
		remaining := state.RoundMinutes(in.state.CooldownRemaining(name))
		log.Warn().Float64("remaining_minutes", remaining).Msg("project in cooldown")
		in.recorder.RecordWebhook(StatusCooldown)
		return Response{Status: 429, Body: map[string]any{
			"status":                     "cooldown",
			"message":                    "Project in cooldown period",
			"project_name":               name,
			"cooldown_remaining_minutes": remaining,
			"request_id":                 requestID,
		}}
	}

	if !in.state.MarkIfNew(requestID, name) {
		return in.duplicate(log, name, requestID)
	}

	req := &ProjectRequest{
		RequestID:           requestID,
		ProjectName:         name,
		RawProjectName:      stringField(data, "project_name"),
		RequirementsSummary: stringField(data, "requirements_summary"),
		TemplateHint:        stringField(data, "template_hint"),
		GitHubRepo:          stringField(data, "github_repo"),
		RepoURL:             stringField(data, "repo_url"),
		OriginalRepoURL:     stringField(data, "original_repo_url"),
		TrackerContent:      firstNonEmpty(stringField(data, "progress_tracker_content"), stringField(data, "progress_tracker")),
		TrackerURL:          stringField(data, "tracker_url"),
		StarterPrompt:       stringField(data, "starter_prompt"),
		Timestamp:           timestamp,
		ReceivedAt:          receivedAt,
	}

	if err := in.dispatcher.Enqueue(req); err != nil {
		in.state.Unmark(requestID)
		if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
			log.Error().Err(err).Msg("session queue unavailable")
			in.recorder.RecordWebhook(StatusUnavailable)
			return Response{Status: 503, Body: map[string]any{
				"error":      "Session queue unavailable, retry later",
				"request_id": requestID,
			}}
		}
		log.Error().Err(err).Msg("failed to dispatch session workflow")
		in.recorder.RecordWebhook(StatusError)
		return Response{Status: 500, Body: map[string]any{
			"error":      err.Error(),
			"request_id": requestID,
		}}
	}

	log.Info().Msg("request accepted")
	in.recorder.RecordWebhook(StatusAccepted)
	return Response{Status: 202, Body: map[string]any{
		"status":           "accepted",
		"message":          fmt.Sprintf("Creating tmux session for %s", name),
		"project_name":     name,
		"request_id":       requestID,
		"cooldown_minutes": in.state.CooldownWindow().Minutes(),
	}}
}

func (in *Intake) duplicate(log zerolog.Logger, name, requestID string) Response {
	log.Warn().Str("project", name).Msg("duplicate request ignored")
	in.recorder.RecordWebhook(StatusDuplicate)
	return Response{Status: 409, Body: map[string]any{
		"status":       "duplicate",
		"message":      "Request already processed",
		"project_name": name,
		"request_id":   requestID,
	}}
}

func (in *Intake) invalid(log zerolog.Logger, missing []string, requestID string) Response {
	log.Warn().Strs("missing_fields", missing).Msg("request missing required fields")
	in.recorder.RecordWebhook(StatusInvalid)
	return Response{Status: 400, Body: map[string]any{
		"error":          fmt.Sprintf("Missing required fields: [%s]", strings.Join(missing, ", ")),
		"missing_fields": missing,
		"request_id":     requestID,
	}}
}

// stringField returns data[key] as a string. Numbers keep their JSON spelling;
// null, objects and arrays count as absent.
func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
