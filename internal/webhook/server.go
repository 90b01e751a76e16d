package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/phase"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/state"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/taskstore"
)

const maxPayloadBytes = 1 << 20

// PhaseController is the part of the phase scheduler the admin API uses.
type PhaseController interface {
	Plan() *phase.Plan
	Reschedule(ctx context.Context, project string, phase int, delay time.Duration) (phase.Transition, error)
	Transitions(project string) []phase.Transition
}

// SessionChecker reports whether a session is running.
type SessionChecker interface {
	HasSession(ctx context.Context, name string) bool
}

// StateGauges receives tracked-state counts before a metrics scrape.
type StateGauges interface {
	SetState(processedRequests, activeCooldowns int)
}

// ServerConfig wires a Server.
type ServerConfig struct {
	Intake         *Intake
	State          *state.Manager
	Phases         PhaseController
	Sessions       SessionChecker
	Runs           *taskstore.Store
	Metrics        http.Handler
	Gauges         StateGauges
	Port           int
	RetentionDays  int
	WebhookSecret  string
	AdminJWTSecret string
}

// Server exposes intake, status, admin and metrics over HTTP.
type Server struct {
	cfg    ServerConfig
	logger zerolog.Logger
}

// NewServer creates a Server.
func NewServer(cfg ServerConfig, logger zerolog.Logger) (*Server, error) {
	if cfg.Intake == nil || cfg.State == nil {
		return nil, errors.New("webhook server: intake and state are required")
	}
	if cfg.Runs == nil {
		cfg.Runs = taskstore.NewStore()
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	return &Server{cfg: cfg, logger: logger.With().Str("component", "webhook.server").Logger()}, nil
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/", s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/webhook/{token}", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/test", s.handleTest).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status/{project}", s.handleStatus).Methods(http.MethodGet)

	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)
	}

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(AdminAuth(s.cfg.AdminJWTSecret))
	admin.HandleFunc("/cleanup", s.handleCleanup).Methods(http.MethodPost)
	admin.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	admin.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	if s.cfg.Phases != nil {
		admin.HandleFunc("/phases", s.handlePhases).Methods(http.MethodGet)
		admin.HandleFunc("/reschedule", s.handleReschedule).Methods(http.MethodPost)
	}

	return r
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "ideabrow-orchestrator",
		"status":  "running",
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if token := mux.Vars(r)["token"]; token != "" {
		s.logger.Info().Str("token", token).Msg("webhook called with token")
	}
	data, ok := s.readPayload(w, r)
	if !ok {
		return
	}
	s.respond(w, s.cfg.Intake.Handle(r.Context(), data))
}

// handleTest merges the caller's fields over a sample payload and runs the
// normal intake path.
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"project_name":             "test-blog",
		"requirements_summary":     "Build a simple blog with markdown support",
		"template_hint":            nil,
		"github_repo":              "test/test-blog",
		"progress_tracker_content": "# Project: Test Blog\n\n## Phase 1: Setup\n- [ ] Initialize project\n- [ ] Set up database",
		"starter_prompt":           "Let's build a blog application. Start by setting up the project structure.",
	}
	override, ok := s.readPayload(w, r)
	if !ok {
		return
	}
	for k, v := range override {
		data[k] = v
	}
	s.logger.Info().Msg("test endpoint called")
	s.respond(w, s.cfg.Intake.Handle(r.Context(), data))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"port":             s.cfg.Port,
		"state_manager":    "active",
		"cooldown_minutes": s.cfg.State.CooldownWindow().Minutes(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	project := mux.Vars(r)["project"]

	sessionExists := false
	if s.cfg.Sessions != nil {
		sessionExists = s.cfg.Sessions.HasSession(r.Context(), project)
	}

	paramsPath := s.cfg.State.ParamsPath(project)
	_, err := os.Stat(paramsPath)
	hasState := err == nil
	var stateFile any
	if hasState {
		stateFile = paramsPath
	}

	inCooldown := s.cfg.State.IsInCooldown(project)
	remaining := 0.0
	if inCooldown {
		remaining = state.RoundMinutes(s.cfg.State.CooldownRemaining(project))
	}

	body := map[string]any{
		"project_name":               project,
		"session_exists":             sessionExists,
		"has_state":                  hasState,
		"state_file":                 stateFile,
		"in_cooldown":                inCooldown,
		"cooldown_remaining_minutes": remaining,
	}
	if run, ok := s.cfg.Runs.LatestForProject(project); ok {
		body["last_run"] = run
	}
	if s.cfg.Phases != nil {
		body["transitions"] = s.cfg.Phases.Transitions(project)
	}
	writeJSON(w, http.StatusOK, body)
}

type cleanupRequest struct {
	Days *int `json:"days"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	days := s.cfg.RetentionDays
	if req.Days != nil {
		days = *req.Days
	}
	if days <= 0 || days > state.MaxRetentionDays {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": fmt.Sprintf("days must be between 1 and %d", state.MaxRetentionDays),
		})
		return
	}

	res := s.cfg.State.CleanupOldEntries(days)
	removedRuns := s.cfg.Runs.Prune(state.RetentionCutoff(time.Now(), days))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "cleaned",
		"days":              days,
		"removed_requests":  res.RemovedRequests,
		"removed_cooldowns": res.RemovedCooldowns,
		"removed_runs":      removedRuns,
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.State.Snapshot())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": s.cfg.Runs.List(r.URL.Query().Get("project")),
	})
}

func (s *Server) handlePhases(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"phases": s.cfg.Phases.Plan().Offsets(),
	})
}

type rescheduleRequest struct {
	ProjectName  string   `json:"project_name"`
	Phase        int      `json:"phase"`
	DelayMinutes *float64 `json:"delay_minutes"`
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	project := NormalizeProjectName(req.ProjectName)
	if project == "" || req.DelayMinutes == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "project_name, phase and delay_minutes are required",
		})
		return
	}

	minutes := *req.DelayMinutes
	if minutes < 0 || minutes > phase.MaxRescheduleDelay.Minutes() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": phase.ErrInvalidDelay.Error()})
		return
	}

	delay := time.Duration(minutes * float64(time.Minute))
	t, err := s.cfg.Phases.Reschedule(r.Context(), project, req.Phase, delay)
	switch {
	case errors.Is(err, phase.ErrUnknownPhase), errors.Is(err, phase.ErrInvalidDelay):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error().Err(err).Str("project", project).Int("phase", req.Phase).Msg("reschedule failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "rescheduled",
		"transition": t,
	})
}

func (s *Server) metricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Gauges != nil {
			snap := s.cfg.State.Snapshot()
			s.cfg.Gauges.SetState(snap.ProcessedRequests, len(snap.ActiveCooldowns))
		}
		s.cfg.Metrics.ServeHTTP(w, r)
	})
}

// readPayload reads, authenticates and decodes a JSON object body. An empty
// body decodes to an empty object.
func (s *Server) readPayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		s.logger.Warn().Err(err).Msg("error reading payload")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Error reading payload"})
		return nil, false
	}

	if s.cfg.WebhookSecret != "" {
		signature := r.Header.Get(SignatureHeader)
		if err := ValidateSignatureHeader(signature); err != nil {
			s.logger.Warn().Err(err).Msg("invalid signature header")
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid signature"})
			return nil, false
		}
		if !VerifySignature(payload, signature, s.cfg.WebhookSecret) {
			s.logger.Warn().Msg("signature verification failed")
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid signature"})
			return nil, false
		}
	}

	data := map[string]any{}
	if len(payload) == 0 {
		return data, true
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		s.logger.Warn().Err(err).Msg("invalid JSON payload")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON payload"})
		return nil, false
	}
	return data, true
}

func (s *Server) respond(w http.ResponseWriter, resp Response) {
	writeJSON(w, resp.Status, resp.Body)
}

func decodeOptional(w http.ResponseWriter, r *http.Request, into any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Error reading payload"})
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, into); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON payload"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
