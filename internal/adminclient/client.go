// Package adminclient talks to the orchestrator's admin API.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/config"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/phase"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/state"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/taskstore"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/webhook"
)

const tokenTTL = 5 * time.Minute

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("orchestrator API error: %d - %s", e.StatusCode, e.Message)
}

// Health is the /health body.
type Health struct {
	Status          string  `json:"status"`
	Port            int     `json:"port"`
	StateManager    string  `json:"state_manager"`
	CooldownMinutes float64 `json:"cooldown_minutes"`
}

// Status is the /status/{project} body.
type Status struct {
	ProjectName              string             `json:"project_name"`
	SessionExists            bool               `json:"session_exists"`
	HasState                 bool               `json:"has_state"`
	StateFile                *string            `json:"state_file"`
	InCooldown               bool               `json:"in_cooldown"`
	CooldownRemainingMinutes float64            `json:"cooldown_remaining_minutes"`
	LastRun                  *taskstore.Run     `json:"last_run,omitempty"`
	Transitions              []phase.Transition `json:"transitions,omitempty"`
}

// CleanupResult is the /admin/cleanup body.
type CleanupResult struct {
	Status           string `json:"status"`
	Days             int    `json:"days"`
	RemovedRequests  int    `json:"removed_requests"`
	RemovedCooldowns int    `json:"removed_cooldowns"`
	RemovedRuns      int    `json:"removed_runs"`
}

// Client calls the admin API, minting a fresh token per request when a
// secret is configured.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// New creates a Client from client configuration.
func New(cfg *config.ClientConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secret:     cfg.AdminJWTSecret,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Status calls GET /status/{project}.
func (c *Client) Status(ctx context.Context, project string) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(project), nil, &out)
	return out, err
}

// State calls GET /admin/state.
func (c *Client) State(ctx context.Context) (state.Snapshot, error) {
	var out state.Snapshot
	err := c.do(ctx, http.MethodGet, "/admin/state", nil, &out)
	return out, err
}

// Cleanup calls POST /admin/cleanup. days <= 0 uses the server default.
func (c *Client) Cleanup(ctx context.Context, days int) (CleanupResult, error) {
	body := map[string]any{}
	if days > 0 {
		body["days"] = days
	}
	var out CleanupResult
	err := c.do(ctx, http.MethodPost, "/admin/cleanup", body, &out)
	return out, err
}

// Reschedule calls POST /admin/reschedule.
func (c *Client) Reschedule(ctx context.Context, project string, phaseNum int, delayMinutes float64) (phase.Transition, error) {
	var out struct {
		Transition phase.Transition `json:"transition"`
	}
	err := c.do(ctx, http.MethodPost, "/admin/reschedule", map[string]any{
		"project_name":  project,
		"phase":         phaseNum,
		"delay_minutes": delayMinutes,
	}, &out)
	return out.Transition, err
}

// Phases calls GET /admin/phases.
func (c *Client) Phases(ctx context.Context) ([]phase.Offset, error) {
	var out struct {
		Phases []phase.Offset `json:"phases"`
	}
	err := c.do(ctx, http.MethodGet, "/admin/phases", nil, &out)
	return out.Phases, err
}

// Sessions calls GET /admin/sessions, optionally filtered by project.
func (c *Client) Sessions(ctx context.Context, project string) ([]taskstore.Run, error) {
	path := "/admin/sessions"
	if project != "" {
		path += "?project=" + url.QueryEscape(project)
	}
	var out struct {
		Runs []taskstore.Run `json:"runs"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Runs, err
}

func (c *Client) do(ctx context.Context, method, path string, body, into any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		token, err := webhook.MintAdminToken(c.secret, c.now(), tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to mint admin token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
