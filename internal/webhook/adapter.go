package webhook

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/github"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/prompt"
)

const techStackNote = " Tech stack: Next.js 14+ with App Router, Clerk authentication, Prisma ORM with SQLite database (local development, no external DB needed), Tailwind CSS."

// ContentFetcher downloads a document by URL.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Adapter rewrites ideabrow-automation payloads into the intake shape.
type Adapter struct {
	fetcher ContentFetcher
	logger  zerolog.Logger
}

// NewAdapter creates an Adapter. A nil fetcher leaves tracker content empty.
func NewAdapter(fetcher ContentFetcher, logger zerolog.Logger) *Adapter {
	return &Adapter{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "webhook.adapter").Logger(),
	}
}

// IsIdeabrowPayload reports whether data carries both a repository URL and a
// tracker URL, which marks the ideabrow format.
func IsIdeabrowPayload(data map[string]any) bool {
	_, hasRepo := data["repo_url"]
	_, hasTracker := data["tracker_url"]
	return hasRepo && hasTracker
}

// Transform returns the canonical payload for an ideabrow payload. A failed
// tracker fetch is logged and yields empty tracker content.
func (a *Adapter) Transform(ctx context.Context, data map[string]any) map[string]any {
	repoURL := stringField(data, "repo_url")
	trackerURL := stringField(data, "tracker_url")

	tracker := ""
	if trackerURL != "" && a.fetcher != nil {
		content, err := a.fetcher.Fetch(ctx, trackerURL)
		if err != nil {
			a.logger.Error().Err(err).Str("url", trackerURL).Msg("failed to fetch progress tracker")
		} else {
			tracker = content
		}
	}

	requirements := stringField(data, "requirements_summary")
	if requirements != "" && !strings.Contains(requirements, "Tech stack:") {
		requirements += techStackNote
	}

	name, ok := data["project_name"]
	if !ok {
		name = "unnamed-project"
	}

	out := map[string]any{
		"project_name":             name,
		"requirements_summary":     requirements,
		"template_hint":            data["template_hint"],
		"github_repo":              github.RepoPath(repoURL),
		"progress_tracker_content": tracker,
		"starter_prompt":           prompt.StarterPrompt(tracker),
		"original_repo_url":        github.SSHCloneURL(repoURL),
		"original_timestamp":       stringField(data, "timestamp"),
	}

	a.logger.Info().
		Str("github_repo", out["github_repo"].(string)).
		Int("tracker_bytes", len(tracker)).
		Msg("transformed ideabrow payload")
	return out
}
