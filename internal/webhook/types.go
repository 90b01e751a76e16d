package webhook

import "time"

// ProjectRequest is an accepted, deduplicated request to create a session.
type ProjectRequest struct {
	RequestID           string
	ProjectName         string // normalized
	RawProjectName      string
	RequirementsSummary string
	TemplateHint        string
	GitHubRepo          string
	RepoURL             string
	OriginalRepoURL     string
	TrackerContent      string
	TrackerURL          string
	StarterPrompt       string
	Timestamp           string
	ReceivedAt          time.Time
}

// RepoReference returns the repository the launcher should clone, preferring
// the SSH form produced by the adapter over the caller's own fields.
func (r *ProjectRequest) RepoReference() string {
	switch {
	case r.OriginalRepoURL != "":
		return r.OriginalRepoURL
	case r.RepoURL != "":
		return r.RepoURL
	default:
		return r.GitHubRepo
	}
}

// TaskDispatcher runs accepted requests off the request path.
type TaskDispatcher interface {
	Enqueue(req *ProjectRequest) error
}

// Recorder receives intake decisions.
type Recorder interface {
	RecordWebhook(status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWebhook(string) {}

// Intake decision labels.
const (
	StatusAccepted    = "accepted"
	StatusDuplicate   = "duplicate"
	StatusCooldown    = "cooldown"
	StatusInvalid     = "invalid"
	StatusUnavailable = "unavailable"
	StatusError       = "error"
)
