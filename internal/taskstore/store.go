package taskstore

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is one session-creation workflow execution.
type Run struct {
	ID           string     `json:"id"`
	ProjectName  string     `json:"project_name"`
	RequestID    string     `json:"request_id"`
	TemplateName string     `json:"template_name,omitempty"`
	Status       RunStatus  `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Logs         []LogEntry `json:"logs"`
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // info, error, success
	Message   string    `json:"message"`
}

type Store struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func NewStore() *Store {
	return &Store{
		runs: make(map[string]*Run),
	}
}

// Create stores run, assigning an id when it has none.
func (s *Store) Create(run *Run) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = StatusPending
	}
	run.CreatedAt = time.Now()
	run.UpdatedAt = run.CreatedAt
	s.runs[run.ID] = run
	return run.ID
}

// Get returns a copy of the run.
func (s *Store) Get(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return copyRun(run), true
}

// List returns runs newest first. An empty project lists every run.
func (s *Store) List(project string) []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		if project == "" || run.ProjectName == project {
			runs = append(runs, copyRun(run))
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

// LatestForProject returns the most recent run for project.
func (s *Store) LatestForProject(project string) (Run, bool) {
	runs := s.List(project)
	if len(runs) == 0 {
		return Run{}, false
	}
	return runs[0], true
}

func (s *Store) UpdateStatus(id string, status RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Status = status
		run.UpdatedAt = time.Now()
	}
}

func (s *Store) AddLog(id string, level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Logs = append(run.Logs, LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   message,
		})
		run.UpdatedAt = time.Now()
	}
}

// SetTemplate records the template chosen for a run.
func (s *Store) SetTemplate(id, templateName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.TemplateName = templateName
		run.UpdatedAt = time.Now()
	}
}

// Prune removes finished runs last updated before cutoff.
func (s *Store) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, run := range s.runs {
		finished := run.Status == StatusCompleted || run.Status == StatusFailed
		if finished && run.UpdatedAt.Before(cutoff) {
			delete(s.runs, id)
			removed++
		}
	}
	return removed
}

func copyRun(run *Run) Run {
	out := *run
	out.Logs = append([]LogEntry(nil), run.Logs...)
	return out
}
