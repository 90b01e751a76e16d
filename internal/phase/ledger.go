package phase

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/delayed"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/state"
)

// Transition kinds.
const (
	KindPhase       = "phase"
	KindTestingHook = "testing_hook"
)

// Transition is a submitted delayed phase message.
type Transition struct {
	Project     string         `json:"project_name"`
	Phase       int            `json:"phase"`
	PhaseName   string         `json:"phase_name"`
	Kind        string         `json:"kind"`
	Target      string         `json:"target,omitempty"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	FireAt      time.Time      `json:"fire_at"`
	Handle      delayed.Handle `json:"handle"`
	Pending     bool           `json:"pending"`
}

func ledgerKey(project string, phase int, kind string) string {
	return fmt.Sprintf("%s#%d#%s", project, phase, kind)
}

// Ledger remembers the latest submission per (project, phase, kind) so a
// reschedule can find and cancel it. It does not make transitions durable;
// the detached processes do that.
type Ledger struct {
	path   string
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]Transition
}

// NewLedger loads the ledger at path. A missing or corrupt file starts empty.
func NewLedger(path string, logger zerolog.Logger) *Ledger {
	l := &Ledger{
		path:    path,
		logger:  logger.With().Str("component", "phase.ledger").Logger(),
		entries: make(map[string]Transition),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		l.logger.Error().Err(err).Str("file", path).Msg("failed to read transition ledger, starting empty")
	case len(data) > 0:
		if err := json.Unmarshal(data, &l.entries); err != nil {
			l.logger.Error().Err(err).Str("file", path).Msg("failed to parse transition ledger, starting empty")
			l.entries = make(map[string]Transition)
		}
	}
	return l
}

// Record stores t, replacing any previous submission for the same key.
func (l *Ledger) Record(t Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[ledgerKey(t.Project, t.Phase, t.Kind)] = t
	l.saveLocked()
}

// Get returns the latest submission for a key.
func (l *Ledger) Get(project string, phase int, kind string) (Transition, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.entries[ledgerKey(project, phase, kind)]
	return t, ok
}

// List returns the transitions for project, or all transitions when project is
// empty, ordered by project then fire time.
func (l *Ledger) List(project string) []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Transition, 0, len(l.entries))
	for _, t := range l.entries {
		if project == "" || t.Project == project {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Project != out[j].Project {
			return out[i].Project < out[j].Project
		}
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Prune drops transitions that fired before cutoff.
func (l *Ledger) Prune(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, t := range l.entries {
		if t.FireAt.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	if removed > 0 {
		l.saveLocked()
	}
	return removed
}

func (l *Ledger) saveLocked() {
	if err := state.WriteJSONAtomic(l.path, l.entries); err != nil {
		l.logger.Error().Err(err).Str("file", l.path).Msg("failed to persist transition ledger")
	}
}
