// Package state tracks processed webhook requests and per-project cooldowns.
//
// Both collections live in memory and are rewritten to disk in full after every
// mutation. Each collection is guarded by its own mutex so load-modify-save never
// races between concurrent handlers.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	requestsFile  = "processed_requests.json"
	cooldownsFile = "project_cooldowns.json"
	paramsSuffix  = "_params.json"
)

// MaxRetentionDays bounds every retention window.
const MaxRetentionDays = 36500

// RetentionCutoff returns the instant days calendar days before now. days is
// clamped to MaxRetentionDays so the cutoff never wraps into the future.
func RetentionCutoff(now time.Time, days int) time.Time {
	if days > MaxRetentionDays {
		days = MaxRetentionDays
	}
	return now.AddDate(0, 0, -days)
}

// RequestRecord is the durable dedup entry for one request id.
type RequestRecord struct {
	ProjectName string    `json:"project_name"`
	ProcessedAt time.Time `json:"processed_at"`
	Processed   bool      `json:"processed"`
}

// Snapshot is a point-in-time view used by the admin API.
type Snapshot struct {
	ProcessedRequests int                `json:"processed_requests"`
	ProjectCooldowns  int                `json:"project_cooldowns"`
	CooldownMinutes   float64            `json:"cooldown_minutes"`
	ActiveCooldowns   map[string]float64 `json:"active_cooldowns"`
}

// CleanupResult reports how many entries a retention pass removed.
type CleanupResult struct {
	RemovedRequests  int `json:"removed_requests"`
	RemovedCooldowns int `json:"removed_cooldowns"`
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns the request and cooldown maps.
type Manager struct {
	dir      string
	cooldown time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	reqMu    sync.Mutex
	requests map[string]RequestRecord

	cdMu      sync.Mutex
	cooldowns map[string]time.Time
}

// NewManager loads state from dir. Unreadable or corrupt files are logged and
// treated as empty.
func NewManager(dir string, cooldown time.Duration, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		dir:      dir,
		cooldown: cooldown,
		logger:   logger.With().Str("component", "state").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.logger.Error().Err(err).Str("dir", dir).Msg("failed to create state directory")
	}

	m.requests = make(map[string]RequestRecord)
	if err := m.load(requestsFile, &m.requests); err != nil {
		m.logger.Error().Err(err).Str("file", requestsFile).Msg("failed to load processed requests, starting empty")
		m.requests = make(map[string]RequestRecord)
	}

	m.cooldowns = make(map[string]time.Time)
	if err := m.load(cooldownsFile, &m.cooldowns); err != nil {
		m.logger.Error().Err(err).Str("file", cooldownsFile).Msg("failed to load project cooldowns, starting empty")
		m.cooldowns = make(map[string]time.Time)
	}

	m.logger.Info().
		Int("processed_requests", len(m.requests)).
		Int("project_cooldowns", len(m.cooldowns)).
		Msg("state loaded")
	return m
}

// GenerateRequestID derives the dedup key for a request. The same inputs always
// yield the same id.
func GenerateRequestID(projectName, timestamp string) string {
	sum := sha256.Sum256([]byte(projectName + ":" + timestamp))
	return hex.EncodeToString(sum[:])[:16]
}

// Dir returns the directory holding the state files.
func (m *Manager) Dir() string {
	return m.dir
}

// CooldownWindow returns the configured cooldown.
func (m *Manager) CooldownWindow() time.Duration {
	return m.cooldown
}

// ParamsPath returns the session-parameter file path for a project.
func (m *Manager) ParamsPath(projectName string) string {
	return filepath.Join(m.dir, projectName+paramsSuffix)
}

// IsDuplicate reports whether id was already processed.
func (m *Manager) IsDuplicate(id string) bool {
	m.reqMu.Lock()
	defer m.reqMu.Unlock()
	_, ok := m.requests[id]
	return ok
}

// MarkProcessed records id unconditionally and persists the map.
func (m *Manager) MarkProcessed(id, projectName string) {
	m.reqMu.Lock()
	defer m.reqMu.Unlock()
	m.requests[id] = RequestRecord{ProjectName: projectName, ProcessedAt: m.now(), Processed: true}
	m.saveRequestsLocked()
}

// MarkIfNew records id and returns true if it was not already present. This is
// the linearization point for duplicate deliveries.
func (m *Manager) MarkIfNew(id, projectName string) bool {
	m.reqMu.Lock()
	defer m.reqMu.Unlock()
	if _, ok := m.requests[id]; ok {
		return false
	}
	m.requests[id] = RequestRecord{ProjectName: projectName, ProcessedAt: m.now(), Processed: true}
	m.saveRequestsLocked()
	return true
}

// Unmark removes id so the sender may retry with the same timestamp.
func (m *Manager) Unmark(id string) {
	m.reqMu.Lock()
	defer m.reqMu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return
	}
	delete(m.requests, id)
	m.saveRequestsLocked()
}

// IsInCooldown reports whether the project launched within the cooldown window.
func (m *Manager) IsInCooldown(projectName string) bool {
	return m.CooldownRemaining(projectName) > 0
}

// CooldownRemaining returns the remaining cooldown in minutes, or 0.
func (m *Manager) CooldownRemaining(projectName string) float64 {
	m.cdMu.Lock()
	createdAt, ok := m.cooldowns[projectName]
	m.cdMu.Unlock()
	if !ok {
		return 0
	}
	return m.remaining(createdAt)
}

// SetCooldown starts (or restarts) the cooldown for a project.
func (m *Manager) SetCooldown(projectName string) {
	m.cdMu.Lock()
	defer m.cdMu.Unlock()
	m.cooldowns[projectName] = m.now()
	m.saveCooldownsLocked()
}

// CleanupOldEntries drops records older than days and persists whichever maps
// changed.
func (m *Manager) CleanupOldEntries(days int) CleanupResult {
	cutoff := RetentionCutoff(m.now(), days)
	var res CleanupResult

	m.reqMu.Lock()
	for id, rec := range m.requests {
		if rec.ProcessedAt.Before(cutoff) {
			delete(m.requests, id)
			res.RemovedRequests++
		}
	}
	if res.RemovedRequests > 0 {
		m.saveRequestsLocked()
	}
	m.reqMu.Unlock()

	m.cdMu.Lock()
	for name, createdAt := range m.cooldowns {
		if createdAt.Before(cutoff) {
			delete(m.cooldowns, name)
			res.RemovedCooldowns++
		}
	}
	if res.RemovedCooldowns > 0 {
		m.saveCooldownsLocked()
	}
	m.cdMu.Unlock()

	m.logger.Info().
		Int("days", days).
		Int("removed_requests", res.RemovedRequests).
		Int("removed_cooldowns", res.RemovedCooldowns).
		Msg("state cleanup finished")
	return res
}

// Snapshot returns counts and the currently active cooldowns.
func (m *Manager) Snapshot() Snapshot {
	snap := Snapshot{
		CooldownMinutes: m.cooldown.Minutes(),
		ActiveCooldowns: make(map[string]float64),
	}

	m.reqMu.Lock()
	snap.ProcessedRequests = len(m.requests)
	m.reqMu.Unlock()

	m.cdMu.Lock()
	snap.ProjectCooldowns = len(m.cooldowns)
	for name, createdAt := range m.cooldowns {
		if rem := m.remaining(createdAt); rem > 0 {
			snap.ActiveCooldowns[name] = RoundMinutes(rem)
		}
	}
	m.cdMu.Unlock()

	return snap
}

func (m *Manager) remaining(createdAt time.Time) float64 {
	left := createdAt.Add(m.cooldown).Sub(m.now())
	if left <= 0 {
		return 0
	}
	return left.Minutes()
}

func (m *Manager) load(name string, into any) error {
	data, err := os.ReadFile(filepath.Join(m.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, into)
}

func (m *Manager) saveRequestsLocked() {
	if err := WriteJSONAtomic(filepath.Join(m.dir, requestsFile), m.requests); err != nil {
		m.logger.Error().Err(err).Str("file", requestsFile).Msg("failed to persist processed requests")
	}
}

func (m *Manager) saveCooldownsLocked() {
	if err := WriteJSONAtomic(filepath.Join(m.dir, cooldownsFile), m.cooldowns); err != nil {
		m.logger.Error().Err(err).Str("file", cooldownsFile).Msg("failed to persist project cooldowns")
	}
}

// WriteJSONAtomic replaces path with the JSON encoding of v via temp file + rename.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// RoundMinutes rounds a minute count to two decimals for API responses.
func RoundMinutes(minutes float64) float64 {
	return math.Round(minutes*100) / 100
}
