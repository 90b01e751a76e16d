// Package phase turns the phase plan into delayed transition messages for a
// running session.
package phase

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/prompt"
)

// Phase is one entry of the plan.
type Phase struct {
	Number          int    `yaml:"number" json:"number"`
	Name            string `yaml:"name" json:"name"`
	DurationMinutes int    `yaml:"duration_minutes" json:"duration_minutes"`
	Message         string `yaml:"message" json:"-"`
}

// Offset pairs a phase with its start offset from session launch.
type Offset struct {
	Phase              `yaml:",inline"`
	StartOffsetMinutes int `yaml:"start_offset_minutes" json:"start_offset_minutes"`
}

type planFile struct {
	Phases []Phase `yaml:"phases"`
}

// Plan is the ordered, immutable phase registry.
type Plan struct {
	phases []Phase
}

// DefaultPlan returns the five-phase plan.
func DefaultPlan() *Plan {
	phases := []Phase{
		{Number: 1, Name: "Template Analysis & Setup", DurationMinutes: 15},
		{Number: 2, Name: "Core Feature Development", DurationMinutes: 30},
		{Number: 3, Name: "Enhanced Features & Integration", DurationMinutes: 30},
		{Number: 4, Name: "Polish & Testing", DurationMinutes: 20},
		{Number: 5, Name: "Final Review & Git Commit", DurationMinutes: 15},
	}
	for i := range phases {
		phases[i].Message = prompt.DefaultPhaseMessages[phases[i].Number]
	}
	return &Plan{phases: phases}
}

// NewPlan validates phases and builds a Plan. Phases must number 1..K without
// gaps and have positive durations. Missing messages fall back to the defaults.
func NewPlan(phases []Phase) (*Plan, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: no phases", ErrInvalidPlan)
	}

	sorted := make([]Phase, len(phases))
	copy(sorted, phases)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	allowed := map[string]bool{prompt.KeyProjectName: true, prompt.KeyPhaseNum: true, prompt.KeyPhaseName: true}
	for i := range sorted {
		p := &sorted[i]
		if p.Number != i+1 {
			return nil, fmt.Errorf("%w: expected phase %d, got %d", ErrInvalidPlan, i+1, p.Number)
		}
		if p.DurationMinutes <= 0 {
			return nil, fmt.Errorf("%w: phase %d duration must be positive", ErrInvalidPlan, p.Number)
		}
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			p.Name = fmt.Sprintf("Phase %d", p.Number)
		}
		if strings.TrimSpace(p.Message) == "" {
			p.Message = defaultMessage(p.Number)
		}
		for _, ph := range prompt.Placeholders(p.Message) {
			if !allowed[ph] {
				return nil, fmt.Errorf("%w: phase %d message uses unknown placeholder {%s}", ErrInvalidPlan, p.Number, ph)
			}
		}
	}
	return &Plan{phases: sorted}, nil
}

// LoadPlan reads a YAML plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phase plan: %w", err)
	}
	var file planFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse phase plan: %w", err)
	}
	return NewPlan(file.Phases)
}

// Len returns the number of phases.
func (p *Plan) Len() int {
	return len(p.phases)
}

// Phases returns a copy of the plan.
func (p *Plan) Phases() []Phase {
	out := make([]Phase, len(p.phases))
	copy(out, p.phases)
	return out
}

// Phase looks up a phase by number.
func (p *Plan) Phase(n int) (Phase, bool) {
	if n < 1 || n > len(p.phases) {
		return Phase{}, false
	}
	return p.phases[n-1], true
}

// CumulativeDelay is the sum of the durations of phases 1..n-1.
func (p *Plan) CumulativeDelay(n int) (time.Duration, error) {
	if _, ok := p.Phase(n); !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownPhase, n)
	}
	total := 0
	for _, ph := range p.phases[:n-1] {
		total += ph.DurationMinutes
	}
	return time.Duration(total) * time.Minute, nil
}

// Message renders phase n's message for a project.
func (p *Plan) Message(n int, projectName string) (string, error) {
	ph, ok := p.Phase(n)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownPhase, n)
	}
	return prompt.Render(ph.Message, prompt.PhaseVars(projectName, ph.Number, ph.Name)), nil
}

// Offsets lists every phase with its start offset in minutes.
func (p *Plan) Offsets() []Offset {
	out := make([]Offset, 0, len(p.phases))
	total := 0
	for _, ph := range p.phases {
		out = append(out, Offset{Phase: ph, StartOffsetMinutes: total})
		total += ph.DurationMinutes
	}
	return out
}

func defaultMessage(n int) string {
	if msg, ok := prompt.DefaultPhaseMessages[n]; ok {
		return msg
	}
	return "Phase {phase_num}: {phase_name} for {project_name}. Continue with the next items in PROGRESS_TRACKER.md."
}
