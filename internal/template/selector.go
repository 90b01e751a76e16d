// Package template chooses the scaffold a new session starts from.
package template

import (
	"fmt"
	"strings"
)

// Selection reasons.
const (
	ReasonHint    = "template_hint"
	ReasonKeyword = "keyword_match"
	ReasonDefault = "default"
)

// Ref points at the chosen scaffold.
type Ref struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Selector picks a template. Implementations are pure and always return a Ref.
type Selector interface {
	Select(requirements, hint string) Ref
}

// New builds the selector named by kind ("keyword" or "default").
func New(kind string, entries []Entry, defaultName string) (Selector, error) {
	switch strings.ToLower(kind) {
	case "", "keyword":
		return NewKeywordSelector(entries, defaultName)
	case "default":
		return NewDefaultSelector(entries, defaultName)
	default:
		return nil, fmt.Errorf("unknown template selector %q", kind)
	}
}

// KeywordSelector scores catalog entries against the requirements text.
type KeywordSelector struct {
	entries  []Entry
	fallback Entry
}

// NewKeywordSelector creates a KeywordSelector. defaultName must exist in entries.
func NewKeywordSelector(entries []Entry, defaultName string) (*KeywordSelector, error) {
	fallback, err := findEntry(entries, defaultName)
	if err != nil {
		return nil, err
	}
	return &KeywordSelector{entries: entries, fallback: fallback}, nil
}

// Select honours a matching hint first, then the highest keyword score. Ties go
// to the earlier catalog entry; a zero score falls back to the default.
func (s *KeywordSelector) Select(requirements, hint string) Ref {
	if e, ok := matchHint(s.entries, hint); ok {
		return Ref{Name: e.Name, Path: e.Path, Reason: ReasonHint}
	}

	req := strings.ToLower(requirements)
	best := s.fallback
	bestScore := 0
	for _, e := range s.entries {
		if score := Score(e, req); score > bestScore {
			best, bestScore = e, score
		}
	}

	reason := ReasonDefault
	if bestScore > 0 {
		reason = ReasonKeyword
	}
	return Ref{Name: best.Name, Path: best.Path, Reason: reason}
}

// Score counts keyword hits in lowercase requirements, plus 5 when the
// template name itself is mentioned.
func Score(e Entry, requirements string) int {
	score := 0
	for _, kw := range e.Keywords {
		if kw != "" && strings.Contains(requirements, kw) {
			score++
		}
	}
	if strings.Contains(requirements, strings.ReplaceAll(e.Name, "-", " ")) {
		score += 5
	}
	return score
}

// DefaultSelector always returns the configured default, except for an
// explicit hint.
type DefaultSelector struct {
	entries  []Entry
	fallback Entry
}

// NewDefaultSelector creates a DefaultSelector.
func NewDefaultSelector(entries []Entry, defaultName string) (*DefaultSelector, error) {
	fallback, err := findEntry(entries, defaultName)
	if err != nil {
		return nil, err
	}
	return &DefaultSelector{entries: entries, fallback: fallback}, nil
}

// Select implements Selector.
func (s *DefaultSelector) Select(_, hint string) Ref {
	if e, ok := matchHint(s.entries, hint); ok {
		return Ref{Name: e.Name, Path: e.Path, Reason: ReasonHint}
	}
	return Ref{Name: s.fallback.Name, Path: s.fallback.Path, Reason: ReasonDefault}
}

func matchHint(entries []Entry, hint string) (Entry, bool) {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return Entry{}, false
	}
	h = strings.NewReplacer("/", "-", "_", "-").Replace(h)

	for _, e := range entries {
		if e.Name == h {
			return e, true
		}
	}
	for _, e := range entries {
		if strings.Contains(e.Name, h) || strings.Contains(h, e.Name) {
			return e, true
		}
	}
	return Entry{}, false
}

func findEntry(entries []Entry, name string) (Entry, error) {
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("template catalog is empty")
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("default template %q not found in catalog", name)
}
