package phase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/delayed"
)

// Observer receives submission outcomes. Result is "submitted" or "failed".
type Observer interface {
	RecordPhaseSubmission(phase, result string)
}

type nopObserver struct{}

func (nopObserver) RecordPhaseSubmission(string, string) {}

// Config wires a Scheduler.
type Config struct {
	Plan          *Plan
	Submitter     delayed.Submitter
	Ledger        *Ledger
	Hook          TestingHook
	SenderPath    string
	TargetSuffix  string
	SubmitTimeout time.Duration
	Observer      Observer
	Now           func() time.Time
}

// Scheduler submits one delayed message per phase after the first.
type Scheduler struct {
	plan          *Plan
	submitter     delayed.Submitter
	ledger        *Ledger
	hook          TestingHook
	senderPath    string
	targetSuffix  string
	submitTimeout time.Duration
	observer      Observer
	now           func() time.Time
	logger        zerolog.Logger

	// held across ledger lookup, cancel, submit and record
	locks *keyedMutex
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	if cfg.Plan == nil {
		return nil, errors.New("phase scheduler: plan is required")
	}
	if cfg.Submitter == nil {
		return nil, errors.New("phase scheduler: submitter is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("phase scheduler: ledger is required")
	}
	if cfg.SenderPath == "" {
		return nil, errors.New("phase scheduler: sender path is required")
	}
	if cfg.Hook == nil {
		cfg.Hook = NoopHook{}
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Scheduler{
		plan:          cfg.Plan,
		submitter:     cfg.Submitter,
		ledger:        cfg.Ledger,
		hook:          cfg.Hook,
		senderPath:    cfg.SenderPath,
		targetSuffix:  cfg.TargetSuffix,
		submitTimeout: cfg.SubmitTimeout,
		observer:      cfg.Observer,
		now:           cfg.Now,
		logger:        logger.With().Str("component", "phase.scheduler").Logger(),
		locks:         newKeyedMutex(),
	}, nil
}

// Plan returns the plan in use.
func (s *Scheduler) Plan() *Plan {
	return s.plan
}

// Target returns the delivery handle for a project's session.
func (s *Scheduler) Target(project string) string {
	return project + s.targetSuffix
}

// ScheduleAll submits phases 2..K for project, in ascending order, each fired
// at the cumulative duration of the phases before it. A failed submission is
// logged and does not stop later phases.
func (s *Scheduler) ScheduleAll(ctx context.Context, project string) []Transition {
	log := s.logger.With().Str("project", project).Logger()
	log.Info().Int("phases", s.plan.Len()).Msg("scheduling phase transitions")

	submitted := make([]Transition, 0, s.plan.Len())
	for n := 2; n <= s.plan.Len(); n++ {
		delay, err := s.plan.CumulativeDelay(n)
		if err != nil {
			log.Error().Err(err).Int("phase", n).Msg("failed to compute phase delay")
			continue
		}

		key := lockKey(project, n)
		s.locks.Lock(key)
		t, err := s.submit(ctx, project, n, delay)
		s.locks.Unlock(key)
		if err != nil {
			log.Error().Err(err).Int("phase", n).Dur("delay", delay).Msg("failed to schedule phase transition")
			continue
		}
		submitted = append(submitted, t)

		if n == 2 {
			s.scheduleHook(ctx, project, delay)
		}
	}

	log.Info().Int("scheduled", len(submitted)).Msg("phase transitions scheduled")
	return submitted
}

// Reschedule replaces the pending transition for (project, phase) with one that
// fires after delay. The previous unit is cancelled first so the message is not
// delivered twice.
func (s *Scheduler) Reschedule(ctx context.Context, project string, phase int, delay time.Duration) (Transition, error) {
	if _, ok := s.plan.Phase(phase); !ok {
		return Transition{}, fmt.Errorf("%w: %d", ErrUnknownPhase, phase)
	}
	if delay < 0 || delay > MaxRescheduleDelay {
		return Transition{}, ErrInvalidDelay
	}

	log := s.logger.With().Str("project", project).Int("phase", phase).Logger()

	key := lockKey(project, phase)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if prev, ok := s.ledger.Get(project, phase, KindPhase); ok {
		switch err := s.submitter.Cancel(prev.Handle); {
		case err == nil:
			log.Info().Int("pid", prev.Handle.PID).Msg("cancelled pending phase transition")
		case errors.Is(err, delayed.ErrNotRunning):
			log.Debug().Int("pid", prev.Handle.PID).Msg("previous phase transition no longer pending")
		default:
			return Transition{}, fmt.Errorf("cancel previous transition: %w", err)
		}
	}

	t, err := s.submit(ctx, project, phase, delay)
	if err != nil {
		return Transition{}, err
	}
	log.Info().Dur("delay", delay).Time("fire_at", t.FireAt).Msg("phase transition rescheduled")
	return t, nil
}

// Transitions lists recorded transitions with their live pending state.
func (s *Scheduler) Transitions(project string) []Transition {
	list := s.ledger.List(project)
	for i := range list {
		list[i].Pending = s.submitter.Pending(list[i].Handle)
	}
	return list
}

// PruneFired drops ledger entries that fired more than grace ago.
func (s *Scheduler) PruneFired(grace time.Duration) int {
	return s.ledger.Prune(s.now().Add(-grace))
}

func (s *Scheduler) submit(ctx context.Context, project string, n int, delay time.Duration) (Transition, error) {
	ph, _ := s.plan.Phase(n)
	message, err := s.plan.Message(n, project)
	if err != nil {
		return Transition{}, err
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	now := s.now()
	target := s.Target(project)
	handle, err := s.submitter.Submit(submitCtx, delayed.Command{
		Delay:  delay,
		Name:   s.senderPath,
		Args:   []string{target, message},
		Marker: marker(project, n, KindPhase, now),
	})
	label := strconv.Itoa(n)
	if err != nil {
		s.observer.RecordPhaseSubmission(label, "failed")
		return Transition{}, fmt.Errorf("submit phase %d: %w", n, err)
	}
	s.observer.RecordPhaseSubmission(label, "submitted")

	t := Transition{
		Project:     project,
		Phase:       n,
		PhaseName:   ph.Name,
		Kind:        KindPhase,
		Target:      target,
		ScheduledAt: now,
		FireAt:      now.Add(delay),
		Handle:      handle,
		Pending:     true,
	}
	s.ledger.Record(t)

	s.logger.Info().
		Str("project", project).
		Int("phase", n).
		Str("phase_name", ph.Name).
		Dur("delay", delay).
		Int("pid", handle.PID).
		Msg("phase transition scheduled")
	return t, nil
}

func (s *Scheduler) scheduleHook(ctx context.Context, project string, delay time.Duration) {
	submitCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	now := s.now()
	handle, scheduled, err := s.hook.Schedule(submitCtx, project, delay, now)
	if err != nil {
		s.observer.RecordPhaseSubmission(KindTestingHook, "failed")
		s.logger.Error().Err(err).Str("project", project).Str("hook", s.hook.Name()).Msg("failed to schedule testing hook")
		return
	}
	if !scheduled {
		return
	}
	s.observer.RecordPhaseSubmission(KindTestingHook, "submitted")

	s.ledger.Record(Transition{
		Project:     project,
		Phase:       2,
		PhaseName:   "testing hook",
		Kind:        KindTestingHook,
		ScheduledAt: now,
		FireAt:      now.Add(delay),
		Handle:      handle,
		Pending:     true,
	})
	s.logger.Info().Str("project", project).Str("hook", s.hook.Name()).Dur("delay", delay).Msg("testing hook scheduled")
}

func lockKey(project string, phase int) string {
	return project + "/" + strconv.Itoa(phase)
}
