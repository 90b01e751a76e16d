package phase

import (
	"errors"
	"time"
)

// MaxRescheduleDelay bounds how far ahead a transition can be rescheduled.
const MaxRescheduleDelay = 7 * 24 * time.Hour

var (
	// ErrUnknownPhase indicates a phase number outside the plan.
	ErrUnknownPhase = errors.New("unknown phase")
	// ErrInvalidDelay indicates a reschedule delay outside [0, MaxRescheduleDelay].
	ErrInvalidDelay = errors.New("delay must be between 0 and 7 days")
	// ErrInvalidPlan indicates a malformed phase plan.
	ErrInvalidPlan = errors.New("invalid phase plan")
)
