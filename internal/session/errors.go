package session

import "errors"

var (
	// ErrLaunchFailed wraps a non-zero exit or timeout of the session launcher.
	ErrLaunchFailed = errors.New("session launch failed")
	// ErrSendFailed wraps a failed message delivery.
	ErrSendFailed = errors.New("message delivery failed")
)
