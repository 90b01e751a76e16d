package webhook

import "errors"

var (
	// ErrQueueFull indicates the dispatcher cannot accept new requests right now.
	ErrQueueFull = errors.New("session queue is full")
	// ErrQueueClosed indicates the dispatcher has been shut down.
	ErrQueueClosed = errors.New("session queue is closed")
)
