package runner

import "errors"

var (
	ErrDisabled    = errors.New("runner disabled")
	ErrStopped     = errors.New("runner stopped")
	ErrStopping    = errors.New("runner stopping")
	ErrQueueFull   = errors.New("runner queue full")
	ErrAlreadyRuns = errors.New("run already queued for user")
)
