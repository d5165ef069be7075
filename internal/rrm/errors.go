package rrm

import (
	"errors"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/neighbor"
)

var (
	// ErrEmptyChannelSet means no channel survived resolution and filtering.
	ErrEmptyChannelSet = errors.New("empty channel set")
	// ErrResourceExhausted is returned by a Scan Engine that cannot take
	// another scan. A full dispatch queue blocks the caller instead.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrAlreadyPending is returned when a neighbor request is outstanding.
	ErrAlreadyPending = neighbor.ErrAlreadyPending
	// ErrInvalidSession covers unknown requesters and out-of-range or idle
	// measurement indexes.
	ErrInvalidSession = errors.New("invalid session")
	// ErrStaleCompletion marks a completion whose scan id matches no
	// session. It is logged, never returned to callers.
	ErrStaleCompletion = errors.New("stale scan completion")
	// ErrStopped is returned once the engine has been stopped.
	ErrStopped = errors.New("engine stopped")
)
