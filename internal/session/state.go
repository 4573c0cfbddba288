// Package session holds the per-session record, its lifecycle state
// machine, and the registry of active transcription sessions.
package session

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a transcription session.
type State int

const (
	// StateConnecting - provider connection attempt in flight, no audio seen yet.
	StateConnecting State = iota
	// StateBuffering - connection still in flight, audio queued in pendingChunks.
	StateBuffering
	// StateActive - provider accepted the connection, audio flows directly.
	StateActive
	// StateStopping - stop requested, sink closed for writes, results still drained.
	StateStopping
	// StateFailed - provider connection or fatal stream error. A bounded
	// fallback retry may still recover to Active.
	StateFailed
	// StateClosed - terminal. Late chunks and results for this id are ignored.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateBuffering:
		return "BUFFERING"
	case StateActive:
		return "ACTIVE"
	case StateStopping:
		return "STOPPING"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal reports whether the state admits no further transitions.
// Failed is not terminal: the fallback retry can recover to Active.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

// AcceptsAudio reports whether audio chunks are admitted in this state,
// either buffered or written through to the provider sink.
func (s State) AcceptsAudio() bool {
	return s == StateConnecting || s == StateBuffering || s == StateActive
}

// ErrInvalidTransition is returned for a state change the lifecycle does
// not allow.
var ErrInvalidTransition = errors.New("session: invalid state transition")

var transitions = map[State][]State{
	StateConnecting: {StateBuffering, StateActive, StateStopping, StateFailed},
	StateBuffering:  {StateActive, StateStopping, StateFailed},
	StateActive:     {StateStopping, StateFailed},
	StateStopping:   {StateClosed},
	StateFailed:     {StateActive, StateClosed},
	StateClosed:     {},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
