// Package component defines the lifecycle contract shared by the
// engine's managed components.
package component

import (
	"context"
	"time"
)

// State represents the current lifecycle state of a component
type State int

const (
	// StateCreated indicates the component was created but not started
	StateCreated State = iota
	// StateStarted indicates the component is running
	StateStarted
	// StateStopped indicates the component was stopped
	StateStopped
	// StateFailed indicates the component failed during a lifecycle operation
	StateFailed
)

// String returns a string representation of the component state
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Lifecycle is the management contract for long-running components:
// Start receives the engine's context; Stop bounds graceful shutdown
// with a timeout. Components never store the context themselves.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// Managed pairs a component with its name and lifecycle state for
// ordered startup and reverse-order shutdown.
type Managed struct {
	Name      string
	Component Lifecycle
	State     State
	LastError error
}
