package tcpconn

import (
	"sync"
	"sync/atomic"
)

// State is the lifecycle position of a Connection or Server.
type State int32

const (
	// StateCreated means the component exists but was never started.
	StateCreated State = iota
	// StateRunning means the receive or accept loop is active.
	StateRunning
	// StateShuttingDown means stop was requested or the loop is exiting.
	StateShuttingDown
	// StateTerminated means cleanup finished and listeners were notified.
	StateTerminated
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// lifecycle is the shared Created -> Running -> ShuttingDown -> Terminated
// state machine. Transitions only move forward.
type lifecycle struct {
	state    atomic.Int32
	done     chan struct{}
	doneOnce sync.Once
}

func (l *lifecycle) init() {
	l.done = make(chan struct{})
}

func (l *lifecycle) load() State {
	return State(l.state.Load())
}

// start moves Created to Running and reports whether it did.
func (l *lifecycle) start() bool {
	return l.state.CompareAndSwap(int32(StateCreated), int32(StateRunning))
}

// beginShutdown moves to ShuttingDown unless already there or beyond. It
// returns the previous state and whether this call made the transition.
func (l *lifecycle) beginShutdown() (State, bool) {
	for {
		cur := l.state.Load()
		if State(cur) >= StateShuttingDown {
			return State(cur), false
		}
		if l.state.CompareAndSwap(cur, int32(StateShuttingDown)) {
			return State(cur), true
		}
	}
}

func (l *lifecycle) stopping() bool {
	return l.load() >= StateShuttingDown
}

func (l *lifecycle) terminate() {
	l.state.Store(int32(StateTerminated))
	l.doneOnce.Do(func() {
		close(l.done)
	})
}
