package orchestrator

import (
	"sync"

	"github.com/google/uuid"
)

// UnitState tracks one session unit through its lifecycle.
type UnitState int

const (
	UnitPending UnitState = iota
	UnitRunning
	UnitSucceeded
	UnitFailed
	UnitCancelled
	UnitNeverStarted
)

func (s UnitState) String() string {
	switch s {
	case UnitRunning:
		return "running"
	case UnitSucceeded:
		return "succeeded"
	case UnitFailed:
		return "failed"
	case UnitCancelled:
		return "cancelled"
	case UnitNeverStarted:
		return "never-started"
	default:
		return "pending"
	}
}

// SessionUnit is one simulated client: a UUID, the client-scoped directory
// derived from it, and a state. The connection handle lives only inside the
// unit's goroutine.
type SessionUnit struct {
	ID string

	mu    sync.Mutex
	state UnitState
}

func newUnit() *SessionUnit {
	return &SessionUnit{ID: uuid.New().String()}
}

func (u *SessionUnit) setState(s UnitState) {
	u.mu.Lock()
	u.state = s
	u.mu.Unlock()
}

func (u *SessionUnit) State() UnitState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}
