package session

import (
	"time"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
)

// State is the authentication state of the manager.
type State int

const (
	StateBootstrapping State = iota
	StateAnonymous
	StateAuthenticated
	StateWarning
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// TimerState describes which of the session timers are pending.
type TimerState int

const (
	// TimerIdle means no timer is pending.
	TimerIdle TimerState = iota
	// TimerArmed means both the warning and the expiry timer are pending.
	TimerArmed
	// TimerExpiryOnly means the token was too short-lived for a warning.
	TimerExpiryOnly
	// TimerWarningFired means the prompt is showing and only expiry is pending.
	TimerWarningFired
	// TimerFired means the hard expiry ran.
	TimerFired
)

func (t TimerState) String() string {
	switch t {
	case TimerIdle:
		return "idle"
	case TimerArmed:
		return "armed"
	case TimerExpiryOnly:
		return "expiry-only"
	case TimerWarningFired:
		return "warning-fired"
	case TimerFired:
		return "fired"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only view of the session published to observers.
type Snapshot struct {
	State     State        `json:"state"`
	User      *domain.User `json:"user,omitempty"`
	ExpiresAt time.Time    `json:"expires_at,omitempty"`
	Loading   bool         `json:"loading"`
	Timers    TimerState   `json:"timers"`
}

// Authenticated reports whether a user is signed in.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated || s.State == StateWarning
}
