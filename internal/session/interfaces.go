package session

import (
	"context"
	"time"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
)

// Storage keys used for the persisted session.
const (
	KeyUser  = "user"
	KeyToken = "token"
)

// Storage is the durable key-value store holding the session between runs.
// Both the JSON file store and the SQLite client store implement it.
type Storage interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// RefreshResult is a successful token renewal. User is optional and only the
// fields it carries replace the stored profile.
type RefreshResult struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user,omitempty"`
}

// Refresher exchanges a bearer token for a fresh one.
type Refresher interface {
	Refresh(ctx context.Context, token string) (*RefreshResult, error)
}

// Notifier is the presentation side of the session: the "extend or log out"
// prompt, the expired notice and navigation back to the login screen.
type Notifier interface {
	// ConfirmExtend asks whether to extend the session. ctx is cancelled
	// when the prompt goes stale (token replaced, logout or hard expiry).
	ConfirmExtend(ctx context.Context, remaining time.Duration) bool
	Expired()
	Extended()
	RedirectToLogin()
}

// Timer is a pending one-shot callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so timers can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

type nopNotifier struct{}

func (nopNotifier) ConfirmExtend(context.Context, time.Duration) bool { return false }
func (nopNotifier) Expired()                                          {}
func (nopNotifier) Extended()                                         {}
func (nopNotifier) RedirectToLogin()                                  {}
