package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/token"
)

const (
	// DefaultWarningLead is how long before expiry the extend prompt appears.
	DefaultWarningLead = 2 * time.Minute
	// DefaultGraceSkew tolerates clock skew between client and token issuer.
	DefaultGraceSkew = 5 * time.Second
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrNoToken      = errors.New("no session token")
	ErrNoRefresher  = errors.New("session refresh not configured")
	ErrEmptyToken   = errors.New("refresh returned no token")
	ErrLoggedOut    = errors.New("session ended during refresh")
	ErrTokenExpired = errors.New("refreshed token already expired")
)

// Config tunes the session timers.
type Config struct {
	WarningLead time.Duration
	GraceSkew   time.Duration
}

// DefaultConfig returns the default timer configuration.
func DefaultConfig() Config {
	return Config{
		WarningLead: DefaultWarningLead,
		GraceSkew:   DefaultGraceSkew,
	}
}

// Deps are the collaborators of a Manager. Storage is required.
type Deps struct {
	Storage   Storage
	Refresher Refresher
	Notifier  Notifier
	Clock     Clock
	Logger    *slog.Logger
}

// Manager owns the authenticated session: the current user, the bearer
// token, and the warning and hard-expiry timers derived from the token.
//
// Timer callbacks carry the generation they were armed with; any cancel or
// reschedule bumps the generation so a late callback is a no-op. The lock is
// never held while calling the Notifier or the Refresher.
type Manager struct {
	cfg       Config
	storage   Storage
	refresher Refresher
	notifier  Notifier
	clock     Clock
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	user      *domain.User
	token     string
	expiresAt time.Time
	timers    TimerState
	warning   Timer
	expiry    Timer
	gen       uint64
	epoch     uint64
	cancel    context.CancelFunc
	loading   bool

	bootOnce sync.Once
	refresh  singleflight.Group

	subsMu  sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// NewManager creates a session manager. It starts in the bootstrapping state
// until Bootstrap runs.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if deps.Storage == nil {
		return nil, errors.New("session storage is required")
	}
	if cfg.WarningLead < 0 {
		return nil, fmt.Errorf("warning lead must not be negative: %s", cfg.WarningLead)
	}
	if cfg.WarningLead == 0 {
		cfg.WarningLead = DefaultWarningLead
	}
	if cfg.GraceSkew <= 0 {
		cfg.GraceSkew = DefaultGraceSkew
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Manager{
		cfg:       cfg,
		storage:   deps.Storage,
		refresher: deps.Refresher,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		logger:    deps.Logger,
		state:     StateBootstrapping,
		loading:   true,
		subs:      make(map[int]func(Snapshot)),
	}, nil
}

// Bootstrap restores a persisted session. It runs once; later calls return
// immediately.
func (m *Manager) Bootstrap(ctx context.Context) {
	m.bootOnce.Do(func() {
		m.bootstrap(ctx)
	})
}

func (m *Manager) bootstrap(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		m.loading = false
		if m.state == StateBootstrapping {
			m.state = StateAnonymous
		}
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.publish(snap)
	}()

	if err := ctx.Err(); err != nil {
		m.logger.Warn("session bootstrap cancelled", "error", err)
		return
	}

	rawUser, hasUser, errUser := m.storage.GetItem(KeyUser)
	rawToken, hasToken, errToken := m.storage.GetItem(KeyToken)
	if err := errors.Join(errUser, errToken); err != nil {
		m.logger.Error("read persisted session", "error", err)
		m.discard()
		return
	}
	if !hasUser || !hasToken {
		if hasUser || hasToken {
			m.logger.Warn("incomplete persisted session discarded", "has_user", hasUser, "has_token", hasToken)
			m.discard()
		}
		return
	}

	var u domain.User
	if err := json.Unmarshal([]byte(rawUser), &u); err != nil {
		m.logger.Error("decode persisted user", "error", err)
		m.discard()
		return
	}
	exp, err := token.Expiry(rawToken)
	if err != nil {
		m.logger.Error("decode persisted token", "error", err)
		m.discard()
		return
	}

	m.mu.Lock()
	timeLeft, ok := m.installLocked(u, rawToken, exp)
	m.mu.Unlock()
	if !ok {
		m.expireNow(timeLeft)
		return
	}
	m.logger.Info("session restored", "user", u.ID, "expires_at", exp)
}

// discard removes the persisted session without navigating anywhere.
func (m *Manager) discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removePersistedLocked()
}

// Login persists the user and token and arms the session timers. A token
// whose expiry cannot be decoded logs the user out and returns
// ErrInvalidToken.
func (m *Manager) Login(u domain.User, raw string) error {
	m.mu.Lock()
	m.epoch++
	if err := m.persistLocked(u, raw); err != nil {
		m.logger.Warn("persist session", "error", err)
	}
	m.mu.Unlock()

	exp, err := token.Expiry(raw)
	if err != nil {
		m.logger.Error("decode token on login", "user", u.ID, "error", err)
		m.Logout()
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	m.mu.Lock()
	timeLeft, ok := m.installLocked(u, raw, exp)
	snap := m.snapshotLocked()
	m.mu.Unlock()
	if !ok {
		m.expireNow(timeLeft)
		return nil
	}
	m.publish(snap)

	m.logger.Info("logged in", "user", u.ID, "rol", u.Rol, "expires_at", exp)
	return nil
}

// Logout cancels both timers, clears the user and the persisted session and
// navigates to the login screen. It is safe to call repeatedly and from
// inside timer callbacks.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.cancelTimersLocked()
	wasAuthenticated := m.user != nil
	m.user = nil
	m.token = ""
	m.expiresAt = time.Time{}
	m.state = StateAnonymous
	m.epoch++
	m.removePersistedLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if wasAuthenticated {
		m.logger.Info("logged out")
	}
	m.notifier.RedirectToLogin()
	m.publish(snap)
}

// ExtendSession exchanges the persisted token for a fresh one and re-arms the
// timers from its expiry. Concurrent calls share one refresh request.
func (m *Manager) ExtendSession(ctx context.Context) error {
	raw, ok, err := m.storage.GetItem(KeyToken)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if !ok || raw == "" {
		return ErrNoToken
	}
	if m.refresher == nil {
		return ErrNoRefresher
	}

	_, err, shared := m.refresh.Do(raw, func() (any, error) {
		return nil, m.extend(ctx, raw)
	})
	if shared {
		m.logger.Debug("extend request coalesced")
	}
	return err
}

func (m *Manager) extend(ctx context.Context, raw string) error {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	res, err := m.refresher.Refresh(ctx, raw)
	if err != nil {
		m.logger.Warn("session refresh failed", "error", err)
		return fmt.Errorf("refresh session: %w", err)
	}
	if res == nil || res.Token == "" {
		return ErrEmptyToken
	}
	exp, err := token.Expiry(res.Token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrLoggedOut
	}
	u := m.storedUserLocked().Merge(res.User)
	if err := m.persistLocked(u, res.Token); err != nil {
		m.logger.Warn("persist refreshed session", "error", err)
	}
	timeLeft, ok := m.installLocked(u, res.Token, exp)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if !ok {
		m.expireNow(timeLeft)
		return ErrTokenExpired
	}
	m.publish(snap)

	m.logger.Info("session extended", "user", u.ID, "expires_at", exp)
	m.notifier.Extended()
	return nil
}

// storedUserLocked returns the persisted user, falling back to the
// in-memory one.
func (m *Manager) storedUserLocked() domain.User {
	raw, ok, err := m.storage.GetItem(KeyUser)
	if err == nil && ok {
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			return u
		}
	}
	if m.user != nil {
		return *m.user
	}
	return domain.User{}
}

// installLocked makes (u, raw) the current session and reschedules both
// timers. It returns false when the token is already unusable; the caller
// must then run expireNow without the lock held.
func (m *Manager) installLocked(u domain.User, raw string, exp time.Time) (time.Duration, bool) {
	timeLeft := exp.Sub(m.clock.Now())
	if timeLeft == 0 || timeLeft <= -m.cfg.GraceSkew {
		return timeLeft, false
	}

	m.user = &u
	m.token = raw
	m.expiresAt = exp
	m.state = StateAuthenticated
	m.rescheduleLocked(timeLeft)
	return timeLeft, true
}

// expireNow handles a token that is already past use: exactly at expiry it
// logs out silently, beyond the grace skew it shows the expired notice.
func (m *Manager) expireNow(timeLeft time.Duration) {
	if timeLeft != 0 {
		m.logger.Info("session token expired", "overdue", -timeLeft)
		m.notifier.Expired()
	}
	m.Logout()
}

// rescheduleLocked cancels pending timers and arms new ones for timeLeft.
func (m *Manager) rescheduleLocked(timeLeft time.Duration) {
	m.cancelTimersLocked()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	gen := m.gen

	if lead := timeLeft - m.cfg.WarningLead; lead > 0 {
		m.warning = m.clock.AfterFunc(lead, func() { m.onWarning(ctx, gen) })
		m.timers = TimerArmed
	} else {
		m.timers = TimerExpiryOnly
	}
	m.expiry = m.clock.AfterFunc(timeLeft, func() { m.onExpiry(gen) })

	m.logger.Debug("session timers armed", "timers", m.timers, "time_left", timeLeft)
}

func (m *Manager) cancelTimersLocked() {
	if m.warning != nil {
		m.warning.Stop()
		m.warning = nil
	}
	if m.expiry != nil {
		m.expiry.Stop()
		m.expiry = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
	m.timers = TimerIdle
}

func (m *Manager) onWarning(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.timers != TimerArmed {
		m.mu.Unlock()
		return
	}
	m.warning = nil
	m.timers = TimerWarningFired
	m.state = StateWarning
	remaining := m.expiresAt.Sub(m.clock.Now())
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.publish(snap)

	confirmed := m.notifier.ConfirmExtend(ctx, remaining)
	if ctx.Err() != nil {
		m.logger.Debug("stale extend prompt ignored")
		return
	}
	if !confirmed {
		m.logger.Info("extend declined")
		m.Logout()
		return
	}
	if err := m.ExtendSession(ctx); err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrLoggedOut) {
			// the session this prompt belonged to was replaced or ended
			m.logger.Debug("extend after stale prompt dropped", "error", err)
			return
		}
		m.logger.Warn("extend after prompt failed", "error", err)
		m.Logout()
	}
}

func (m *Manager) onExpiry(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.expiry = nil
	m.timers = TimerFired
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.publish(snap)

	m.logger.Info("session expired")
	m.Logout()
	m.notifier.Expired()
}

// Close stops the timers without touching persisted state.
func (m *Manager) Close() {
	m.mu.Lock()
	m.cancelTimersLocked()
	m.mu.Unlock()
}

func (m *Manager) persistLocked(u domain.User, raw string) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return errors.Join(
		m.storage.SetItem(KeyUser, string(data)),
		m.storage.SetItem(KeyToken, raw),
	)
}

func (m *Manager) removePersistedLocked() {
	for _, key := range []string{KeyUser, KeyToken} {
		if err := m.storage.RemoveItem(key); err != nil {
			m.logger.Warn("remove persisted session item", "key", key, "error", err)
		}
	}
}

// User returns the signed-in user, or nil.
func (m *Manager) User() *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Token returns the current bearer token, or "".
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// State returns the authentication state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Loading reports whether Bootstrap has not yet completed.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     m.state,
		ExpiresAt: m.expiresAt,
		Loading:   m.loading,
		Timers:    m.timers,
	}
	if m.user != nil {
		u := *m.user
		snap.User = &u
	}
	return snap
}

// Subscribe registers fn to receive a snapshot after every transition. The
// returned func removes the subscription.
func (m *Manager) Subscribe(fn func(Snapshot)) (cancel func()) {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

func (m *Manager) publish(snap Snapshot) {
	m.subsMu.Lock()
	fns := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
