package mgenclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/khrizenriquez/mgen-client/api"
	"github.com/khrizenriquez/mgen-client/credentials"
	"github.com/khrizenriquez/mgen-client/internal/events"
	"github.com/khrizenriquez/mgen-client/internal/metrics"
)

// SessionManager owns the authenticated session: login and its offline
// fallback, registration, password reset, logout, token refresh, validation,
// and the subscriber notifications that fire after both local state and the
// credentials store have settled.
type SessionManager struct {
	api     *api.Client
	store   credentials.Store
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	events  *events.Dispatcher

	refreshGroup singleflight.Group

	mu      sync.RWMutex
	session *Session
	access  string
	refresh string
	subs    map[int]func(*Session)
	nextSub int
}

func newSessionManager(apiClient *api.Client, store credentials.Store, cfg Config, log zerolog.Logger, m *metrics.Metrics, ev *events.Dispatcher) *SessionManager {
	return &SessionManager{
		api:     apiClient,
		store:   store,
		cfg:     cfg,
		log:     log,
		metrics: m,
		events:  ev,
		subs:    make(map[int]func(*Session)),
	}
}

// AccessToken implements [api.TokenSource].
func (m *SessionManager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}

// CurrentSession returns a copy of the active session, or nil.
func (m *SessionManager) CurrentSession() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil
	}
	copied := *m.session
	return &copied
}

// Subscribe registers fn for session transitions. It is called with the new
// session after login, restore and refresh, and with nil after logout or
// forced expiry. The returned function unsubscribes.
func (m *SessionManager) Subscribe(fn func(*Session)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// notify runs after state and persistence settle, never under the lock.
func (m *SessionManager) notify(sess *Session) {
	m.mu.RLock()
	subs := make([]func(*Session), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()

	for _, fn := range subs {
		var copied *Session
		if sess != nil {
			c := *sess
			copied = &c
		}
		fn(copied)
	}
}

// Restore loads the persisted session. A record carrying a profile but
// missing either token is unusable and gets discarded. No stored session is
// not an error: both return values are nil.
func (m *SessionManager) Restore(ctx context.Context) (*Session, error) {
	rec, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, credentials.ErrNotFound):
		return nil, nil
	case errors.Is(err, credentials.ErrCorrupt):
		m.log.Warn().Err(err).Msg("discarding corrupt stored session")
		_ = m.store.Clear(ctx)
		return nil, nil
	case err != nil:
		return nil, err
	}

	if rec.AccessToken == "" || rec.RefreshToken == "" {
		m.log.Warn().Str("email", rec.Email).Msg("discarding stored session with missing tokens")
		_ = m.store.Clear(ctx)
		return nil, nil
	}

	sess := sessionFromRecord(rec)
	m.mu.Lock()
	m.session = sess
	m.access = rec.AccessToken
	m.refresh = rec.RefreshToken
	m.mu.Unlock()

	m.notify(sess)
	m.emit(ctx, events.Event{EventType: "session.restored", UserID: sess.UserID, Email: sess.Email, Success: true})
	return m.CurrentSession(), nil
}

// Login authenticates against the platform. The health endpoint is probed
// first: an unreachable platform, or a login call that dies at the transport
// level, falls back to a degraded offline session when the deployment opted
// in. A platform that answers, with whatever verdict, never degrades.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*Session, error) {
	if pingErr := m.api.Ping(ctx); pingErr != nil {
		if m.cfg.Login.AllowDegradedFallback {
			return m.degradedLogin(ctx, email)
		}
		m.log.Warn().Str("email", email).Msg("platform unreachable and degraded fallback disabled")
		m.metrics.Inc(metrics.MetricLoginFailure)
		m.emit(ctx, events.Event{EventType: "session.login", Email: email, Error: pingErr.Error()})
		return nil, pingErr
	}

	resp, err := m.api.Login(ctx, api.Credentials{Email: email, Password: password})
	if err == nil {
		return m.completeLogin(ctx, email, resp)
	}

	if api.IsStatus(err, http.StatusUnauthorized) || api.IsStatus(err, http.StatusForbidden) {
		m.metrics.Inc(metrics.MetricLoginFailure)
		m.emit(ctx, events.Event{EventType: "session.login", Email: email, Error: err.Error()})
		var remote *api.RemoteError
		if errors.As(err, &remote) && remote.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, remote.Message)
		}
		return nil, ErrInvalidCredentials
	}

	if api.IsNetworkError(err) && m.cfg.Login.AllowDegradedFallback {
		return m.degradedLogin(ctx, email)
	}

	m.metrics.Inc(metrics.MetricLoginFailure)
	m.emit(ctx, events.Event{EventType: "session.login", Email: email, Error: err.Error()})
	return nil, err
}

func (m *SessionManager) completeLogin(ctx context.Context, email string, resp *api.LoginResponse) (*Session, error) {
	m.mu.Lock()
	m.access = resp.AccessToken
	m.refresh = resp.RefreshToken
	m.mu.Unlock()

	profile := resp.User
	if profile == nil {
		fetched, err := m.api.Me(ctx)
		if err != nil {
			m.log.Warn().Err(err).Msg("profile fetch after login failed, deriving identity from token")
		} else {
			profile = fetched
		}
	}

	sess := m.buildSession(email, resp.AccessToken, profile)
	if err := m.persist(ctx, sess, resp.AccessToken, resp.RefreshToken); err != nil {
		m.log.Warn().Err(err).Msg("session persistence failed, continuing in-memory")
	}

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()

	m.notify(sess)
	m.metrics.Inc(metrics.MetricLoginSuccess)
	m.emit(ctx, events.Event{EventType: "session.login", UserID: sess.UserID, Email: sess.Email, Success: true})
	return m.CurrentSession(), nil
}

// degradedLogin establishes an offline session. Tokens are synthetic so the
// record round-trips through the store like any other session; the Degraded
// flag keeps them from ever reaching the platform via refresh.
func (m *SessionManager) degradedLogin(ctx context.Context, email string) (*Session, error) {
	sess := &Session{
		UserID:   "offline-" + uuid.NewString(),
		Email:    email,
		Role:     m.roleFromEmail(email),
		Degraded: true,
		IssuedAt: time.Now().UTC(),
	}
	access := "degraded." + uuid.NewString()
	refresh := "degraded." + uuid.NewString()

	if err := m.persist(ctx, sess, access, refresh); err != nil {
		m.log.Warn().Err(err).Msg("degraded session persistence failed, continuing in-memory")
	}

	m.mu.Lock()
	m.session = sess
	m.access = access
	m.refresh = refresh
	m.mu.Unlock()

	m.notify(sess)
	m.metrics.Inc(metrics.MetricLoginDegraded)
	m.log.Warn().Str("email", email).Str("role", string(sess.Role)).
		Msg("platform unreachable, established degraded offline session")
	m.emit(ctx, events.Event{EventType: "session.degraded_login", UserID: sess.UserID, Email: email, Success: true,
		Metadata: map[string]string{"role": string(sess.Role)}})
	return m.CurrentSession(), nil
}

// buildSession derives the session identity, preferring the server profile,
// then token claims, then the email keyword table.
func (m *SessionManager) buildSession(email, accessToken string, profile *api.Profile) *Session {
	sess := &Session{
		Email:    email,
		IssuedAt: time.Now().UTC(),
	}

	var claimRole string
	if claims, err := decodeAccessClaims(accessToken); err == nil {
		claimRole = claims.Role
		if claims.Subject != "" {
			sess.UserID = claims.Subject
		}
		if claims.Email != "" {
			sess.Email = claims.Email
		}
	}

	if profile != nil {
		sess.UserID = profile.ID
		if profile.Email != "" {
			sess.Email = profile.Email
		}
		sess.FirstName = profile.FirstName
		sess.LastName = profile.LastName
	}

	switch {
	case profile != nil && profile.Role != "":
		sess.Role = normalizeRole(profile.Role)
	case claimRole != "":
		sess.Role = normalizeRole(claimRole)
	default:
		sess.Role = m.roleFromEmail(sess.Email)
	}
	return sess
}

func normalizeRole(raw string) Role {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ADMIN", "ADMINISTRATOR":
		return RoleAdmin
	case "DONOR", "DONANTE":
		return RoleDonor
	default:
		return RoleUser
	}
}

// roleFromEmail scans the email local part for configured keywords.
// Longer keywords win so "administrator" is not shadowed by "admin".
func (m *SessionManager) roleFromEmail(email string) Role {
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	local = strings.ToLower(local)

	role := RoleUser
	matched := -1
	for keyword, r := range m.cfg.Login.RoleKeywords {
		if strings.Contains(local, keyword) && len(keyword) > matched {
			role = r
			matched = len(keyword)
		}
	}
	return role
}

// Register creates a platform account. It does not log the user in.
func (m *SessionManager) Register(ctx context.Context, input api.RegisterInput) (*api.Profile, error) {
	profile, err := m.api.Register(ctx, input)
	if err != nil {
		m.emit(ctx, events.Event{EventType: "session.register", Email: input.Email, Error: err.Error()})
		return nil, err
	}

	m.metrics.Inc(metrics.MetricRegisterRequest)
	m.emit(ctx, events.Event{EventType: "session.register", UserID: profile.ID, Email: profile.Email, Success: true})
	return profile, nil
}

// ResetPassword requests a reset email. Success does not reveal whether the
// account exists.
func (m *SessionManager) ResetPassword(ctx context.Context, email string) error {
	if err := m.api.ResetPassword(ctx, email); err != nil {
		m.emit(ctx, events.Event{EventType: "session.password_reset", Email: email, Error: err.Error()})
		return err
	}

	m.metrics.Inc(metrics.MetricPasswordResetRequest)
	m.emit(ctx, events.Event{EventType: "session.password_reset", Email: email, Success: true})
	return nil
}

// Logout clears local state and the credentials store first, then attempts
// the remote revocation best-effort. A dead network can never trap the user
// in a session.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	had := m.session != nil
	degraded := had && m.session.Degraded
	token := m.access
	userID := ""
	if had {
		userID = m.session.UserID
	}
	m.session = nil
	m.access = ""
	m.refresh = ""
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn().Err(err).Msg("clearing credentials store failed")
	}
	if !had {
		return nil
	}

	m.notify(nil)

	if !degraded && token != "" {
		if err := m.api.Logout(ctx, token); err != nil {
			m.log.Debug().Err(err).Msg("remote logout failed, local session already cleared")
		}
	}

	m.metrics.Inc(metrics.MetricLogout)
	m.emit(ctx, events.Event{EventType: "session.logout", UserID: userID, Success: true})
	return nil
}

// RefreshSession exchanges the refresh token for a new pair. Concurrent
// callers, including 401 retries inside the transport, share one in-flight
// exchange. Any failure force-clears the session: refresh never leaves a
// half-valid token pair behind.
func (m *SessionManager) RefreshSession(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		m.mu.RLock()
		refresh := m.refresh
		degraded := m.session != nil && m.session.Degraded
		m.mu.RUnlock()

		if refresh == "" {
			return nil, ErrNoRefreshToken
		}
		if degraded {
			return nil, ErrDegradedSession
		}

		pair, err := m.api.Refresh(ctx, refresh)
		if err != nil {
			m.metrics.Inc(metrics.MetricRefreshFailure)
			m.forceLogout(ctx, err)
			return nil, ErrSessionExpired
		}

		m.mu.Lock()
		m.access = pair.AccessToken
		m.refresh = pair.RefreshToken
		sess := m.session
		m.mu.Unlock()

		if sess != nil {
			if err := m.persist(ctx, sess, pair.AccessToken, pair.RefreshToken); err != nil {
				m.log.Warn().Err(err).Msg("persisting refreshed tokens failed")
			}
		}

		m.metrics.Inc(metrics.MetricRefreshSuccess)
		m.emit(ctx, events.Event{EventType: "session.refreshed", Success: true})
		return nil, nil
	})
	return err
}

// forceLogout clears everything after a failed refresh. Subscribers see the
// nil session exactly once.
func (m *SessionManager) forceLogout(ctx context.Context, cause error) {
	m.mu.Lock()
	had := m.session != nil
	userID := ""
	if had {
		userID = m.session.UserID
	}
	m.session = nil
	m.access = ""
	m.refresh = ""
	m.mu.Unlock()

	_ = m.store.Clear(ctx)
	if had {
		m.notify(nil)
	}

	m.log.Warn().Err(cause).Msg("token refresh failed, session cleared")
	m.emit(ctx, events.Event{EventType: "session.expired", UserID: userID, Error: cause.Error()})
}

// ValidateToken checks whether the current session is usable. An unreachable
// platform answers optimistically: the session stays valid until the
// platform itself says otherwise.
func (m *SessionManager) ValidateToken(ctx context.Context) (bool, error) {
	m.mu.RLock()
	access := m.access
	degraded := m.session != nil && m.session.Degraded
	m.mu.RUnlock()

	if access == "" {
		return false, nil
	}
	if degraded {
		m.metrics.Inc(metrics.MetricValidateOptimistic)
		return true, nil
	}

	// An expired token still goes to the platform: the transport's 401
	// retry refreshes it in flight, and an unreachable platform must not
	// flip the answer to false.
	if _, err := m.api.Me(ctx); err != nil {
		if api.IsNetworkError(err) {
			m.metrics.Inc(metrics.MetricValidateOptimistic)
			m.log.Debug().Msg("platform unreachable, token considered valid optimistically")
			return true, nil
		}
		if api.IsStatus(err, http.StatusUnauthorized) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Token returns an access token fit for immediate use, refreshing first
// when expiry falls inside the configured margin.
func (m *SessionManager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	access := m.access
	degraded := m.session != nil && m.session.Degraded
	m.mu.RUnlock()

	if access == "" {
		return "", ErrNotAuthenticated
	}
	if degraded {
		return access, nil
	}

	if exp, ok := tokenExpiry(access); ok && time.Until(exp) < m.cfg.Login.RefreshMargin {
		if err := m.RefreshSession(ctx); err != nil {
			return "", err
		}
	}
	return m.AccessToken(), nil
}

// Profile fetches the authoritative profile and folds it into the session.
func (m *SessionManager) Profile(ctx context.Context) (*api.Profile, error) {
	m.mu.RLock()
	active := m.session != nil
	degraded := active && m.session.Degraded
	m.mu.RUnlock()

	if !active {
		return nil, ErrNotAuthenticated
	}
	if degraded {
		return nil, ErrDegradedSession
	}

	profile, err := m.api.Me(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	var sess *Session
	access, refresh := m.access, m.refresh
	if m.session != nil {
		m.session.UserID = profile.ID
		if profile.Email != "" {
			m.session.Email = profile.Email
		}
		m.session.FirstName = profile.FirstName
		m.session.LastName = profile.LastName
		if profile.Role != "" {
			m.session.Role = normalizeRole(profile.Role)
		}
		sess = m.session
	}
	m.mu.Unlock()

	if sess != nil {
		if err := m.persist(ctx, sess, access, refresh); err != nil {
			m.log.Warn().Err(err).Msg("persisting refreshed profile failed")
		}
	}
	return profile, nil
}

func (m *SessionManager) persist(ctx context.Context, sess *Session, access, refresh string) error {
	return m.store.Save(ctx, credentials.Record{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       sess.UserID,
		Email:        sess.Email,
		Role:         string(sess.Role),
		FirstName:    sess.FirstName,
		LastName:     sess.LastName,
		Degraded:     sess.Degraded,
		SavedAt:      time.Now().UTC(),
	})
}

func sessionFromRecord(rec *credentials.Record) *Session {
	return &Session{
		UserID:    rec.UserID,
		Email:     rec.Email,
		Role:      normalizeRole(rec.Role),
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		Degraded:  rec.Degraded,
		IssuedAt:  rec.SavedAt,
	}
}

func (m *SessionManager) emit(ctx context.Context, event events.Event) {
	m.events.Emit(ctx, event)
}
