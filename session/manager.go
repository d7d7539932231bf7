package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/netfold/ctrlmesh/config"
	"github.com/netfold/ctrlmesh/detect"
	"github.com/netfold/ctrlmesh/logging"
	"github.com/netfold/ctrlmesh/transport"
)

// State is the connection lifecycle state of a Manager.
type State int

const (
	// StateDisconnected means no live session exists.
	StateDisconnected State = iota
	// StateConnecting means a login attempt is in flight.
	StateConnecting
	// StateConnected means the manager holds an authenticated session.
	StateConnected
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// DetectorFactory builds a path-scheme detector bound to an authenticated
// HTTP client. Overridable in tests.
type DetectorFactory func(client detect.Doer, baseURL string) *detect.Detector

// Options holds dependency + configuration overrides passed to NewManager().
type Options struct {
	// Logger receives session lifecycle and dispatch diagnostics.
	Logger logging.Logger
	// NewDetector overrides detector construction (tests).
	NewDetector DetectorFactory
	// Sleep is the retry sleeper, injectable for tests.
	Sleep func(ctx context.Context, d time.Duration)
}

// Manager owns the authenticated connection to one controller: it runs
// login with bounded retries, resolves the path scheme once per session and
// dispatches data requests with transparent single-shot re-login on session
// expiry. Public methods are safe for concurrent use; the transport handle
// is mutated only under the connect lock.
type Manager struct {
	cfg         *config.Config
	logger      logging.Logger
	newDetector DetectorFactory
	sleep       func(ctx context.Context, d time.Duration)

	// connectMu serializes Initialize so N concurrent callers produce
	// exactly one login attempt.
	connectMu sync.Mutex

	mu             sync.RWMutex
	state          State
	initialized    bool
	tr             *transport.Transport
	scheme         detect.Scheme
	schemeResolved bool // resolved results stick for the session lifetime
	connID         string
	lastConnect    time.Time
}

// NewManager constructs a Manager for the controller described by cfg.
func NewManager(cfg *config.Config, optFns ...func(o *Options)) *Manager {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Sleep:  sleepCtx,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Manager{
		cfg:         cfg,
		logger:      opts.Logger,
		newDetector: opts.NewDetector,
		sleep:       opts.Sleep,
		state:       StateDisconnected,
	}
	if m.newDetector == nil {
		m.newDetector = func(client detect.Doer, baseURL string) *detect.Detector {
			return detect.New(client, baseURL, func(o *detect.Options) {
				o.ProbeTimeout = cfg.ProbeTimeout
				o.MaxRetries = cfg.DetectRetries
				o.Logger = opts.Logger
			})
		}
	}
	return m
}

// Initialize establishes an authenticated session, retrying transient
// failures up to cfg.MaxRetries with a fixed cfg.RetryDelay between
// attempts. Concurrent callers collapse onto one attempt. Returns true on
// success and false after exhaustion; it never panics out.
func (m *Manager) Initialize(ctx context.Context) bool {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	if m.connected() {
		return true
	}

	m.setState(StateConnecting)

	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			m.logger.Warn("retrying controller connect",
				"attempt", attempt, "max_retries", m.cfg.MaxRetries, "delay", m.cfg.RetryDelay)
			m.sleep(ctx, m.cfg.RetryDelay)
		}

		if err := m.connect(ctx); err != nil {
			m.logger.Warn("controller connect attempt failed",
				"attempt", attempt, "host", m.cfg.Host, "error", err)
			continue
		}

		m.logger.Info("controller session established",
			"host", m.cfg.Host, "site", m.cfg.Site, "scheme", m.currentScheme().String(), "connection_id", m.ConnectionID())
		return true
	}

	m.teardown()
	m.setState(StateDisconnected)
	m.logger.Error("controller connection failed, retries exhausted",
		"host", m.cfg.Host, "attempts", m.cfg.MaxRetries,
		"remediation", "verify host/credentials; set the scheme config option if detection keeps failing")
	return false
}

// connect performs one full connect attempt: teardown of any stale
// transport, fresh transport + cookie jar, manual scheme pin (pre-login),
// login, and post-login scheme detection when in auto mode.
func (m *Manager) connect(ctx context.Context) error {
	m.teardown()

	tr, err := transport.New(m.cfg.BaseURL(), m.cfg.SkipTLSVerify, func(o *transport.Options) {
		o.Logger = m.logger
	})
	if err != nil {
		return err
	}

	// A manual override pins the scheme before login and bypasses
	// detection for the whole session.
	if m.cfg.Scheme != config.SchemeAuto {
		m.mu.Lock()
		m.scheme = manualScheme(m.cfg.Scheme)
		m.schemeResolved = true
		m.mu.Unlock()
	}

	if err := tr.Login(ctx, m.cfg.Username, m.cfg.Password); err != nil {
		tr.Close()
		return fmt.Errorf("login: %w", err)
	}

	m.mu.Lock()
	m.tr = tr
	m.initialized = true
	m.state = StateConnected
	m.connID = uuid.NewString()
	m.lastConnect = time.Now()
	resolved := m.schemeResolved
	m.mu.Unlock()

	// Authenticated probing is more reliable than pre-login probing, so
	// detection runs after login. A resolved result is memoized for the
	// session lifetime and never re-probed; Unknown falls back to direct
	// paths without memoizing, so a later reconnect probes again.
	if m.cfg.Scheme == config.SchemeAuto && !resolved {
		scheme := m.newDetector(tr.HTTPClient(), tr.BaseURL()).DetectWithRetry(ctx)
		m.mu.Lock()
		m.scheme = scheme
		m.schemeResolved = scheme != detect.SchemeUnknown
		m.mu.Unlock()
	}

	return nil
}

// EnsureConnected is the cheap liveness check callers run before data
// requests. While the session is healthy it touches no network; otherwise it
// re-runs Initialize.
func (m *Manager) EnsureConnected(ctx context.Context) bool {
	if m.connected() {
		return true
	}
	return m.Initialize(ctx)
}

// Request dispatches one JSON request against the controller. path is a
// site-relative data path like "/stat/sta"; the effective scheme prefix and
// site are threaded into path resolution per call, never by mutating shared
// transport state.
//
// On session expiry Request performs exactly one re-login and one resend;
// any further failure propagates unchanged. Other transport and protocol
// errors are logged with method+path context and returned without retry.
func (m *Manager) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	m.mu.RLock()
	tr := m.tr
	initialized := m.initialized
	scheme := m.scheme
	m.mu.RUnlock()

	if !initialized || tr == nil {
		return nil, transport.ErrNotConnected
	}

	start := time.Now()
	res, err := tr.Do(ctx, method, resolvePath(scheme, m.cfg.Site, path), body)
	if err == nil {
		m.logger.Debug("request dispatched", "method", method, "path", path, "duration", time.Since(start))
		return res, nil
	}

	if transport.IsAuthError(err) {
		return m.retryAfterRelogin(ctx, method, path, body, err)
	}

	var apiErr *transport.APIError
	var reqErr *transport.RequestError
	switch {
	case errors.As(err, &apiErr), errors.As(err, &reqErr):
		m.logger.Error("request failed", "method", method, "path", path, "error", err)
	default:
		// Anything outside the known taxonomy leaves the session in doubt.
		m.logger.Error("unexpected request failure, marking session stale",
			"method", method, "path", path, "error", err)
		m.markDisconnected()
	}
	return nil, err
}

// retryAfterRelogin performs the single recovery cycle allowed per request:
// one re-login, one resend.
func (m *Manager) retryAfterRelogin(ctx context.Context, method, path string, body any, cause error) (json.RawMessage, error) {
	m.logger.Info("session expired, re-authenticating", "method", method, "path", path)
	m.markDisconnected()

	if !m.Initialize(ctx) {
		return nil, fmt.Errorf("re-login after session expiry failed: %w", cause)
	}

	m.mu.RLock()
	tr := m.tr
	scheme := m.scheme
	m.mu.RUnlock()

	res, err := tr.Do(ctx, method, resolvePath(scheme, m.cfg.Site, path), body)
	if err != nil {
		m.logger.Error("request failed after re-login", "method", method, "path", path, "error", err)
		return nil, err
	}
	return res, nil
}

// Close tears down the session explicitly.
func (m *Manager) Close() {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()
	m.teardown()
	m.setState(StateDisconnected)
	m.logger.Info("controller session closed", "host", m.cfg.Host)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ConnectionID returns the id of the current session, empty when
// disconnected. Useful for correlating logs across reconnects.
func (m *Manager) ConnectionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connID
}

// LastConnect returns the time the current session was established.
func (m *Manager) LastConnect() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastConnect
}

// Scheme returns the effective path scheme for the current session.
func (m *Manager) Scheme() detect.Scheme {
	return m.currentScheme()
}

// ── internal state helpers ───────────────────────────────────────────

func (m *Manager) connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized && m.tr.Open()
}

func (m *Manager) currentScheme() detect.Scheme {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scheme
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) markDisconnected() {
	m.mu.Lock()
	m.initialized = false
	m.state = StateDisconnected
	m.connID = ""
	m.mu.Unlock()
}

func (m *Manager) teardown() {
	m.mu.Lock()
	if m.tr != nil {
		m.tr.Close()
		m.tr = nil
	}
	m.initialized = false
	m.connID = ""
	m.mu.Unlock()
}

// resolvePath builds the full controller path for a site-relative data path.
// Paths that already address the controller absolutely (login, proxy or api
// roots) pass through untouched.
func resolvePath(scheme detect.Scheme, site, path string) string {
	if strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/proxy/") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return scheme.Prefix() + "/api/s/" + site + path
}

func manualScheme(mode string) detect.Scheme {
	if mode == config.SchemeProxy {
		return detect.SchemeProxy
	}
	return detect.SchemeDirect
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
