package session

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfold/ctrlmesh/config"
	"github.com/netfold/ctrlmesh/detect"
	"github.com/netfold/ctrlmesh/transport"
)

// fakeController emulates the controller surface the manager talks to:
// a login endpoint issuing a cookie, two probe endpoints and site-scoped
// data endpoints. Counters are mutex-guarded so tests can assert exact
// call counts.
type fakeController struct {
	mu           sync.Mutex
	logins       int
	failLogins   int // fail this many logins with 503 before succeeding
	authFailures int // data requests to reject with 401 first; -1 = always
	directProbe  bool
	proxyProbe   bool
	probes       int
	requests     int
	dataPaths    []string
}

func (f *fakeController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	switch r.URL.Path {
	case transport.LoginPath:
		f.logins++
		if f.logins <= f.failLogins {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "TOKEN", Value: "session-token"})
		_, _ = w.Write([]byte(`{}`))

	case detect.DirectProbePath, detect.ProxyProbePath:
		f.probes++
		ok := (r.URL.Path == detect.DirectProbePath && f.directProbe) ||
			(r.URL.Path == detect.ProxyProbePath && f.proxyProbe)
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"meta":{"rc":"ok","up":true}}`))

	default:
		f.dataPaths = append(f.dataPaths, r.URL.Path)
		if _, err := r.Cookie("TOKEN"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"meta":{"rc":"error","msg":"api.err.LoginRequired"}}`))
			return
		}
		if f.authFailures != 0 {
			if f.authFailures > 0 {
				f.authFailures--
			}
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"meta":{"rc":"error","msg":"api.err.LoginRequired"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"meta":{"rc":"ok"},"data":[{"mac":"aa:bb:cc:dd:ee:ff"}]}`))
	}
}

func (f *fakeController) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeController) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

func (f *fakeController) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeController) dataPathList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.dataPaths))
	copy(out, f.dataPaths)
	return out
}

func testConfig(t *testing.T, srv *httptest.Server) *config.Config {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Host = host
	cfg.Port = port
	cfg.Username = "admin"
	cfg.Password = "secret"
	cfg.SkipTLSVerify = true
	return cfg
}

func newTestManager(t *testing.T, f *fakeController, mutate func(cfg *config.Config)) (*Manager, *fakeController) {
	t.Helper()
	srv := httptest.NewTLSServer(f)
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv)
	if mutate != nil {
		mutate(cfg)
	}

	m := NewManager(cfg, func(o *Options) {
		o.Sleep = func(context.Context, time.Duration) {}
	})
	t.Cleanup(m.Close)
	return m, f
}

func TestInitializeSuccess(t *testing.T) {
	m, f := newTestManager(t, &fakeController{directProbe: true}, nil)

	assert.True(t, m.Initialize(context.Background()))
	assert.Equal(t, StateConnected, m.State())
	assert.NotEmpty(t, m.ConnectionID())
	assert.False(t, m.LastConnect().IsZero())
	assert.Equal(t, 1, f.loginCount())
	assert.Equal(t, detect.SchemeDirect, m.Scheme())
}

func TestEnsureConnectedIsFreeWhileHealthy(t *testing.T) {
	m, f := newTestManager(t, &fakeController{directProbe: true}, nil)

	require.True(t, m.Initialize(context.Background()))
	before := f.requestCount()

	for i := 0; i < 5; i++ {
		assert.True(t, m.EnsureConnected(context.Background()))
	}

	assert.Equal(t, before, f.requestCount(), "a healthy session must trigger zero network calls")
	assert.Equal(t, 1, f.loginCount())
}

func TestConcurrentInitializeCollapsesToOneLogin(t *testing.T) {
	m, f := newTestManager(t, &fakeController{directProbe: true}, nil)

	var wg sync.WaitGroup
	results := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Initialize(context.Background())
		}(i)
	}
	wg.Wait()

	for _, ok := range results {
		assert.True(t, ok)
	}
	assert.Equal(t, 1, f.loginCount())
}

func TestInitializeRetriesThenGivesUp(t *testing.T) {
	f := &fakeController{failLogins: 100}
	srv := httptest.NewTLSServer(f)
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv)
	cfg.MaxRetries = 3

	var slept []time.Duration
	m := NewManager(cfg, func(o *Options) {
		o.Sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }
	})

	assert.False(t, m.Initialize(context.Background()))
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, 3, f.loginCount())
	// Fixed delay between attempts, none before the first.
	assert.Equal(t, []time.Duration{cfg.RetryDelay, cfg.RetryDelay}, slept)
}

func TestInitializeRecoversOnLaterAttempt(t *testing.T) {
	m, f := newTestManager(t, &fakeController{failLogins: 2, directProbe: true}, nil)

	assert.True(t, m.Initialize(context.Background()))
	assert.Equal(t, 3, f.loginCount())
	assert.Equal(t, StateConnected, m.State())
}

func TestRequestNeverConnected(t *testing.T) {
	m, _ := newTestManager(t, &fakeController{}, nil)

	_, err := m.Request(context.Background(), http.MethodGet, "/stat/sta", nil)
	assert.ErrorIs(t, err, transport.ErrNotConnected)
}

func TestRequestDispatchesAgainstResolvedScheme(t *testing.T) {
	m, f := newTestManager(t, &fakeController{directProbe: true}, nil)
	require.True(t, m.Initialize(context.Background()))

	res, err := m.Request(context.Background(), http.MethodGet, "/stat/sta", nil)
	require.NoError(t, err)
	assert.Contains(t, string(res), "aa:bb:cc:dd:ee:ff")
	assert.Equal(t, []string{"/api/s/default/stat/sta"}, f.dataPathList())
}

func TestAuthExpiryTriggersOneReloginOneRetry(t *testing.T) {
	m, f := newTestManager(t, &fakeController{directProbe: true, authFailures: 1}, nil)
	require.True(t, m.Initialize(context.Background()))
	require.Equal(t, 1, f.loginCount())

	res, err := m.Request(context.Background(), http.MethodGet, "/stat/sta", nil)
	require.NoError(t, err)
	assert.Contains(t, string(res), "aa:bb:cc:dd:ee:ff")

	assert.Equal(t, 2, f.loginCount(), "exactly one re-login")
	assert.Len(t, f.dataPathList(), 2, "exactly one resend")
}

func TestAuthExpiryRetryExhaustionPropagates(t *testing.T) {
	m, f := newTestManager(t, &fakeController{directProbe: true, authFailures: -1}, nil)
	require.True(t, m.Initialize(context.Background()))

	_, err := m.Request(context.Background(), http.MethodGet, "/stat/sta", nil)
	require.Error(t, err)
	assert.True(t, transport.IsAuthError(err))

	assert.Equal(t, 2, f.loginCount(), "no second recovery cycle")
	assert.Len(t, f.dataPathList(), 2)
}

func TestDetectionRunsOncePerSession(t *testing.T) {
	m, f := newTestManager(t, &fakeController{directProbe: true, authFailures: 1}, nil)
	require.True(t, m.Initialize(context.Background()))
	assert.Equal(t, 2, f.probeCount(), "one probe per candidate scheme")

	// The auth-expiry recovery re-logs in; the memoized scheme must not be
	// re-probed for the session lifetime.
	_, err := m.Request(context.Background(), http.MethodGet, "/stat/sta", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, f.probeCount())
	assert.Equal(t, 2, f.loginCount())
}

func TestManualProxyOverrideSkipsDetection(t *testing.T) {
	m, f := newTestManager(t, &fakeController{}, func(cfg *config.Config) {
		cfg.Scheme = config.SchemeProxy
	})

	require.True(t, m.Initialize(context.Background()))
	assert.Equal(t, 0, f.probeCount(), "manual override must bypass detection entirely")
	assert.Equal(t, detect.SchemeProxy, m.Scheme())

	_, err := m.Request(context.Background(), http.MethodGet, "/stat/sta", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/proxy/network/api/s/default/stat/sta"}, f.dataPathList())
}

func TestManualDirectOverride(t *testing.T) {
	m, f := newTestManager(t, &fakeController{}, func(cfg *config.Config) {
		cfg.Scheme = config.SchemeDirect
	})

	require.True(t, m.Initialize(context.Background()))
	assert.Equal(t, 0, f.probeCount())

	_, err := m.Request(context.Background(), http.MethodGet, "/stat/sta", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/s/default/stat/sta"}, f.dataPathList())
}

func TestUnknownDetectionFallsBackToDirectPaths(t *testing.T) {
	// Neither probe matches: detection yields Unknown and requests fall
	// back to direct paths.
	m, f := newTestManager(t, &fakeController{}, func(cfg *config.Config) {
		cfg.DetectRetries = 1
	})

	require.True(t, m.Initialize(context.Background()))
	assert.Equal(t, detect.SchemeUnknown, m.Scheme())

	_, err := m.Request(context.Background(), http.MethodGet, "/stat/sta", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/s/default/stat/sta"}, f.dataPathList())
}

func TestCloseDisconnects(t *testing.T) {
	m, _ := newTestManager(t, &fakeController{directProbe: true}, nil)
	require.True(t, m.Initialize(context.Background()))

	m.Close()
	assert.Equal(t, StateDisconnected, m.State())
	assert.Empty(t, m.ConnectionID())

	_, err := m.Request(context.Background(), http.MethodGet, "/stat/sta", nil)
	assert.ErrorIs(t, err, transport.ErrNotConnected)
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/api/s/default/stat/sta", resolvePath(detect.SchemeDirect, "default", "/stat/sta"))
	assert.Equal(t, "/proxy/network/api/s/corp/stat/sta", resolvePath(detect.SchemeProxy, "corp", "/stat/sta"))
	assert.Equal(t, "/api/s/default/stat/sta", resolvePath(detect.SchemeUnknown, "default", "stat/sta"))
	// Absolute controller paths pass through untouched.
	assert.Equal(t, "/api/self/sites", resolvePath(detect.SchemeProxy, "default", "/api/self/sites"))
	assert.Equal(t, "/proxy/network/status", resolvePath(detect.SchemeDirect, "default", "/proxy/network/status"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
}
