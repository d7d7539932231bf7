package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/netfold/ctrlmesh/logging"
)

// LoginPath is the controller endpoint that issues the session cookie.
const LoginPath = "/api/auth/login"

const defaultRequestTimeout = 30 * time.Second

// Options holds configuration overrides passed to New().
type Options struct {
	// RequestTimeout bounds every single HTTP round trip.
	RequestTimeout time.Duration
	// Logger receives transport level diagnostics.
	Logger logging.Logger
}

// Transport is an HTTPS JSON client bound to one controller with one cookie
// jar. It is created fresh for every connect attempt and torn down on
// reconnect, so a stale session cookie never survives a re-login.
//
// Transport is exclusively owned by its session manager; it performs no
// internal locking.
type Transport struct {
	baseURL  string
	client   *http.Client
	logger   logging.Logger
	loggedIn bool
}

// New creates a Transport with a fresh cookie jar. skipTLSVerify disables
// certificate verification for self-signed controllers.
func New(baseURL string, skipTLSVerify bool, optFns ...func(o *Options)) (*Transport, error) {
	opts := Options{
		RequestTimeout: defaultRequestTimeout,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Jar:     jar,
			Timeout: opts.RequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: skipTLSVerify}, //nolint:gosec // explicit opt-in for self-signed controllers
			},
		},
		logger: opts.Logger,
	}, nil
}

// BaseURL returns the controller root URL this transport is bound to.
func (t *Transport) BaseURL() string { return t.baseURL }

// HTTPClient exposes the underlying client so authenticated probes can reuse
// the session cookie jar.
func (t *Transport) HTTPClient() *http.Client { return t.client }

// Open reports whether the transport holds a logged-in session.
func (t *Transport) Open() bool { return t != nil && t.loggedIn }

// Close drops the session and releases idle connections. The cookie jar is
// abandoned with the transport itself.
func (t *Transport) Close() {
	if t == nil {
		return
	}
	t.loggedIn = false
	t.client.CloseIdleConnections()
}

// Login posts credentials to the controller login endpoint. The issued
// session cookie lands in the jar automatically.
func (t *Transport) Login(ctx context.Context, username, password string) error {
	payload, _ := sjson.Set("", "username", username)
	payload, _ = sjson.Set(payload, "password", password)
	payload, _ = sjson.Set(payload, "remember", true)

	if _, err := t.Do(ctx, http.MethodPost, LoginPath, json.RawMessage(payload)); err != nil {
		return err
	}
	t.loggedIn = true
	return nil
}

// Do performs a single JSON round trip against the controller. path must be
// the fully resolved controller path (scheme prefix already applied).
//
// Failures are classified: HTTP 401/403 and controller "LoginRequired"
// markers become *AuthError, envelope-level failures become *APIError, and
// everything else becomes *RequestError.
func (t *Transport) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &RequestError{Op: method, Path: path, Err: fmt.Errorf("encode body: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), t.baseURL+path, reader)
	if err != nil {
		return nil, &RequestError{Op: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("transport request failed", "method", method, "path", path, "error", err)
		return nil, &RequestError{Op: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Op: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	t.logger.Debug("transport request completed",
		"method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Status: resp.StatusCode, Path: path, Msg: gjson.GetBytes(data, "meta.msg").String()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{Op: method, Path: path, Status: resp.StatusCode}
	}

	if err := checkEnvelope(path, data); err != nil {
		return nil, err
	}

	return data, nil
}

// checkEnvelope inspects the controller response envelope. Controllers wrap
// REST payloads as {"meta": {"rc": "ok"|"error", "msg": ...}, "data": [...]}.
// Responses without a meta field (login, status pages) pass through.
func checkEnvelope(path string, data []byte) error {
	meta := gjson.GetBytes(data, "meta")
	if !meta.Exists() {
		return nil
	}
	rc := meta.Get("rc").String()
	if rc == "" || rc == "ok" {
		return nil
	}
	msg := meta.Get("msg").String()
	if strings.Contains(msg, "api.err.LoginRequired") {
		return &AuthError{Path: path, Msg: msg}
	}
	return &APIError{RC: rc, Msg: msg, Path: path}
}
