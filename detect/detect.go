package detect

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/netfold/ctrlmesh/logging"
)

// Scheme identifies the URL-path convention a controller expects for its
// REST surface.
type Scheme int

const (
	// SchemeUnknown means detection has not resolved (or failed).
	SchemeUnknown Scheme = iota
	// SchemeDirect means the API is exposed directly under /api.
	SchemeDirect
	// SchemeProxy means the API sits behind a reverse-proxy prefix.
	SchemeProxy
)

// String returns the string representation of the scheme.
func (s Scheme) String() string {
	switch s {
	case SchemeDirect:
		return "direct"
	case SchemeProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// Prefix returns the path prefix requests must carry under this scheme.
// Unknown falls back to the direct (empty) prefix.
func (s Scheme) Prefix() string {
	if s == SchemeProxy {
		return ProxyPrefix
	}
	return ""
}

// Controller probe endpoints. Both return a JSON body carrying a "meta"
// field when the candidate scheme matches.
const (
	ProxyPrefix     = "/proxy/network"
	ProxyProbePath  = ProxyPrefix + "/status"
	DirectProbePath = "/status"
)

// Doer is the minimal HTTP client surface the detector needs. Passing the
// session transport's client lets probes ride the authenticated cookie jar.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options holds configuration overrides passed to New().
type Options struct {
	// ProbeTimeout bounds each individual probe request.
	ProbeTimeout time.Duration
	// MaxRetries is the number of full detection attempts DetectWithRetry
	// performs before giving up.
	MaxRetries int
	// Logger receives probe diagnostics and the remediation hint.
	Logger logging.Logger
	// Sleep is the backoff sleeper, injectable for tests.
	Sleep func(ctx context.Context, d time.Duration)
}

// Detector empirically determines which path scheme a controller expects by
// probing one fixed endpoint per candidate. A resolved result is expected to
// be cached by the caller for the session lifetime; the detector itself is
// stateless and never mutates shared state.
type Detector struct {
	client     Doer
	baseURL    string
	timeout    time.Duration
	maxRetries int
	logger     logging.Logger
	sleep      func(ctx context.Context, d time.Duration)
}

// New constructs a Detector probing the controller at baseURL through client.
func New(client Doer, baseURL string, optFns ...func(o *Options)) *Detector {
	opts := Options{
		ProbeTimeout: 5 * time.Second,
		MaxRetries:   3,
		Logger:       logging.NoOpLogger{},
		Sleep:        sleepCtx,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Detector{
		client:     client,
		baseURL:    baseURL,
		timeout:    opts.ProbeTimeout,
		maxRetries: opts.MaxRetries,
		logger:     opts.Logger,
		sleep:      opts.Sleep,
	}
}

// Detect issues one probe per candidate scheme and resolves:
//
//   - exactly one probe succeeds → that scheme
//   - both succeed → SchemeDirect (empirical tie-break: fewer hops win;
//     kept as-is pending stakeholder confirmation)
//   - both fail → SchemeUnknown
//
// Detect never returns an error.
func (d *Detector) Detect(ctx context.Context) Scheme {
	scheme, _ := d.detect(ctx)
	return scheme
}

// DetectWithRetry calls Detect up to MaxRetries times. An attempt that hit
// transport-level probe failures sleeps with exponential backoff (1s, 2s,
// 4s, ...) before the next attempt; an attempt that merely resolved to
// Unknown proceeds immediately. Returns SchemeUnknown after exhaustion and
// never returns an error.
func (d *Detector) DetectWithRetry(ctx context.Context) Scheme {
	delay := time.Second

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		scheme, err := d.detect(ctx)
		if scheme != SchemeUnknown {
			d.logger.Info("path scheme resolved", "scheme", scheme.String(), "attempt", attempt)
			return scheme
		}
		if err == nil {
			// Clean Unknown: probes answered but matched no scheme.
			// Backing off would not change the evidence.
			continue
		}
		if attempt < d.maxRetries {
			d.logger.Warn("path scheme detection failed, backing off",
				"attempt", attempt, "delay", delay, "error", err)
			d.sleep(ctx, delay)
			delay *= 2
		}
	}

	d.logger.Warn("path scheme detection exhausted; falling back to direct paths",
		"remediation", "set the scheme config option to proxy or direct to bypass detection")
	return SchemeUnknown
}

// detect runs both probes. The returned error is non-nil only when every
// probe failed at the transport level, which is the signal DetectWithRetry
// uses to back off.
func (d *Detector) detect(ctx context.Context) (Scheme, error) {
	proxyOK, proxyErr := d.probe(ctx, SchemeProxy, ProxyProbePath)
	directOK, directErr := d.probe(ctx, SchemeDirect, DirectProbePath)

	switch {
	case directOK:
		// Direct wins ties over proxy.
		return SchemeDirect, nil
	case proxyOK:
		return SchemeProxy, nil
	}

	if proxyErr != nil && directErr != nil {
		return SchemeUnknown, directErr
	}
	return SchemeUnknown, nil
}

// probe issues one bounded GET and reports whether the response looks like a
// controller status page: HTTP 200 with a JSON body carrying a meta field.
func (d *Detector) probe(ctx context.Context, scheme Scheme, path string) (bool, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		d.logger.Debug("probe rejected", "scheme", scheme.String(), "status", resp.StatusCode)
		return false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, err
	}

	ok := gjson.GetBytes(body, "meta").Exists()
	d.logger.Debug("probe completed", "scheme", scheme.String(), "success", ok, "duration", time.Since(start))
	return ok, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
