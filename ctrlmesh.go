// Package ctrlmesh provides a resilient client core for remote
// network-management controllers: an authenticated cookie-session layer with
// retry and recovery, empirical path-scheme detection, a TTL response cache
// and a background-job store for long-running remote operations. Most
// applications interact with this package by:
//  1. Creating a Client via New() with a config (optionally overriding the
//     default logger, cache and job store)
//  2. Calling Initialize()/EnsureConnected() to establish the session
//  3. Dispatching data requests through Request and tracking long-running
//     operations through Jobs()
//
// The façade delegates connection handling to session.Manager while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a
// structured logger.
package ctrlmesh

import (
	"context"
	"encoding/json"

	"github.com/netfold/ctrlmesh/cache"
	"github.com/netfold/ctrlmesh/config"
	"github.com/netfold/ctrlmesh/jobs"
	"github.com/netfold/ctrlmesh/logging"
	"github.com/netfold/ctrlmesh/session"
)

// Options configures the Client instance.
type Options struct {
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Stores (default to fresh in-memory instances if not provided)
	Cache *cache.Cache
	Jobs  *jobs.Store
}

// Client is the high-level façade aggregating the session manager, response
// cache and job store. Create one Client per controller (or per test);
// there is no package-level shared state.
type Client struct {
	cfg     *config.Config
	session *session.Manager
	cache   *cache.Cache
	jobs    *jobs.Store
}

// New creates a Client for the controller described by cfg. Any unset
// service is initialized with a fresh in-memory implementation.
func New(cfg *config.Config, optFns ...func(o *Options)) *Client {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Cache == nil {
		opts.Cache = cache.New(func(o *cache.Options) { o.Logger = opts.Logger })
	}
	if opts.Jobs == nil {
		opts.Jobs = jobs.NewStore(func(o *jobs.Options) { o.Logger = opts.Logger })
	}

	return &Client{
		cfg: cfg,
		session: session.NewManager(cfg, func(o *session.Options) {
			o.Logger = opts.Logger
		}),
		cache: opts.Cache,
		jobs:  opts.Jobs,
	}
}

// Initialize establishes the controller session. See session.Manager.
func (c *Client) Initialize(ctx context.Context) bool {
	return c.session.Initialize(ctx)
}

// EnsureConnected checks session liveness, reconnecting only when stale.
func (c *Client) EnsureConnected(ctx context.Context) bool {
	return c.session.EnsureConnected(ctx)
}

// Request dispatches one JSON request against the controller.
func (c *Client) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	return c.session.Request(ctx, method, path, body)
}

// Close tears down the controller session. Background jobs keep running to
// their terminal state.
func (c *Client) Close() {
	c.session.Close()
}

// Session exposes the underlying session manager.
func (c *Client) Session() *session.Manager { return c.session }

// Cache exposes the response cache shared by resource-level callers.
func (c *Client) Cache() *cache.Cache { return c.cache }

// Jobs exposes the background job store.
func (c *Client) Jobs() *jobs.Store { return c.jobs }
