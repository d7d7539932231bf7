// Package session owns the authenticated connection to a controller.
//
// The Manager runs the full connect lifecycle (Disconnected → Connecting →
// Connected), serializing concurrent connect attempts behind one lock,
// retrying transient login failures with a fixed delay, and resolving the
// controller's path scheme once per session. Data requests flow through
// Request, which recovers from session expiry with exactly one re-login and
// one resend before surfacing the failure.
//
// The transport handle is exclusively owned: it is created and torn down
// only inside the connect path, and every reconnect starts from a fresh
// cookie jar.
package session
