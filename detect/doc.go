// Package detect resolves which URL-path convention a controller expects by
// probing the two known candidates rather than guessing from version strings.
//
// Controllers come in two shapes: appliances that front the network API with
// a reverse proxy (paths prefixed /proxy/network) and software installs that
// expose /api directly. The detector issues one bounded GET per candidate
// and picks the scheme whose probe answered with a recognizable status body.
// When both answer, the direct scheme wins. When neither answers, the caller
// falls back to direct paths and the operator is pointed at the manual
// scheme override.
//
// Detection runs after login so probes ride the authenticated cookie jar,
// which is considerably more reliable than anonymous probing on hardened
// controllers.
package detect
