package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTransport(t *testing.T, handler http.Handler) *Transport {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	tr, err := New(srv.URL, true)
	require.NoError(t, err)
	return tr
}

func TestLoginStoresSessionCookie(t *testing.T) {
	var sawCookie bool

	tr := newTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case LoginPath:
			body, _ := io.ReadAll(r.Body)
			payload := gjson.ParseBytes(body)
			assert.Equal(t, "admin", payload.Get("username").String())
			assert.Equal(t, "secret", payload.Get("password").String())
			http.SetCookie(w, &http.Cookie{Name: "TOKEN", Value: "session-token"})
			_, _ = w.Write([]byte(`{}`))
		default:
			_, err := r.Cookie("TOKEN")
			sawCookie = err == nil
			_, _ = w.Write([]byte(`{"meta":{"rc":"ok"},"data":[]}`))
		}
	}))

	assert.False(t, tr.Open())

	err := tr.Login(context.Background(), "admin", "secret")
	require.NoError(t, err)
	assert.True(t, tr.Open())

	_, err = tr.Do(context.Background(), http.MethodGet, "/api/s/default/stat/sta", nil)
	require.NoError(t, err)
	assert.True(t, sawCookie, "data requests must carry the session cookie")

	tr.Close()
	assert.False(t, tr.Open())
}

func TestDoClassifiesAuthStatus(t *testing.T) {
	tr := newTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"meta":{"rc":"error","msg":"api.err.LoginRequired"}}`))
	}))

	_, err := tr.Do(context.Background(), http.MethodGet, "/api/s/default/stat/sta", nil)
	require.Error(t, err)
	assert.True(t, IsAuthError(err))

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
	assert.Equal(t, "api.err.LoginRequired", ae.Msg)
}

func TestDoClassifiesEnvelopeLoginRequired(t *testing.T) {
	// Some controllers answer 200 with a LoginRequired envelope instead of 401.
	tr := newTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"meta":{"rc":"error","msg":"api.err.LoginRequired"}}`))
	}))

	_, err := tr.Do(context.Background(), http.MethodGet, "/api/s/default/stat/sta", nil)
	assert.True(t, IsAuthError(err))
}

func TestDoClassifiesAPIError(t *testing.T) {
	tr := newTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"meta":{"rc":"error","msg":"api.err.InvalidPayload"}}`))
	}))

	_, err := tr.Do(context.Background(), http.MethodPost, "/api/s/default/cmd/devmgr", map[string]string{"cmd": "restart"})
	require.Error(t, err)
	assert.False(t, IsAuthError(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "error", apiErr.RC)
	assert.Equal(t, "api.err.InvalidPayload", apiErr.Msg)
}

func TestDoClassifiesUnexpectedStatus(t *testing.T) {
	tr := newTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := tr.Do(context.Background(), http.MethodGet, "/api/s/default/stat/sta", nil)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadGateway, reqErr.Status)
}

func TestDoNetworkFailure(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr, err := New(url, true)
	require.NoError(t, err)

	_, err = tr.Do(context.Background(), http.MethodGet, "/status", nil)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 0, reqErr.Status)
	assert.Error(t, reqErr.Unwrap())
}

func TestDoPassesThroughEnvelopeFreeBodies(t *testing.T) {
	tr := newTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"unique_id":"abc"}`))
	}))

	res, err := tr.Do(context.Background(), http.MethodGet, "/api/users/self", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", gjson.GetBytes(res, "unique_id").String())
}
