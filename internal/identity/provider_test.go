// ABOUTME: Tests for the AAD client-credentials provider.
// ABOUTME: Validates form encoding, scope derivation, caching, TTL defaults, and failure handling.

package identity

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider(t *testing.T, handler http.HandlerFunc) (*Provider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewProvider(Credentials{
		TenantID:     "tenant-1",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
	}, slog.New(slog.NewTextHandler(&testWriter{t}, nil)))
	p.endpoint = srv.URL
	return p, srv
}

// testWriter routes slog output through t.Logf so failures show context.
type testWriter struct{ t *testing.T }

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

func TestProvider_Token_SendsClientCredentialsForm(t *testing.T) {
	var gotContentType string
	var gotForm map[string]string

	p, _ := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
			"scope":         r.PostForm.Get("scope"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-abc","expires_in":3600}`))
	})

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token)

	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, "client_credentials", gotForm["grant_type"])
	assert.Equal(t, "client-1", gotForm["client_id"])
	assert.Equal(t, "secret-1", gotForm["client_secret"])
	assert.Equal(t, "client-1/.default", gotForm["scope"], "scope should derive from the client id")
}

func TestProvider_Token_ReusesCachedToken(t *testing.T) {
	var calls atomic.Int32

	p, _ := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"access_token":"tok-abc","expires_in":3600}`))
	})

	for i := 0; i < 3; i++ {
		token, err := p.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-abc", token)
	}

	assert.Equal(t, int32(1), calls.Load(), "a token with an hour of validity should be exchanged once")
}

func TestProvider_Token_RefreshesInsideMargin(t *testing.T) {
	var calls atomic.Int32

	// 30 seconds of validity is below the 60-second margin, so every
	// lookup has to go back to the identity endpoint.
	p, _ := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"access_token":"tok-short","expires_in":30}`))
	})

	_, err := p.Token(context.Background())
	require.NoError(t, err)
	_, err = p.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load(), "a token below the margin must not be reused")
}

func TestProvider_Token_DefaultTTLWhenExpiryOmitted(t *testing.T) {
	p, _ := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok-abc"}`))
	})

	_, err := p.Token(context.Background())
	require.NoError(t, err)

	_, expiresAt, ok := p.cache.Peek()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(defaultTokenTTL), expiresAt, 5*time.Second,
		"missing expires_in should fall back to the 3600s default")
}

func TestProvider_Token_ErrorOnRejectedExchange(t *testing.T) {
	p, _ := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	})

	token, err := p.Token(context.Background())
	assert.Error(t, err)
	assert.Empty(t, token)
	assert.Contains(t, err.Error(), "401")
}

func TestProvider_Token_ErrorOnMissingAccessToken(t *testing.T) {
	p, _ := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"expires_in":3600}`))
	})

	_, err := p.Token(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing access_token")
}

func TestProvider_Token_ErrorOnTransportFailure(t *testing.T) {
	p, srv := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok-abc","expires_in":3600}`))
	})
	srv.Close()

	token, err := p.Token(context.Background())
	assert.Error(t, err)
	assert.Empty(t, token)
}

func TestProvider_Token_FailedRefreshKeepsCachedToken(t *testing.T) {
	var fail atomic.Bool

	p, _ := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		// Short-lived token: the next lookup falls inside the margin
		// and has to attempt another exchange.
		w.Write([]byte(`{"access_token":"tok-old","expires_in":30}`))
	})

	_, err := p.Token(context.Background())
	require.NoError(t, err)

	fail.Store(true)

	_, err = p.Token(context.Background())
	assert.Error(t, err, "refresh inside the margin should surface the exchange failure")

	// The stored pair survives the failed refresh untouched.
	value, _, ok := p.cache.Peek()
	require.True(t, ok)
	assert.Equal(t, "tok-old", value)
}
