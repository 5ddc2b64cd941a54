// ABOUTME: Credential provider performing AAD client-credentials exchanges.
// ABOUTME: Caches the access token and refreshes it inside a 60-second expiry margin.

package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tjwyz/aqpMcp/internal/freshness"
)

const (
	// tokenMargin is the minimum remaining validity required before a
	// cached token is reused instead of exchanged anew.
	tokenMargin = 60 * time.Second

	// defaultTokenTTL applies when the identity response omits expires_in.
	defaultTokenTTL = 3600 * time.Second
)

// Credentials identifies the application against the identity endpoint.
// The scope is derived as "<client id>/.default".
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Provider exchanges client credentials for bearer tokens and caches the
// result. One provider instance is constructed per process by the
// composition root; there is no hidden package-level state.
type Provider struct {
	creds      Credentials
	endpoint   string
	httpClient *http.Client
	cache      *freshness.Cache
	logger     *slog.Logger
}

// NewProvider creates a provider for the given credentials. The token
// endpoint is derived from the tenant id.
func NewProvider(creds Credentials, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		creds:      creds,
		endpoint:   fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", creds.TenantID),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      freshness.New(),
		logger:     logger.With("component", "identity"),
	}
}

// Token returns a bearer token with at least 60 seconds of validity left,
// performing a credential exchange when the cached one is missing or too
// close to expiry. Every failure is returned as an error and leaves any
// previously cached token in place; callers must treat an error as
// "authentication unavailable" rather than retrying here.
func (p *Provider) Token(ctx context.Context) (string, error) {
	return p.cache.GetOrRefresh(ctx, tokenMargin, p.exchange)
}

// tokenResponse is the subset of the identity response we consume.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// exchange performs one client-credentials POST against the identity
// endpoint and returns the token with its TTL.
func (p *Provider) exchange(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.creds.ClientID)
	form.Set("client_secret", p.creds.ClientSecret)
	form.Set("scope", p.creds.ClientID+"/.default")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.logger.Warn("token exchange rejected", "status", resp.StatusCode)
		return "", 0, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}

	ttl := defaultTokenTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}

	p.logger.Debug("token refreshed", "expires_in", int64(ttl.Seconds()))
	return tr.AccessToken, ttl, nil
}
