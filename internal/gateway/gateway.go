// ABOUTME: Gateway orchestrator that wires identity, agent client, store, and conversation layers
// ABOUTME: Manages listener setup, bootstrap readiness, and graceful shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/tjwyz/aqpMcp/internal/auth"
	"github.com/tjwyz/aqpMcp/internal/config"
	"github.com/tjwyz/aqpMcp/internal/conversation"
	"github.com/tjwyz/aqpMcp/internal/foundry"
	"github.com/tjwyz/aqpMcp/internal/identity"
	"github.com/tjwyz/aqpMcp/internal/store"
)

// conversationService is the slice of the conversation layer the HTTP
// surface depends on.
type conversationService interface {
	EnsureThread(ctx context.Context, threadID string) (string, error)
	AppendAndRun(ctx context.Context, threadID, agentID, message string) (*conversation.RunOutcome, error)
	History(ctx context.Context, threadID string) ([]foundry.Message, error)
	MergedHistory(ctx context.Context, limit int, threadIDs ...string) ([]foundry.Message, error)
}

// agentProber verifies agent bindings against the remote service.
type agentProber interface {
	GetAgent(ctx context.Context, agentID string) (*foundry.Agent, error)
}

// tokenSource supplies service credentials.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Gateway coordinates the aqp-gateway server components.
// It owns the HTTP server, the upstream agent client, and the run ledger.
type Gateway struct {
	config       *config.Config
	conversation conversationService
	prober       agentProber
	tokens       tokenSource
	runLog       store.RunLog
	verifier     auth.Verifier
	httpServer   *http.Server
	tsnetServer  *tsnet.Server
	logger       *slog.Logger

	// ready flips to true once bootstrap has verified credentials and
	// agent bindings. Agent endpoints refuse to serve before that.
	ready atomic.Bool
}

// initRunLog creates the run ledger based on config and environment.
// An empty path disables persistence rather than failing startup.
func initRunLog(cfg *config.Config, logger *slog.Logger) (store.RunLog, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("AQP_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	if dbPath == "" {
		logger.Info("run ledger disabled - no database path configured")
		return store.NopRunLog{}, nil
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing run ledger: %w", err)
	}
	return s, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	runLog, err := initRunLog(cfg, logger)
	if err != nil {
		return nil, err
	}

	provider := identity.NewProvider(identity.Credentials{
		TenantID:     cfg.Service.Auth.TenantID,
		ClientID:     cfg.Service.Auth.ClientID,
		ClientSecret: cfg.Service.Auth.ClientSecret,
	}, logger)

	opts := []foundry.Option{foundry.WithLogger(logger)}
	if cfg.Service.APIVersion != "" {
		opts = append(opts, foundry.WithAPIVersion(cfg.Service.APIVersion))
	}
	client := foundry.New(cfg.Service.BaseURL, provider, opts...)

	convService := conversation.New(client, runLog, conversation.PollConfig{
		Interval: cfg.Runs.PollInterval,
		Timeout:  cfg.Runs.Timeout,
	}, logger)

	gw := &Gateway{
		config:       cfg,
		conversation: convService,
		prober:       client,
		tokens:       provider,
		runLog:       runLog,
		logger:       logger.With("component", "gateway"),
	}

	if cfg.Auth.APISecret != "" {
		gw.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.APISecret))
		logger.Info("HTTP auth middleware enabled")
	} else {
		logger.Warn("HTTP auth disabled - no api_secret configured")
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.withRequestLog(gw.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Ready reports whether bootstrap has completed.
func (g *Gateway) Ready() bool {
	return g.ready.Load()
}

// bootstrap warms the credential cache and verifies every configured agent
// binding before the gateway starts serving agent traffic. Any failure
// here aborts startup.
func (g *Gateway) bootstrap(ctx context.Context) error {
	if _, err := g.tokens.Token(ctx); err != nil {
		return fmt.Errorf("acquiring service token: %w", err)
	}

	for _, role := range g.config.Agents.Roles() {
		agentID, _ := g.config.Agents.ID(role)
		agent, err := g.prober.GetAgent(ctx, agentID)
		if err != nil {
			return fmt.Errorf("verifying %s agent %s: %w", role, agentID, err)
		}
		g.logger.Info("agent binding verified", "role", role, "agent_id", agent.ID, "name", agent.Name)
	}

	g.ready.Store(true)
	g.logger.Info("bootstrap complete, agent endpoints open")
	return nil
}

// warnIgnoredAddress logs a warning if a server address is configured but
// Tailscale is enabled.
func (g *Gateway) warnIgnoredAddress() {
	if g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// setupListener creates the HTTP listener based on configuration
// (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddress()
		return g.setupTailscaleListener(ctx)
	}

	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// startServer starts the HTTP server in a goroutine, returning an error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the gateway and blocks until the context is canceled.
// Health endpoints come up immediately; agent endpoints open only after
// bootstrap verifies the upstream credentials and agent bindings.
// Returns nil on graceful shutdown (context canceled), or an error if
// bootstrap or the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	listener, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServer(listener)

	if err := g.bootstrap(ctx); err != nil {
		g.logger.Error("bootstrap failed", "error", err)
		if shutdownErr := g.gracefulShutdown(); shutdownErr != nil {
			g.logger.Error("shutdown after failed bootstrap", "error", shutdownErr)
		}
		return fmt.Errorf("bootstrap: %w", err)
	}

	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "aqp-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet server and returns an HTTP listener
// bound inside the tailnet.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the gateway server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "run ledger close", g.runLog.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
