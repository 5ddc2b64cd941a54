// ABOUTME: Tests for Gateway lifecycle covering construction, bootstrap, and shutdown.
// ABOUTME: Uses fake token and prober implementations to avoid remote calls.

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tjwyz/aqpMcp/internal/config"
	"github.com/tjwyz/aqpMcp/internal/foundry"
)

// testConfig creates a minimal config for testing with an available port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	httpListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available HTTP port: %v", err)
	}
	httpAddr := httpListener.Addr().String()
	httpListener.Close()

	return &config.Config{
		Service: config.ServiceConfig{
			BaseURL: "https://agents.example.net/api",
		},
		Agents: config.AgentsConfig{
			Params:  "asst_params",
			Summary: "asst_summary",
		},
		Server: config.ServerConfig{
			HTTPAddr: httpAddr,
		},
		Database: config.DatabaseConfig{
			Path: ":memory:",
		},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTokenSource struct {
	err   error
	calls int
}

func (f *fakeTokenSource) Token(ctx context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "test-token", nil
}

type fakeProber struct {
	err    error
	probed []string
}

func (f *fakeProber) GetAgent(ctx context.Context, agentID string) (*foundry.Agent, error) {
	f.probed = append(f.probed, agentID)
	if f.err != nil {
		return nil, f.err
	}
	return &foundry.Agent{ID: agentID, Name: "Agent"}, nil
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)
	logger := testLogger()

	gw, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.config != cfg {
		t.Error("gateway config mismatch")
	}
	if gw.conversation == nil {
		t.Error("conversation service should not be nil")
	}
	if gw.runLog == nil {
		t.Error("run ledger should not be nil")
	}
	if gw.Ready() {
		t.Error("gateway should not be ready before bootstrap")
	}
}

func TestGatewayNew_AuthVerifier(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())
	if gw.verifier != nil {
		t.Error("no api_secret configured, verifier should be nil")
	}

	cfg2 := testConfig(t)
	cfg2.Auth.APISecret = "0123456789abcdef0123456789abcdef"
	gw2, err := New(cfg2, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw2.Shutdown(context.Background())
	if gw2.verifier == nil {
		t.Error("api_secret configured, verifier should be set")
	}
}

func TestBootstrap_VerifiesAllAgents(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	tokens := &fakeTokenSource{}
	prober := &fakeProber{}
	gw.tokens = tokens
	gw.prober = prober

	if err := gw.bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	if !gw.Ready() {
		t.Error("gateway should be ready after bootstrap")
	}
	if tokens.calls != 1 {
		t.Errorf("expected one token acquisition, got %d", tokens.calls)
	}

	want := []string{"asst_params", "asst_summary"}
	if len(prober.probed) != len(want) {
		t.Fatalf("expected %d probes, got %v", len(want), prober.probed)
	}
	for i, id := range want {
		if prober.probed[i] != id {
			t.Errorf("probe %d: expected %s, got %s", i, id, prober.probed[i])
		}
	}
}

func TestBootstrap_TokenFailure(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	prober := &fakeProber{}
	gw.tokens = &fakeTokenSource{err: errors.New("invalid_client")}
	gw.prober = prober

	err = gw.bootstrap(context.Background())
	if err == nil {
		t.Fatal("expected bootstrap to fail")
	}
	if !strings.Contains(err.Error(), "acquiring service token") {
		t.Errorf("unexpected error: %v", err)
	}
	if gw.Ready() {
		t.Error("gateway must not become ready after a failed bootstrap")
	}
	if len(prober.probed) != 0 {
		t.Errorf("agents should not be probed without a token, got %v", prober.probed)
	}
}

func TestBootstrap_ProbeFailure(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	gw.tokens = &fakeTokenSource{}
	gw.prober = &fakeProber{err: errors.New("404 not found")}

	err = gw.bootstrap(context.Background())
	if err == nil {
		t.Fatal("expected bootstrap to fail")
	}
	if !strings.Contains(err.Error(), "verifying params agent asst_params") {
		t.Errorf("error should name the failing role and agent, got: %v", err)
	}
	if gw.Ready() {
		t.Error("gateway must not become ready after a failed bootstrap")
	}
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	logger := testLogger()

	gw, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	gw.tokens = &fakeTokenSource{}
	gw.prober = &fakeProber{}

	ctx, cancel := context.WithCancel(context.Background())

	// Run gateway in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	// Wait for bootstrap to complete
	deadline := time.Now().Add(5 * time.Second)
	for !gw.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("gateway did not become ready in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Shutdown via context cancel
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not shutdown in time")
	}
}

func TestGatewayRun_BootstrapFailureAborts(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	gw.tokens = &fakeTokenSource{err: errors.New("invalid_client")}
	gw.prober = &fakeProber{}

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(context.Background())
	}()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected Run to fail when bootstrap fails")
		}
		if !strings.Contains(err.Error(), "bootstrap") {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not abort in time")
	}
}
