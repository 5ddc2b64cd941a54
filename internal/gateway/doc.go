// Package gateway orchestrates the aqp-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the aqp-gateway
// server. It wires the identity provider, the remote agent client, the
// run ledger, and the conversation service together, and exposes them
// over a small HTTP API.
//
// # HTTP API
//
// Endpoints are registered in api.go:
//
//   - POST /agent/send - Append a message to a thread, run an agent, poll to completion
//   - POST /agent/messages - Merge up to two thread histories into one transcript
//   - GET /ping - Liveness check
//   - GET /readyz - Readiness check
//
// The agent endpoints require a bearer token when auth.api_secret is
// configured; the health endpoints are always open.
//
// # Bootstrap
//
// Run starts the HTTP listener immediately but keeps the agent endpoints
// closed (503) until bootstrap succeeds: one token acquisition against
// the identity provider plus one GetAgent probe per configured agent
// role. A bootstrap failure aborts startup so a misconfigured gateway
// never serves traffic.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	err = gw.Run(ctx)
//
// Run blocks until the context is canceled or a server error occurs, then
// performs a graceful shutdown with a 10 second budget.
//
// # Listeners
//
// The HTTP server binds either a plain TCP address (server.http_addr) or
// a tsnet node inside a Tailscale tailnet (tailscale.enabled), in which
// case the gateway joins the tailnet under tailscale.hostname and serves
// on port 80.
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown
//   - api.go: HTTP handlers, request middleware, and response DTOs
package gateway
