// Package config handles configuration loading for aqp-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from AQP_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/aqp/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	service:
//	  auth:
//	    client_secret: "${AZURE_CLIENT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	runs:
//	  poll_interval: "1s"
//	  timeout: "120s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Remote service and credentials:
//
//	service:
//	  base_url: "${AQP_PROJECT_ENDPOINT}"
//	  api_version: "2025-05-01"
//	  auth:
//	    tenant_id: "${AZURE_TENANT_ID}"
//	    client_id: "${AZURE_CLIENT_ID}"
//	    client_secret: "${AZURE_CLIENT_SECRET}"
//
// Agent bindings, one remote agent id per logical role:
//
//	agents:
//	  params: "${AQP_AGENT_PARAMS_ID}"
//	  summary: "${AQP_AGENT_SUMMARY_ID}"
//	  routing: "${AQP_AGENT_ROUTING_ID}"
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Run polling:
//
//	runs:
//	  poll_interval: "1s"
//	  timeout: "120s"
//
// Run ledger (empty path disables persistence):
//
//	database:
//	  path: "data/aqp.db"
//
// Inbound API authentication (empty secret leaves the API open):
//
//	auth:
//	  api_secret: "${AQP_API_SECRET}"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "aqp-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//	  ephemeral: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - service.base_url and the full auth trio are present
//   - at least one agent role is configured
//   - an HTTP address is set (or Tailscale enabled with a hostname)
//   - poll interval and timeout are positive
//   - api_secret minimum length (32 bytes) when set
package config
