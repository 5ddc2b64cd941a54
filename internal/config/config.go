// ABOUTME: Configuration loading and parsing for aqp-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// minAPISecretLen is the minimum length for the inbound API secret.
const minAPISecretLen = 32

// Config represents the complete aqp-gateway configuration
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Agents    AgentsConfig    `yaml:"agents"`
	Server    ServerConfig    `yaml:"server"`
	Runs      RunsConfig      `yaml:"runs"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig locates the remote agent service and the credentials used
// to authenticate against it.
type ServiceConfig struct {
	BaseURL    string            `yaml:"base_url"`
	APIVersion string            `yaml:"api_version"`
	Auth       ServiceAuthConfig `yaml:"auth"`
}

// ServiceAuthConfig holds the client-credentials identity of the gateway.
type ServiceAuthConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// AgentsConfig maps logical agent roles to remote agent identifiers.
// Empty entries leave that role unconfigured.
type AgentsConfig struct {
	Params  string `yaml:"params"`
	Summary string `yaml:"summary"`
	Routing string `yaml:"routing"`
}

// roleOrder fixes the iteration order of agent roles.
var roleOrder = []string{"params", "summary", "routing"}

// ID returns the agent identifier configured for a logical role.
func (a AgentsConfig) ID(role string) (string, bool) {
	switch role {
	case "params":
		return a.Params, a.Params != ""
	case "summary":
		return a.Summary, a.Summary != ""
	case "routing":
		return a.Routing, a.Routing != ""
	}
	return "", false
}

// Roles returns the configured role names in a stable order.
func (a AgentsConfig) Roles() []string {
	var roles []string
	for _, role := range roleOrder {
		if _, ok := a.ID(role); ok {
			roles = append(roles, role)
		}
	}
	return roles
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// RunsConfig tunes the run polling loop.
type RunsConfig struct {
	PollInterval time.Duration `yaml:"-"`
	Timeout      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	PollIntervalRaw string `yaml:"poll_interval"`
	TimeoutRaw      string `yaml:"timeout"`
}

// DatabaseConfig holds run-ledger database configuration. An empty path
// disables persistence.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds inbound API authentication configuration. An empty
// secret leaves the API open.
type AuthConfig struct {
	APISecret string `yaml:"api_secret"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values the file may omit.
func (c *Config) applyDefaults() {
	if c.Runs.PollInterval == 0 {
		c.Runs.PollInterval = 1 * time.Second
	}
	if c.Runs.Timeout == 0 {
		c.Runs.Timeout = 120 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("service.base_url is required")
	}

	// The credential exchange needs the full trio; a partial set always
	// points at a deployment mistake.
	sa := c.Service.Auth
	if sa.TenantID == "" || sa.ClientID == "" || sa.ClientSecret == "" {
		return fmt.Errorf("service.auth requires tenant_id, client_id, and client_secret")
	}

	if len(c.Agents.Roles()) == 0 {
		return fmt.Errorf("agents requires at least one of params, summary, routing")
	}

	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Runs.PollInterval <= 0 {
		return fmt.Errorf("runs.poll_interval must be positive")
	}
	if c.Runs.Timeout <= 0 {
		return fmt.Errorf("runs.timeout must be positive")
	}

	if c.Auth.APISecret != "" && len(c.Auth.APISecret) < minAPISecretLen {
		return fmt.Errorf("auth.api_secret must be at least %d bytes", minAPISecretLen)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Runs.PollIntervalRaw != "" {
		cfg.Runs.PollInterval, err = time.ParseDuration(cfg.Runs.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Runs.PollIntervalRaw, err)
		}
	}

	if cfg.Runs.TimeoutRaw != "" {
		cfg.Runs.Timeout, err = time.ParseDuration(cfg.Runs.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Runs.TimeoutRaw, err)
		}
	}

	return nil
}
