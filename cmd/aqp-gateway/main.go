// ABOUTME: Entry point for the aqp-gateway agent proxy server
// ABOUTME: Bridges HTTP clients to remote thread/run agent orchestration

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/tjwyz/aqpMcp/internal/auth"
	"github.com/tjwyz/aqpMcp/internal/config"
	"github.com/tjwyz/aqpMcp/internal/foundry"
	"github.com/tjwyz/aqpMcp/internal/gateway"
	"github.com/tjwyz/aqpMcp/internal/identity"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                       _
  __ _   __ _  _ __        __ _  __ _| |_ _____      ____ _ _   _
 / _' | / _' || '_ \ _____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| || (_| || |_) |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \__,_| \__, || .__/      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
            |_||_|        |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: AQP_CONFIG env var > ./config.yaml > XDG_CONFIG_HOME/aqp/gateway.yaml > ~/.config/aqp/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AQP_CONFIG"); envPath != "" {
		return envPath
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "aqp", "gateway.yaml")
}

// getDataPath returns the path to the aqp data directory.
// Priority: XDG_DATA_HOME/aqp > ~/.local/share/aqp
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "aqp")
}

func printUsage() {
	fmt.Println("Usage: aqp-gateway <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                    Start the gateway server (default)")
	fmt.Println("  init                     Create a new config file interactively")
	fmt.Println("  health                   Check a running gateway's liveness and readiness")
	fmt.Println("  agents                   Probe every configured agent binding")
	fmt.Println("  token --subject NAME     Mint an API bearer token")
	fmt.Println("  version                  Print the version")
	fmt.Println("  help                     Show this help")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --config PATH            Config file (default: AQP_CONFIG or ~/.config/aqp/gateway.yaml)")
	fmt.Println("  --addr HOST:PORT         Override server.http_addr (serve)")
	fmt.Println("  --log-level LEVEL        Override logging.level (serve)")
	fmt.Println("  --log-format FORMAT      Override logging.format (serve)")
	fmt.Println("  --ttl DURATION           Token lifetime (token, default 720h)")
}

func main() {
	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx, args)
	case "agents":
		err = runAgents(ctx, args)
	case "token":
		err = runToken(args)
	case "version":
		fmt.Printf("aqp-gateway %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serveFlags holds command line overrides for the serve command.
type serveFlags struct {
	configPath string
	addr       string
	logLevel   string
	logFormat  string
}

// parseServeFlags parses serve arguments by hand.
// Supports both "--flag value" and "--flag=value" formats.
func parseServeFlags(args []string) (*serveFlags, error) {
	flags := &serveFlags{}

	take := func(i int, name string) (string, int, error) {
		if i+1 >= len(args) {
			return "", i, fmt.Errorf("%s requires a value", name)
		}
		return args[i+1], i + 1, nil
	}

	var err error
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || arg == "-c":
			flags.configPath, i, err = take(i, arg)
		case strings.HasPrefix(arg, "--config="):
			flags.configPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--addr":
			flags.addr, i, err = take(i, arg)
		case strings.HasPrefix(arg, "--addr="):
			flags.addr = strings.TrimPrefix(arg, "--addr=")
		case arg == "--log-level":
			flags.logLevel, i, err = take(i, arg)
		case strings.HasPrefix(arg, "--log-level="):
			flags.logLevel = strings.TrimPrefix(arg, "--log-level=")
		case arg == "--log-format":
			flags.logFormat, i, err = take(i, arg)
		case strings.HasPrefix(arg, "--log-format="):
			flags.logFormat = strings.TrimPrefix(arg, "--log-format=")
		default:
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if err != nil {
			return nil, err
		}
	}
	return flags, nil
}

// parseConfigFlag parses commands that only accept --config.
func parseConfigFlag(args []string) (string, error) {
	flags, err := parseServeFlags(args)
	if err != nil {
		return "", err
	}
	if flags.addr != "" || flags.logLevel != "" || flags.logFormat != "" {
		return "", fmt.Errorf("only --config is supported for this command")
	}
	return flags.configPath, nil
}

func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return getConfigPath()
}

func runServe(ctx context.Context, args []string) error {
	flags, err := parseServeFlags(args)
	if err != nil {
		return err
	}
	configPath := resolveConfigPath(flags.configPath)

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Apply command line overrides
	if flags.addr != "" {
		cfg.Server.HTTPAddr = flags.addr
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Service:   %s\n", cfg.Service.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Agents:    %s\n", strings.Join(cfg.Agents.Roles(), ", "))
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)

	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Ledger:    %s\n", cfg.Database.Path)
	}

	if cfg.Auth.APISecret == "" {
		yellow.Print("    ▶ ")
		fmt.Printf("Auth:      open (no api_secret)\n")
	}

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting aqp-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"agents", strings.Join(cfg.Agents.Roles(), ","),
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context, args []string) error {
	flagPath, err := parseConfigFlag(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(resolveConfigPath(flagPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	check := func(path string) (int, error) {
		url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, fmt.Errorf("creating request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		return resp.StatusCode, nil
	}

	status, err := check("/ping")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", status)
	}
	fmt.Println("healthy")

	status, err = check("/readyz")
	if err != nil {
		return fmt.Errorf("readiness check failed: %w", err)
	}
	if status != http.StatusOK {
		fmt.Println("not ready (bootstrap incomplete)")
		return nil
	}
	fmt.Println("ready")
	return nil
}

// runAgents probes every configured agent binding directly against the
// remote service, using the same identity and client stack as the server.
func runAgents(ctx context.Context, args []string) error {
	flagPath, err := parseConfigFlag(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(resolveConfigPath(flagPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(config.LoggingConfig{Level: "error", Format: "text"})
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

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	failures := 0
	for _, role := range cfg.Agents.Roles() {
		agentID, _ := cfg.Agents.ID(role)

		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		agent, err := client.GetAgent(probeCtx, agentID)
		cancel()

		if err != nil {
			red.Print("  ✗ ")
			fmt.Printf("%-10s %s\n", role, agentID)
			gray.Printf("             %v\n", err)
			failures++
			continue
		}

		green.Print("  ✓ ")
		fmt.Printf("%-10s %s", role, agent.ID)
		if agent.Name != "" {
			gray.Printf("  (%s)", agent.Name)
		}
		fmt.Println()
	}

	if failures > 0 {
		return fmt.Errorf("%d agent binding(s) failed verification", failures)
	}
	return nil
}

// runToken mints a bearer token for the inbound API.
func runToken(args []string) error {
	var subject, flagPath string
	ttl := 30 * 24 * time.Hour

	take := func(i int, name string) (string, int, error) {
		if i+1 >= len(args) {
			return "", i, fmt.Errorf("%s requires a value", name)
		}
		return args[i+1], i + 1, nil
	}

	var err error
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--subject" || arg == "-s":
			subject, i, err = take(i, arg)
		case strings.HasPrefix(arg, "--subject="):
			subject = strings.TrimPrefix(arg, "--subject=")
		case arg == "--ttl":
			var raw string
			raw, i, err = take(i, arg)
			if err == nil {
				ttl, err = time.ParseDuration(raw)
			}
		case strings.HasPrefix(arg, "--ttl="):
			ttl, err = time.ParseDuration(strings.TrimPrefix(arg, "--ttl="))
		case arg == "--config" || arg == "-c":
			flagPath, i, err = take(i, arg)
		case strings.HasPrefix(arg, "--config="):
			flagPath = strings.TrimPrefix(arg, "--config=")
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
		if err != nil {
			return err
		}
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("--subject flag is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}

	cfg, err := config.Load(resolveConfigPath(flagPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.APISecret == "" {
		return fmt.Errorf("auth.api_secret not configured (the API is open, no token needed)")
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.APISecret))
	token, err := verifier.Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	expiresAt := time.Now().Add(ttl).UTC()

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Token for %s (expires %s)\n\n", subject, expiresAt.Format("Jan 02, 2006"))
	fmt.Println(token)
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("aqp-gateway configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "aqp.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Remote service
	fmt.Println("\n--- Remote Service ---")
	baseURL := prompt(reader, "Service base URL", "${AQP_PROJECT_ENDPOINT}")
	apiVersion := prompt(reader, "API version", "2025-05-01")
	tenantID := prompt(reader, "Tenant ID", "${AZURE_TENANT_ID}")
	clientID := prompt(reader, "Client ID", "${AZURE_CLIENT_ID}")
	clientSecret := prompt(reader, "Client secret", "${AZURE_CLIENT_SECRET}")

	// Agent bindings
	fmt.Println("\n--- Agent Bindings (leave empty to skip a role) ---")
	paramsID := prompt(reader, "params agent id", "${AQP_AGENT_PARAMS_ID}")
	summaryID := prompt(reader, "summary agent id", "")
	routingID := prompt(reader, "routing agent id", "")

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Database
	fmt.Println("\n--- Run Ledger ---")
	dbPath := prompt(reader, "SQLite database path (empty to disable)", defaultDbPath)

	// Inbound auth
	fmt.Println("\n--- Inbound API Auth ---")
	apiSecret := prompt(reader, "API secret (\"generate\" for a random one, empty for open API)", "generate")
	if strings.ToLower(apiSecret) == "generate" {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating API secret: %w", err)
		}
		apiSecret = base64.StdEncoding.EncodeToString(secretBytes)
		fmt.Printf("  generated: %s\n", apiSecret)
	}

	// Tailscale
	fmt.Println("\n--- Tailscale Configuration ---")
	enableTailscale := prompt(reader, "Enable Tailscale?", "no")
	tailscaleEnabled := strings.ToLower(enableTailscale) == "yes" || strings.ToLower(enableTailscale) == "y"

	var tsHostname, tsAuthKey string
	var tsEphemeral bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "aqp-gateway")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		ephemeralStr := prompt(reader, "Ephemeral node?", "no")
		tsEphemeral = strings.ToLower(ephemeralStr) == "yes" || strings.ToLower(ephemeralStr) == "y"
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# aqp-gateway configuration\n")
	cfg.WriteString("# Generated by aqp-gateway init\n\n")

	cfg.WriteString("service:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", baseURL))
	cfg.WriteString(fmt.Sprintf("  api_version: \"%s\"\n", apiVersion))
	cfg.WriteString("  auth:\n")
	cfg.WriteString(fmt.Sprintf("    tenant_id: \"%s\"\n", tenantID))
	cfg.WriteString(fmt.Sprintf("    client_id: \"%s\"\n", clientID))
	cfg.WriteString(fmt.Sprintf("    client_secret: \"%s\"\n", clientSecret))
	cfg.WriteString("\n")

	cfg.WriteString("agents:\n")
	if paramsID != "" {
		cfg.WriteString(fmt.Sprintf("  params: \"%s\"\n", paramsID))
	}
	if summaryID != "" {
		cfg.WriteString(fmt.Sprintf("  summary: \"%s\"\n", summaryID))
	}
	if routingID != "" {
		cfg.WriteString(fmt.Sprintf("  routing: \"%s\"\n", routingID))
	}
	cfg.WriteString("\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("runs:\n")
	cfg.WriteString("  poll_interval: \"1s\"\n")
	cfg.WriteString("  timeout: \"120s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  api_secret: \"%s\"\n", apiSecret))
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: \"%s\"\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: \"%s\"\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	if dbPath != "" {
		dataDir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  aqp-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
