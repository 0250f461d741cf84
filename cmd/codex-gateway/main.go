// ABOUTME: Entry point for the codex-gateway HTTP server
// ABOUTME: Wraps the codex CLI behind a completion API plus operator commands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/codex-gateway/internal/auth"
	"github.com/2389/codex-gateway/internal/codex"
	"github.com/2389/codex-gateway/internal/config"
	"github.com/2389/codex-gateway/internal/gateway"
	"github.com/2389/codex-gateway/internal/mcpconf"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
               _                             _
  ___ ___   __| | _____  __       __ _  __ _| |_ _____      ____ _ _   _
 / __/ _ \ / _' |/ _ \ \/ /____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| (_) | (_| |  __/>  <_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \___\___/ \__,_|\___/_/\_\      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                 |___/                             |___/
`

// defaultConfigPath is where init writes its config by default.
// Load() also checks this location, after GATEWAY_CONFIG and the cwd.
func defaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "codex-gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "codex-gateway", "config.yaml")
}

// defaultDataPath returns the directory for the history database.
func defaultDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "codex-gateway")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: codex-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the gateway server")
		fmt.Println("  exec [prompt]          Run one codex completion from the terminal")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  token --subject NAME   Mint a bearer token for the HTTP API")
		fmt.Println("  mcp <list|add|remove>  Manage MCP servers in the codex config")
		fmt.Println("  health                 Check gateway health")
		fmt.Println("  version                Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "exec":
		err = runExec(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken()
	case "mcp":
		err = runMCP()
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Printf("codex-gateway %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var exitErr *codex.ExitError
		if errors.As(err, &exitErr) && exitErr.Code > 0 {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	var configPath string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config":
			if i+1 >= len(args) {
				return fmt.Errorf("--config requires a value")
			}
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		default:
			return fmt.Errorf("unknown argument: %s", arg)
		}
	}

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Listen:  %s\n", cfg.Server.Addr())
	green.Print("    ▶ ")
	fmt.Printf("Codex:   %s", cfg.Codex.Binary)
	if cfg.Codex.DefaultModel != "" {
		fmt.Printf(" (model %s)", cfg.Codex.DefaultModel)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Timeout: %s\n", cfg.Codex.DefaultTimeout)

	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("History: %s\n", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret != "" {
		green.Print("    ▶ ")
		fmt.Println("Auth:    bearer tokens required")
	}

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting codex-gateway",
		"addr", cfg.Server.Addr(),
		"binary", cfg.Codex.Binary,
		"default_timeout", cfg.Codex.DefaultTimeout,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// runExec runs a single completion against the local codex binary and
// streams events to the terminal as they arrive.
func runExec(ctx context.Context) error {
	var (
		model      string
		timeout    time.Duration
		cwd        string
		configPath string
		promptArgs []string
	)

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--model" || arg == "-m":
			if i+1 >= len(args) {
				return fmt.Errorf("--model requires a value")
			}
			model = args[i+1]
			i++
		case strings.HasPrefix(arg, "--model="):
			model = strings.TrimPrefix(arg, "--model=")
		case arg == "--timeout" || arg == "-t":
			if i+1 >= len(args) {
				return fmt.Errorf("--timeout requires a value")
			}
			d, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid timeout: %w", err)
			}
			timeout = d
			i++
		case strings.HasPrefix(arg, "--timeout="):
			d, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return fmt.Errorf("invalid timeout: %w", err)
			}
			timeout = d
		case arg == "--cwd" || arg == "-C":
			if i+1 >= len(args) {
				return fmt.Errorf("--cwd requires a value")
			}
			cwd = args[i+1]
			i++
		case strings.HasPrefix(arg, "--cwd="):
			cwd = strings.TrimPrefix(arg, "--cwd=")
		case arg == "--config":
			if i+1 >= len(args) {
				return fmt.Errorf("--config requires a value")
			}
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "-") && arg != "-":
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			promptArgs = append(promptArgs, arg)
		}
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	promptText := strings.Join(promptArgs, " ")
	if promptText == "" || promptText == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading prompt from stdin: %w", err)
		}
		promptText = strings.TrimSpace(string(data))
	}
	if promptText == "" {
		return fmt.Errorf("no prompt given (pass it as arguments or on stdin)")
	}

	gray := color.New(color.FgHiBlack)
	yellow := color.New(color.FgYellow)

	// Completions stream to stdout, so keep the logger quiet.
	logger := slog.New(&colorHandler{level: slog.LevelWarn})
	runner := codex.NewRunner(cfg.Codex, logger)

	sawDelta := false
	job := codex.Job{
		Prompt:  promptText,
		Model:   model,
		Timeout: timeout,
		WorkDir: cwd,
		OnLine: func(line []byte) {
			msg, _, ok := codex.DecodeLine(line)
			if !ok {
				return
			}
			switch msg.Type {
			case codex.TypeAgentMessageDelta:
				fmt.Print(msg.Delta)
				sawDelta = true
			case codex.TypeAgentMessage:
				if sawDelta {
					fmt.Println()
				} else if msg.Message != nil {
					fmt.Println(*msg.Message)
				}
			case codex.TypeAgentReasoning:
				gray.Println(msg.Text)
			case codex.TypeTaskComplete:
				// Final message already printed above.
			default:
				if strings.HasSuffix(msg.Type, "_begin") || strings.HasSuffix(msg.Type, "_end") {
					yellow.Printf("[%s]\n", msg.Type)
				}
			}
		},
	}

	if _, err := runner.Run(ctx, job); err != nil {
		return err
	}
	return nil
}

// runToken mints a bearer token for the HTTP API. Requires auth.jwt_secret
// in the config so the gateway will accept the result.
func runToken() error {
	var (
		subject    string
		ttl        = 30 * 24 * time.Hour
		configPath string
	)

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--subject" || arg == "-s":
			if i+1 >= len(args) {
				return fmt.Errorf("--subject requires a value")
			}
			subject = args[i+1]
			i++
		case strings.HasPrefix(arg, "--subject="):
			subject = strings.TrimPrefix(arg, "--subject=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return fmt.Errorf("--ttl requires a value")
			}
			d, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid ttl: %w", err)
			}
			ttl = d
			i++
		case strings.HasPrefix(arg, "--ttl="):
			d, err := time.ParseDuration(strings.TrimPrefix(arg, "--ttl="))
			if err != nil {
				return fmt.Errorf("invalid ttl: %w", err)
			}
			ttl = d
		case arg == "--config":
			if i+1 >= len(args) {
				return fmt.Errorf("--config requires a value")
			}
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("--subject flag is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured (set auth.jwt_secret or GATEWAY_JWT_SECRET)")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(os.Stderr, "subject %s, expires %s\n",
		subject, time.Now().Add(ttl).UTC().Format("Jan 02, 2006"))
	return nil
}

// runMCP manages the mcp_servers tables in the codex CLI config so the
// wrapped binary picks up tool servers on its next run.
func runMCP() error {
	if len(os.Args) < 3 {
		fmt.Println("Usage: codex-gateway mcp <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  list                          Show configured MCP servers")
		fmt.Println("  add NAME --command CMD        Add or replace an MCP server")
		fmt.Println("      [--arg VALUE]...          Argument for the server command (repeatable)")
		fmt.Println("      [--env KEY=VALUE]...      Environment for the server (repeatable)")
		fmt.Println("  remove NAME                   Remove an MCP server")
		os.Exit(1)
	}

	configPath := mcpconf.DefaultPath()
	file := mcpconf.NewFile(configPath)
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	switch os.Args[2] {
	case "list":
		servers, err := file.List()
		if err != nil {
			return fmt.Errorf("reading codex config: %w", err)
		}
		if len(servers) == 0 {
			gray.Println("no MCP servers configured")
			return nil
		}
		names, err := file.Names()
		if err != nil {
			return fmt.Errorf("reading codex config: %w", err)
		}
		for _, name := range names {
			server := servers[name]
			fmt.Printf("%-20s %s", name, server.Command)
			if len(server.Args) > 0 {
				fmt.Printf(" %s", strings.Join(server.Args, " "))
			}
			fmt.Println()
		}
		return nil

	case "add":
		var (
			name       string
			serverCmd  string
			serverArgs []string
			serverEnv  = map[string]string{}
		)
		args := os.Args[3:]
		for i := 0; i < len(args); i++ {
			arg := args[i]
			switch {
			case arg == "--command" || arg == "-c":
				if i+1 >= len(args) {
					return fmt.Errorf("--command requires a value")
				}
				serverCmd = args[i+1]
				i++
			case strings.HasPrefix(arg, "--command="):
				serverCmd = strings.TrimPrefix(arg, "--command=")
			case arg == "--arg":
				if i+1 >= len(args) {
					return fmt.Errorf("--arg requires a value")
				}
				serverArgs = append(serverArgs, args[i+1])
				i++
			case strings.HasPrefix(arg, "--arg="):
				serverArgs = append(serverArgs, strings.TrimPrefix(arg, "--arg="))
			case arg == "--env":
				if i+1 >= len(args) {
					return fmt.Errorf("--env requires a value")
				}
				key, value, found := strings.Cut(args[i+1], "=")
				if !found || key == "" {
					return fmt.Errorf("--env requires KEY=VALUE, got %q", args[i+1])
				}
				serverEnv[key] = value
				i++
			case strings.HasPrefix(arg, "-"):
				return fmt.Errorf("unknown flag: %s", arg)
			default:
				if name != "" {
					return fmt.Errorf("unexpected argument: %s", arg)
				}
				name = arg
			}
		}
		if name == "" {
			return fmt.Errorf("mcp add requires a server name")
		}
		if serverCmd == "" {
			return fmt.Errorf("--command flag is required")
		}

		if err := file.Set(name, mcpconf.ServerConfig{
			Command: serverCmd,
			Args:    serverArgs,
			Env:     serverEnv,
		}); err != nil {
			return fmt.Errorf("updating codex config: %w", err)
		}
		green.Printf("  ✓ Added MCP server %q to %s\n", name, configPath)
		return nil

	case "remove":
		if len(os.Args) < 4 {
			return fmt.Errorf("mcp remove requires a server name")
		}
		name := os.Args[3]
		removed, err := file.Remove(name)
		if err != nil {
			return fmt.Errorf("updating codex config: %w", err)
		}
		if !removed {
			return fmt.Errorf("no MCP server named %q", name)
		}
		green.Printf("  ✓ Removed MCP server %q\n", name)
		return nil

	default:
		return fmt.Errorf("unknown mcp command: %s", os.Args[2])
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// A wildcard bind address is not dialable; probe via loopback.
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	url := fmt.Sprintf("http://%s/health", net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("codex-gateway configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	// Default paths
	defaultDbPath := filepath.Join(defaultDataPath(), "gateway.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath())

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	host := prompt(reader, "Bind address", config.DefaultHost)
	portStr := prompt(reader, "Port", strconv.Itoa(config.DefaultPort))
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %s", portStr)
	}

	// Codex
	fmt.Println("\n--- Codex Configuration ---")
	binary := prompt(reader, "Codex binary", config.DefaultBinary)
	model := prompt(reader, "Default model (empty for codex default)", "")
	timeoutStr := prompt(reader, "Default timeout", config.DefaultTimeout.String())
	if _, err := time.ParseDuration(timeoutStr); err != nil {
		return fmt.Errorf("invalid timeout: %s", timeoutStr)
	}
	extraFlags := prompt(reader, "Extra codex flags (space separated)", "")

	// History
	fmt.Println("\n--- History Configuration ---")
	enableHistory := prompt(reader, "Record completions to SQLite?", "no")
	historyEnabled := strings.ToLower(enableHistory) == "yes" || strings.ToLower(enableHistory) == "y"
	dbPath := ""
	if historyEnabled {
		dbPath = prompt(reader, "SQLite database path", defaultDbPath)
	}

	// Auth
	fmt.Println("\n--- Auth Configuration ---")
	enableAuth := prompt(reader, "Require bearer tokens?", "no")
	authEnabled := strings.ToLower(enableAuth) == "yes" || strings.ToLower(enableAuth) == "y"
	jwtSecret := ""
	if authEnabled {
		jwtSecret = prompt(reader, "JWT secret (leave empty to generate)", "")
		if jwtSecret == "" {
			secretBytes := make([]byte, 32)
			if _, err := rand.Read(secretBytes); err != nil {
				return fmt.Errorf("generating JWT secret: %w", err)
			}
			jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)
			fmt.Println("Generated a random JWT secret.")
		}
	}

	// Tailscale
	fmt.Println("\n--- Tailscale Configuration ---")
	enableTailscale := prompt(reader, "Enable Tailscale?", "no")
	tailscaleEnabled := strings.ToLower(enableTailscale) == "yes" || strings.ToLower(enableTailscale) == "y"

	var tsHostname, tsAuthKey string
	var tsEphemeral, tsFunnel bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "codex-gateway")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		ephemeralStr := prompt(reader, "Ephemeral node?", "no")
		tsEphemeral = strings.ToLower(ephemeralStr) == "yes" || strings.ToLower(ephemeralStr) == "y"
		funnelStr := prompt(reader, "Enable Funnel (public HTTPS)?", "no")
		tsFunnel = strings.ToLower(funnelStr) == "yes" || strings.ToLower(funnelStr) == "y"
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# codex-gateway configuration\n")
	cfg.WriteString("# Generated by codex-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  host: \"%s\"\n", host))
	cfg.WriteString(fmt.Sprintf("  port: %d\n", port))
	cfg.WriteString("\n")

	cfg.WriteString("codex:\n")
	cfg.WriteString(fmt.Sprintf("  binary: \"%s\"\n", binary))
	if model != "" {
		cfg.WriteString(fmt.Sprintf("  default_model: \"%s\"\n", model))
	}
	cfg.WriteString(fmt.Sprintf("  default_timeout: \"%s\"\n", timeoutStr))
	if extraFlags != "" {
		cfg.WriteString("  extra_flags:\n")
		for _, flag := range strings.Fields(extraFlags) {
			cfg.WriteString(fmt.Sprintf("    - \"%s\"\n", flag))
		}
	}
	cfg.WriteString("\n")

	if historyEnabled {
		cfg.WriteString("database:\n")
		cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
		cfg.WriteString("\n")
	}

	if authEnabled {
		cfg.WriteString("auth:\n")
		cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
		cfg.WriteString("\n")
	}

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: \"%s\"\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: \"%s\"\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", tsFunnel))
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

	// The config may carry the JWT secret, so keep it private.
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if historyEnabled {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  codex-gateway serve\n")
	if authEnabled {
		fmt.Println("\nTo mint an API token:")
		fmt.Printf("  codex-gateway token --subject you\n")
	}

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
