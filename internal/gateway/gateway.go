// ABOUTME: Gateway orchestration: server lifecycle, listeners, and wiring.
// ABOUTME: Owns the HTTP server, optional tsnet listener, and history store.

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/codex-gateway/internal/auth"
	"github.com/2389/codex-gateway/internal/codex"
	"github.com/2389/codex-gateway/internal/config"
	"github.com/2389/codex-gateway/internal/history"
)

// completionRunner is the subprocess boundary, split out so handler tests
// can substitute a fake.
type completionRunner interface {
	Run(ctx context.Context, job codex.Job) (*codex.Output, error)
}

var _ completionRunner = (*codex.Runner)(nil)

// shutdownTimeout bounds graceful drain of in-flight requests.
const shutdownTimeout = 5 * time.Second

// Gateway wires the HTTP surface to the codex runner and the optional
// subsystems (history store, bearer auth, tailscale listener).
type Gateway struct {
	config   *config.Config
	logger   *slog.Logger
	serverID string

	runner  completionRunner
	history *history.Store

	httpServer  *http.Server
	tsnetServer *tsnet.Server

	authMiddleware func(http.Handler) http.Handler
}

// New assembles a gateway from configuration. Optional subsystems activate
// only when configured; the zero configuration runs a bare stateless
// gateway.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	g := &Gateway{
		config:   cfg,
		logger:   logger,
		serverID: generateServerID(),
		runner:   codex.NewRunner(cfg.Codex, logger),
	}

	if cfg.Database.Path != "" {
		store, err := history.Open(cfg.Database.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening history store: %w", err)
		}
		g.history = store
	}

	if cfg.Auth.JWTSecret != "" {
		verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		g.authMiddleware = auth.Middleware(verifier, logger)
		logger.Info("bearer auth enabled")
	} else {
		logger.Warn("bearer auth disabled: no jwt_secret configured")
	}

	mux := http.NewServeMux()
	g.registerRoutes(mux)
	g.httpServer = &http.Server{Handler: mux}

	return g, nil
}

// Run serves until the context is canceled or a listener fails.
func (g *Gateway) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", g.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.Addr(), err)
	}

	listeners := []net.Listener{httpLn}
	if g.config.Tailscale.Enabled {
		tsLn, err := g.startTailscale(ctx)
		if err != nil {
			httpLn.Close()
			return fmt.Errorf("starting tailscale: %w", err)
		}
		listeners = append(listeners, tsLn)
	}

	g.logger.Info("gateway listening",
		"server_id", g.serverID,
		"addr", httpLn.Addr().String(),
		"history", g.history != nil,
		"auth", g.authMiddleware != nil,
		"tailscale", g.config.Tailscale.Enabled)

	errCh := g.startServers(listeners...)

	select {
	case err := <-errCh:
		g.Shutdown()
		return err
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
		return g.Shutdown()
	}
}

// startServers serves every listener on the shared HTTP server. The channel
// is buffered so a failing server never blocks.
func (g *Gateway) startServers(listeners ...net.Listener) chan error {
	errCh := make(chan error, len(listeners))
	for _, ln := range listeners {
		go func(ln net.Listener) {
			if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("HTTP server: %w", err)
			}
		}(ln)
	}
	return errCh
}

// startTailscale brings up the tsnet node and returns its listener.
func (g *Gateway) startTailscale(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
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

	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("bringing up tsnet node: %w", err)
	}

	ln, err := g.createTailscaleListener()
	if err != nil {
		return nil, err
	}

	g.logger.Info("tailscale listener ready",
		"hostname", tsCfg.Hostname,
		"ips", status.TailscaleIPs,
		"https", tsCfg.HTTPS,
		"funnel", tsCfg.Funnel)
	return ln, nil
}

func (g *Gateway) createTailscaleListener() (net.Listener, error) {
	tsCfg := g.config.Tailscale

	switch {
	case tsCfg.Funnel:
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("funnel listener: %w", err)
		}
		return ln, nil

	case tsCfg.HTTPS:
		ln, err := g.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("https listener: %w", err)
		}
		lc, err := g.tsnetServer.LocalClient()
		if err != nil {
			ln.Close()
			return nil, fmt.Errorf("tsnet local client: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: lc.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil

	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("tailnet listener: %w", err)
		}
		return ln, nil
	}
}

// resolveTailscaleStateDir returns the tsnet state directory, defaulting to
// ~/.local/share/codex-gateway/tailscale.
func resolveTailscaleStateDir(configured string) (string, error) {
	dir := configured
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		dir = filepath.Join(home, ".local", "share", "codex-gateway", "tailscale")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating tailscale state directory: %w", err)
	}
	return dir, nil
}

// resolveTailscaleAuthKey returns the auth key from config or TS_AUTHKEY.
func resolveTailscaleAuthKey(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key := os.Getenv("TS_AUTHKEY"); key != "" {
		return key, nil
	}
	return "", errors.New("tailscale auth key required: set auth_key in config or the TS_AUTHKEY environment variable")
}

// Shutdown drains in-flight requests and closes every owned resource.
func (g *Gateway) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = appendCloseError(errs, "http server", err)
	}
	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tsnet server", g.tsnetServer.Close())
	}
	if g.history != nil {
		errs = appendCloseError(errs, "history store", g.history.Close())
	}

	if len(errs) == 0 {
		g.logger.Info("gateway stopped")
		return nil
	}
	return errors.Join(errs...)
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func generateServerID() string {
	return fmt.Sprintf("codex-gateway-%d", time.Now().UnixNano()%1000000)
}
