package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nrevox/growfleet/internal/auth"
	"github.com/nrevox/growfleet/internal/config"
	"github.com/nrevox/growfleet/internal/control"
	"github.com/nrevox/growfleet/internal/events"
	"github.com/nrevox/growfleet/internal/fleet"
	"github.com/nrevox/growfleet/internal/items"
	"github.com/nrevox/growfleet/internal/model"
	"github.com/nrevox/growfleet/internal/socks5"
)

const ConfigPath = "config/fleetd.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Configure slog
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	slog.Info("growfleet daemon starting")

	// Load config
	cfgPath := ConfigPath
	if p := os.Getenv("GROWFLEET_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadFleet(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	slog.Info("config loaded", "bind", cfg.BindAddress, "port", cfg.Port, "agents", len(cfg.Agents))

	// Login preamble client, shared across agents
	authOpts := []auth.Option{auth.WithAttempts(cfg.HTTPAttempts)}
	if len(cfg.ServerDirectoryURLs) > 0 || cfg.ValidateURL != "" {
		eps := auth.DefaultEndpoints()
		if len(cfg.ServerDirectoryURLs) > 0 {
			eps.ServerDirectory = cfg.ServerDirectoryURLs
		}
		if cfg.ValidateURL != "" {
			eps.Validate = cfg.ValidateURL
		}
		authOpts = append(authOpts, auth.WithEndpoints(eps))
	}
	authc := auth.NewClient(authOpts...)

	// Event journal
	var journal *events.Journal
	if cfg.JournalPath != "" {
		journal, err = events.OpenJournal(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer journal.Close()
		slog.Info("event journal opened", "path", cfg.JournalPath)
	}

	// Fleet with a shared catalog; agents fill it from the server push.
	manager := fleet.NewManager(items.NewCatalog(), fleet.WithAuthClient(authc))
	defer manager.Shutdown()

	for i, entry := range cfg.Agents {
		req, err := createRequest(entry)
		if err != nil {
			return fmt.Errorf("agent %d: %w", i, err)
		}
		id, err := manager.Create(req)
		if err != nil {
			return fmt.Errorf("agent %d: %w", i, err)
		}
		slog.Info("boot agent started", "id", id)
	}

	// Control surface
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.Port)),
		Handler:           control.NewServer(manager, journal, slog.Default()).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("control surface listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control surface: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}
	return nil
}

// createRequest converts one config entry into a fleet request.
func createRequest(entry config.AgentEntry) (fleet.CreateRequest, error) {
	creds := model.Credentials{
		GrowID:   entry.GrowID,
		Password: entry.Password,
		Token:    entry.Token,
	}
	switch entry.Method {
	case "legacy", "":
		creds.Method = model.LoginLegacy
	case "refresh":
		creds.Method = model.LoginRefreshToken
	default:
		return fleet.CreateRequest{}, fmt.Errorf("unknown login method %q", entry.Method)
	}

	var proxy *socks5.Config
	if entry.SOCKS5.Address != "" {
		proxy = &socks5.Config{
			Address:  entry.SOCKS5.Address,
			Username: entry.SOCKS5.Username,
			Password: entry.SOCKS5.Password,
		}
	}
	return fleet.CreateRequest{Credentials: creds, SOCKS5: proxy}, nil
}
