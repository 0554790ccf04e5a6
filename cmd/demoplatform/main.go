// Command demoplatform runs the sales-demo platform API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bugspotter/demo-platform/internal/adapter/bugspotter"
	dphttp "github.com/bugspotter/demo-platform/internal/adapter/http"
	"github.com/bugspotter/demo-platform/internal/adapter/jira"
	"github.com/bugspotter/demo-platform/internal/adapter/memkv"
	"github.com/bugspotter/demo-platform/internal/adapter/natskv"
	dpotel "github.com/bugspotter/demo-platform/internal/adapter/otel"
	"github.com/bugspotter/demo-platform/internal/adapter/ristretto"
	"github.com/bugspotter/demo-platform/internal/adapter/tiered"
	"github.com/bugspotter/demo-platform/internal/adapter/ws"
	"github.com/bugspotter/demo-platform/internal/config"
	"github.com/bugspotter/demo-platform/internal/domain/injector"
	"github.com/bugspotter/demo-platform/internal/logger"
	"github.com/bugspotter/demo-platform/internal/middleware"
	"github.com/bugspotter/demo-platform/internal/port/store"
	"github.com/bugspotter/demo-platform/internal/resilience"
	"github.com/bugspotter/demo-platform/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("demoplatform", flag.ContinueOnError)
	dev := fs.Bool("dev", false, "run with an in-memory store and no collaborator integration")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"base_domain", cfg.Server.BaseDomain,
		"session_lifetime", cfg.Session.Lifetime,
		"dev", *dev,
	)

	ctx := context.Background()
	shutdownTracer := dpotel.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(ctx) }()

	// --- Storage ---
	var kv store.KV
	if *dev {
		kv = memkv.New()
		slog.Info("using in-memory store")
	} else {
		natsStore, err := natskv.Connect(ctx, cfg.NATS.URL, cfg.Session.Lifetime)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		defer natsStore.Close()
		kv = natsStore
		slog.Info("nats kv connected", "url", cfg.NATS.URL)
	}

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	defer l1.Close()
	configCache := tiered.New(l1, kv, cfg.Cache.TTL)

	// --- External integrations ---
	var provisioner service.Provisioner
	var deleter service.ResourceDeleter
	if !*dev && cfg.Collaborator.URL != "" {
		client := bugspotter.NewClient(cfg.Collaborator.URL, cfg.Collaborator.AdminEmail, cfg.Collaborator.AdminPassword)
		client.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		provisioner = client
		deleter = client
	} else {
		deleter = noopDeleter{}
	}

	var jiraClient service.JiraDeleter
	if jc := jira.NewClient(cfg.Jira.URL, cfg.Jira.Email, cfg.Jira.APIToken); jc.Enabled() {
		jiraClient = jc
	}

	// --- Services ---
	metrics, err := dpotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	hub := ws.NewHub()
	sessionSvc := service.NewSessionService(kv, provisioner, metrics, cfg.Session.Lifetime)
	bugSvc := service.NewBugService(kv, configCache, sessionSvc, hub, metrics, injector.Settings{
		Enabled:     cfg.Injector.Enabled,
		Probability: float64(cfg.Injector.Probability),
	})
	authSvc := service.NewAuthService(kv, cfg.Auth.TokenTTL, cfg.Auth.TOTPIssuer)
	cleanupSvc := service.NewCleanupService(kv, deleter, jiraClient, metrics, cfg.Cleanup.Parallelism)

	if cfg.Cleanup.Interval > 0 {
		go runCleanupLoop(ctx, cleanupSvc, cfg.Cleanup.Interval)
	}

	// --- HTTP ---
	handlers := dphttp.NewHandlers(sessionSvc, bugSvc, authSvc, cleanupSvc, hub)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(dphttp.CORS(cfg.Server.CORSOrigin))
	r.Use(dphttp.SecurityHeaders)
	r.Use(dphttp.Logger)
	r.Use(dpotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(middleware.Subdomain(cfg.Server.BaseDomain))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	dphttp.MountRoutes(r, handlers, middleware.AdminAuth(authSvc))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// runCleanupLoop sweeps for orphaned collaborator resources on a timer.
func runCleanupLoop(ctx context.Context, svc *service.CleanupService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.Run(ctx); err != nil {
				slog.Error("scheduled cleanup failed", "error", err)
			}
		}
	}
}

// noopDeleter satisfies the cleanup port when no collaborator is configured.
type noopDeleter struct{}

func (noopDeleter) DeleteProject(context.Context, string) error { return nil }
func (noopDeleter) DeleteAPIKey(context.Context, string) error  { return nil }
func (noopDeleter) DeleteUser(context.Context, string) error    { return nil }
