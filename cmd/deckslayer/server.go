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
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/Bharath-code/deckslayer/internal/api"
	"github.com/Bharath-code/deckslayer/internal/archive"
	"github.com/Bharath-code/deckslayer/internal/auth"
	"github.com/Bharath-code/deckslayer/internal/committee"
	"github.com/Bharath-code/deckslayer/internal/config"
	"github.com/Bharath-code/deckslayer/internal/ledger"
	"github.com/Bharath-code/deckslayer/internal/llm"
	"github.com/Bharath-code/deckslayer/internal/metrics"
	"github.com/Bharath-code/deckslayer/internal/oracle"
	"github.com/Bharath-code/deckslayer/internal/payments"
	"github.com/Bharath-code/deckslayer/internal/ratelimit"
	"github.com/Bharath-code/deckslayer/internal/storage"
	"github.com/Bharath-code/deckslayer/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the background job worker (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		devToken, _ := cmd.Flags().GetString("dev-token")
		devUser, _ := cmd.Flags().GetString("dev-user")
		return runServer(devToken, devUser)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply datastore migrations and list applied versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		versions, err := store.AppliedMigrations()
		if err != nil {
			return fmt.Errorf("listing migrations: %w", err)
		}
		out := cmd.OutOrStdout()
		printField(out, "Driver", "%s", store.Driver())
		for _, v := range versions {
			printField(out, "Applied", "%03d", v)
		}
		return nil
	},
}

// shutdownTimeout bounds how long in-flight analyses may run after a signal.
const shutdownTimeout = 90 * time.Second

func init() {
	serveCmd.Flags().String("dev-token", "", "accept this bearer token when no Supabase project is configured")
	serveCmd.Flags().String("dev-user", "dev-user", "user id for --dev-token")
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// openStore opens the configured datastore and runs pending migrations.
func openStore(cfg config.StorageConfig) (*storage.Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		store, err := storage.Open(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		return store, nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, errors.New("storage.driver is postgres but storage.dsn is empty (set DATABASE_URL)")
		}
		store, err := storage.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage.driver %q (want sqlite or postgres)", cfg.Driver)
	}
}

// openLocalStore opens the datastore for operator commands, which do not need
// the provider key.
var openLocalStore = func() (*storage.Store, error) {
	cfg, err := config.LoadLocal()
	if err != nil {
		return nil, err
	}
	return openStore(cfg.Storage)
}

func buildAuthenticator(cfg config.AuthConfig, devToken, devUser string) auth.Authenticator {
	if cfg.SupabaseURL != "" {
		return auth.NewSupabase(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	}
	if devToken != "" {
		slog.Warn("using static development token", "user_id", devUser)
		return auth.Static{devToken: {ID: devUser}}
	}
	slog.Warn("no authentication configured; protected routes will answer 401")
	return nil
}

func runServer(devToken, devUser string) error {
	fmt.Fprintf(os.Stderr, "deckslayer version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	m := metrics.New()

	gen := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	gen.SetObserver(m.ObserveProvider)

	credits := ledger.New(store)
	comm := committee.NewService(gen, store, credits, committee.Config{
		BaseURL:           cfg.Server.BaseURL,
		AnalysisModel:     cfg.LLM.AnalysisModel,
		OrchestratorModel: cfg.LLM.OrchestratorModel,
		AdversarialModel:  cfg.LLM.AdversarialModel,
		BatchProduct:      payments.ProductBatch,
	})

	pay := payments.NewService(
		payments.NewCatalog(cfg.Payments.DefaultProduct, cfg.Payments.BatchCredits),
		payments.NewClient(cfg.Payments.Environment, cfg.Payments.APIKey()),
		credits, store, cfg.Server.BaseURL,
	)
	if cfg.Payments.WebhookKey == "" {
		slog.Warn("payments.webhook_key is empty; webhook deliveries will be rejected")
	}

	deps := api.Deps{
		Committee: comm,
		Ledger:    credits,
		Records:   store,
		Payments:  pay,
		Auth:      buildAuthenticator(cfg.Auth, devToken, devUser),
		Admins:    auth.ParseAdmins(cfg.Auth.AdminEmails),
		Limiter:   ratelimit.New(),
		AnalyzePolicy: ratelimit.Policy{
			MaxRequests: cfg.RateLimit.AnalyzeMax,
			Window:      cfg.RateLimit.Window,
		},
		RebutPolicy: ratelimit.Policy{
			MaxRequests: cfg.RateLimit.RebutMax,
			Window:      cfg.RateLimit.Window,
		},
		WebhookKey: cfg.Payments.WebhookKey,
		Origins:    cfg.Server.Origins(),
		Metrics:    m,
	}

	if cfg.Archive.Enabled() {
		arch, err := archive.New(ctx, archive.Options{
			Endpoint:  cfg.Archive.Endpoint,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("opening deck archive: %w", err)
		}
		deps.Archive = arch
		slog.Info("deck archive enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	// Background work: rate-limit sweeps and the market insight job queue.
	go deps.Limiter.Run(ctx, ratelimit.DefaultSweepInterval)

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
	}

	if n, err := store.RequeueRunningJobs(ctx); err != nil {
		ln.Close()
		return err
	} else if n > 0 {
		slog.Warn("requeued jobs interrupted by a previous exit", "count", n)
	}
	if pending, err := store.CountJobs(ctx, "pending"); err == nil && pending > 0 {
		slog.Info("resuming job queue", "pending", pending)
	}

	jobs := worker.NewWorker(store, time.Second)
	jobs.Handle(oracle.JobType, worker.MarketInsight(oracle.NewExtractor(gen, cfg.LLM.AnalysisModel, cfg.Server.BaseURL), store))
	jobs.SetObserver(m.ObserveJob)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		jobs.Run(ctx)
	}()

	// Request contexts are not tied to the signal so Shutdown can let
	// running analyses finish.
	srv := &http.Server{
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("deckslayer listening", "addr", addr, "storage", store.Driver())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}
	stop()

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("draining requests: %w", err)
	}

	// The worker releases its in-flight job before the store closes.
	<-workerDone
	return serveErr
}
