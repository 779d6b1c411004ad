package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/api"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/middleware"
)

func newServeCmd(a *app) *cobra.Command {
	var noConsole bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP indexing and search service",
		Long: `serve exposes POST /index and POST /search, serves Prometheus metrics
and health probes on the metrics port, and reads commands from stdin.
Type "quit" or send SIGINT/SIGTERM to shut down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noConsole {
				a.cfg.Server.Console = false
			}
			return runServe(cmd, a.cfg)
		},
	}
	cmd.Flags().BoolVar(&noConsole, "no-console", false, "Do not read commands from stdin")
	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	svc := connect(ctx, cfg)
	defer func() {
		if err := svc.close(); err != nil {
			slog.Warn("closing backends", "error", err)
		}
	}()

	engine := indexer.NewEngine(cfg.Engine, svc.engineOptions(cfg)...)
	defer engine.Shutdown()
	fmt.Fprintf(cmd.OutOrStdout(), "The application is using %d threads.\n", engine.Workers())

	checker := health.NewChecker()
	checker.Register("engine", engine.Check)
	svc.registerChecks(checker)

	opts := []api.Option{api.WithCache(svc.cache), api.WithMetrics(svc.metrics)}
	if svc.collector != nil {
		opts = append(opts, api.WithTracker(svc.collector))
	}
	limiter := middleware.NewLimiter(cfg.RateLimit.IndexRequests, cfg.RateLimit.Window)
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(api.New(engine, opts...), api.RouterOptions{
			Limiter:       limiter,
			SearchTimeout: cfg.Server.SearchTimeout,
			Metrics:       svc.metrics,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if svc.metrics != nil {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, svc.metrics, map[string]http.Handler{
			"/health/live":  checker.LiveHandler(),
			"/health/ready": checker.ReadyHandler(),
		})
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
			defer done()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	if cfg.Server.Console {
		// Not part of the group: a read blocked on stdin cannot be
		// interrupted, so shutdown must not wait for it.
		go runConsole(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cancel)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("file retrieval engine listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		limiter.RunSweeper(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown requested")
		// Cancel in-flight runs first so /index handlers return promptly.
		engine.Shutdown()
		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	slog.Info("file retrieval engine stopped")
	return err
}
