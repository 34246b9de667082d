package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadsync/internal/api"
	"github.com/sells-group/leadsync/internal/monitoring"
)

var servePort int

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for lead-form submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}
		var background []func(context.Context)
		if checker := newChecker(env); checker != nil {
			background = append(background, checker.Run)
		}
		return runServer(ctx, srv, background...)
	},
}

// newChecker returns the journal alert checker, or nil when alerts are not
// configured or the journal is disabled.
func newChecker(env *appEnv) *monitoring.Checker {
	if cfg.Monitoring.WebhookURL == "" || env.Store == nil {
		return nil
	}
	return monitoring.NewChecker(
		monitoring.NewCollector(env.Store),
		monitoring.NewAlerter(cfg.Monitoring),
		cfg.Monitoring,
	)
}

// buildRouter wires the app services into the HTTP API. Optional services
// stay nil interfaces when disabled.
func buildRouter(env *appEnv, origins []string) http.Handler {
	deps := api.Deps{
		Syncer:         env.Orchestrator,
		Schema:         env.Schema,
		AllowedOrigins: origins,
	}
	if env.Welcome != nil {
		deps.Welcome = env.Welcome
	}
	if env.Store != nil {
		deps.Journal = env.Store
	}
	return api.NewRouter(deps)
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
// Background loops run alongside the server and must return once their
// context is done.
func runServer(ctx context.Context, srv *http.Server, background ...func(context.Context)) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, run := range background {
		g.Go(func() error {
			run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	})

	return g.Wait()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
