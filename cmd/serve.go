package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-concierge/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		// Capture workers outlive the signal so queued leads still deliver.
		env.Queue.Start(context.WithoutCancel(ctx), cfg.Capture.Workers)
		go func() {
			if err := env.Sessions.RunSweeper(ctx, cfg.Session.SweepInterval, cfg.Session.IdleTimeout); err != nil && ctx.Err() == nil {
				zap.L().Error("session sweeper stopped", zap.Error(err))
			}
		}()

		srv := api.New(env.Orchestrator, env.Leads,
			api.WithLedger(env.Ledger),
			api.WithCircuits(env.Dispatcher.Circuits),
			api.WithAdmin(cfg.Admin.Username, cfg.Admin.Password),
			api.WithCORSOrigins(cfg.Server.CORSOrigins...),
		)

		serveErr := startServer(ctx, srv.Routes(), resolvePort(servePort, cfg.Server.Port), cfg.Server.ShutdownTimeout)

		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout(cfg.Server.ShutdownTimeout))
		defer cancel()
		env.Queue.Close()
		if err := env.Queue.Wait(drainCtx); err != nil {
			zap.L().Warn("capture queue did not drain", zap.Int("pending", env.Queue.Pending()), zap.Error(err))
		}
		return serveErr
	},
}

func drainTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves h on port until ctx is done, then shuts down
// gracefully within shutdownTimeout.
func startServer(ctx context.Context, h http.Handler, port int, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- eris.Wrap(err, "server listen")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout(shutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
