package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	httpctrl "github.com/secmon-lab/trendscope/pkg/controller/http"
	"github.com/secmon-lab/trendscope/pkg/service/worker"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var engineCfg engineConfig
	var addr string
	var analyzeTimeout time.Duration
	var sessionTTL time.Duration

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       "127.0.0.1:8080",
			Sources:     cli.EnvVars("TRENDSCOPE_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "analyze-timeout",
			Usage:       "Upper bound of one analyze request",
			Value:       httpctrl.DefaultAnalyzeTimeout,
			Sources:     cli.EnvVars("TRENDSCOPE_ANALYZE_TIMEOUT"),
			Destination: &analyzeTimeout,
		},
		&cli.DurationFlag{
			Name:        "session-ttl",
			Usage:       "Close sessions idle for longer than this. Zero keeps them until deleted",
			Value:       time.Hour,
			Sources:     cli.EnvVars("TRENDSCOPE_SESSION_TTL"),
			Destination: &sessionTTL,
		},
	}
	flags = append(flags, engineCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP API server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, err := engineCfg.build(ctx)
			if err != nil {
				return err
			}

			var reaper *worker.SessionReaper
			if sessionTTL > 0 {
				reaper = worker.NewSessionReaper(uc.Analysis, sessionTTL, min(sessionTTL, time.Minute))
				if err := reaper.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start session reaper")
				}
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc, httpctrl.WithAnalyzeTimeout(analyzeTimeout)),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				if reaper != nil {
					reaper.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed", "sessions", uc.SessionCount())
				return nil
			}
		},
	}
}
