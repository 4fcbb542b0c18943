package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shpitdev/transcript-digest/internal/config"
	"github.com/shpitdev/transcript-digest/internal/logger"
	"github.com/shpitdev/transcript-digest/internal/server"
)

const shutdownGrace = 30 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /v1/invocations until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			cfg, err := c.loadConfig(func(cfg *config.Config) {
				if flags.Changed("addr") {
					cfg.Server.Addr = addr
				}
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			if os.Getenv("GIN_MODE") == "" {
				gin.SetMode(gin.ReleaseMode)
			}
			handler := server.New(a.Runner, server.Options{RequestTimeout: cfg.Batch.RequestTimeout}, a.Logger)
			if err := listenAndServe(ctx, cfg.Server.Addr, handler, a.Logger); err != nil {
				return runErr(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (env: SERVER_ADDR, default :8080)")
	return cmd
}

// listenAndServe runs srv until ctx is done, then drains in-flight requests.
func listenAndServe(ctx context.Context, addr string, handler http.Handler, log logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.Std(log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		log.Info(shutdownCtx, "shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
