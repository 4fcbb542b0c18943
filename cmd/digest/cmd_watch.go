package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shpitdev/transcript-digest/internal/app"
	"github.com/shpitdev/transcript-digest/internal/config"
	"github.com/shpitdev/transcript-digest/internal/server"
)

func (c *cli) watchCmd() *cobra.Command {
	var (
		inbox    string
		debounce time.Duration
		workers  int
		addr     string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Digest every transcript dropped into a local inbox directory",
		Long: "watch uses the local storage backend rooted at the inbox's parent directory, so the\n" +
			"inbox directory name is the container and outputs land next to it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			var prepErr error
			cfg, err := c.loadConfig(func(cfg *config.Config) {
				if flags.Changed("inbox") {
					cfg.Watch.Inbox = inbox
				}
				if flags.Changed("debounce") {
					cfg.Watch.Debounce = debounce
				}
				prepErr = app.PrepareWatch(cfg)
			})
			if err != nil {
				return err
			}
			if prepErr != nil {
				return configErr(prepErr)
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

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				err := a.Watch(gctx, workers)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			if addr != "" {
				if os.Getenv("GIN_MODE") == "" {
					gin.SetMode(gin.ReleaseMode)
				}
				handler := server.New(a.Runner, server.Options{RequestTimeout: cfg.Batch.RequestTimeout}, a.Logger)
				g.Go(func() error {
					return listenAndServe(gctx, addr, handler, a.Logger)
				})
			}
			if err := g.Wait(); err != nil {
				return runErr(err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&inbox, "inbox", "", "Directory to watch (env: WATCH_INBOX, default data/inbox)")
	f.DurationVar(&debounce, "debounce", 0, "Quiet period before a new file is processed")
	f.IntVar(&workers, "workers", 2, "Transcripts processed concurrently")
	f.StringVar(&addr, "addr", "", "Also serve the HTTP invocation endpoint on this address")
	return cmd
}
