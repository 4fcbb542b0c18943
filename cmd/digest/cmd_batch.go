package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shpitdev/transcript-digest/internal/app"
	"github.com/shpitdev/transcript-digest/internal/config"
	"github.com/shpitdev/transcript-digest/internal/worker"
)

func (c *cli) batchCmd() *cobra.Command {
	var (
		bucket         string
		keysFile       string
		workers        int
		maxRetries     int
		requestTimeout time.Duration
		rateLimitRPS   float64
		failFast       bool
	)
	cmd := &cobra.Command{
		Use:   "batch --bucket <container> [key ...]",
		Short: "Digest many transcripts concurrently, printing one JSON line per key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(bucket) == "" {
				return usageErr("batch requires --bucket")
			}
			keys := append([]string(nil), args...)
			if keysFile != "" {
				f, err := readFileOrStdin(keysFile, cmd.InOrStdin())
				if err != nil {
					return usageErr("open keys file: %v", err)
				}
				fromFile, err := app.ReadKeys(f)
				_ = f.Close()
				if err != nil {
					return usageErr("%v", err)
				}
				keys = append(keys, fromFile...)
			}
			if len(keys) == 0 {
				return usageErr("batch requires at least one key (arguments or --keys-file)")
			}

			flags := cmd.Flags()
			cfg, err := c.loadConfig(func(cfg *config.Config) {
				if flags.Changed("workers") {
					cfg.Batch.Workers = workers
				}
				if flags.Changed("max-retries") {
					cfg.Batch.MaxRetries = maxRetries
				}
				if flags.Changed("request-timeout") {
					cfg.Batch.RequestTimeout = requestTimeout
				}
				if flags.Changed("rate-limit-rps") {
					cfg.Batch.RateLimitRPS = rateLimitRPS
				}
				if flags.Changed("fail-fast") {
					cfg.Batch.FailFast = failFast
				}
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := c.buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			sum, err := app.RunBatch(ctx, a.Runner, bucket, keys, worker.Options{
				Workers:      cfg.Batch.Workers,
				MaxRetries:   cfg.Batch.MaxRetries,
				Timeout:      cfg.Batch.RequestTimeout,
				RateLimitRPS: cfg.Batch.RateLimitRPS,
				FailFast:     cfg.Batch.FailFast,
			}, c.stdout, a.Logger)
			if err != nil {
				return runErr(fmt.Errorf("batch aborted: %w", err))
			}
			if sum.Failed > 0 {
				return runErr(fmt.Errorf("%d of %d transcripts failed", sum.Failed, sum.Total))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&bucket, "bucket", "", "Container holding the transcripts")
	f.StringVar(&keysFile, "keys-file", "", "File with one object key per line (- for stdin)")
	f.IntVar(&workers, "workers", 0, "Concurrent invocations (env: WORKERS)")
	f.IntVar(&maxRetries, "max-retries", 0, "Retries per transcript for transient failures, -1 disables (env: MAX_RETRIES)")
	f.DurationVar(&requestTimeout, "request-timeout", 0, "Per-attempt timeout (env: REQUEST_TIMEOUT)")
	f.Float64Var(&rateLimitRPS, "rate-limit-rps", 0, "Global invocation rate limit, 0 disables (env: RATE_LIMIT_RPS)")
	f.BoolVar(&failFast, "fail-fast", false, "Stop at the first failed transcript (env: FAIL_FAST)")
	return cmd
}
