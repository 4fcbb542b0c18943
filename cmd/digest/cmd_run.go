package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shpitdev/transcript-digest/internal/pipeline"
)

func (c *cli) runCmd() *cobra.Command {
	var bucket, key string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Digest a single transcript and print the invocation result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(bucket) == "" || strings.TrimSpace(key) == "" {
				return usageErr("run requires --bucket and --key")
			}
			cfg, err := c.loadConfig(nil)
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

			res, err := a.Runner.Run(ctx, pipeline.Request{BucketName: bucket, ObjectKey: key})
			if err != nil {
				if pipeline.IsValidation(err) {
					return usageErr("%s", err.Error())
				}
				return runErr(err)
			}
			enc := json.NewEncoder(c.stdout)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Container holding the transcript")
	cmd.Flags().StringVar(&key, "key", "", "Object key of the transcript")
	return cmd
}
