package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shpitdev/transcript-digest/internal/version"
)

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the digest version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(c.stdout, "digest %s\n", version.Current)
			return err
		},
	}
}
