package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shpitdev/transcript-digest/internal/app"
	"github.com/shpitdev/transcript-digest/internal/config"
	"github.com/shpitdev/transcript-digest/internal/logger"
	"github.com/shpitdev/transcript-digest/internal/redact"
	"github.com/shpitdev/transcript-digest/internal/version"
)

// exitError carries the process exit code: 2 for usage and configuration problems, 1 for
// failed runs.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErr(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func configErr(err error) error {
	return &exitError{code: 2, err: fmt.Errorf("config error: %w", err)}
}

func runErr(err error) error {
	return &exitError{code: 1, err: err}
}

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

type cli struct {
	flags  globalFlags
	stdout io.Writer
	stderr io.Writer
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "%s\n", redact.Secrets(err.Error()))
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Unknown commands and flag parse errors come from cobra itself.
	return 2
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "digest",
		Short: "Summarize sales-call transcripts and extract search metadata",
		Long: "digest reads a transcript from object storage, redacts it through the content filter,\n" +
			"writes an LLM summary and a metadata document next to it for knowledge-base ingestion.",
		Version:       version.Current,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.loadDotenv()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configPath, "config", "digest.yaml", "YAML config file; a missing file is ignored")
	pf.StringVar(&c.flags.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "debug, info, warn or error (env: LOG_LEVEL)")

	root.AddCommand(c.runCmd())
	root.AddCommand(c.batchCmd())
	root.AddCommand(c.serveCmd())
	root.AddCommand(c.watchCmd())
	root.AddCommand(c.versionCmd())
	return root
}

func (c *cli) loadDotenv() error {
	path := strings.TrimSpace(c.flags.envFile)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return configErr(fmt.Errorf("load %s: %w", path, err))
	}
	return nil
}

// loadConfig reads the config file and environment, then applies mutate (flag overrides)
// before validating again.
func (c *cli) loadConfig(mutate func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(c.flags.configPath)
	if err != nil {
		return config.Config{}, configErr(err)
	}
	if lvl := strings.TrimSpace(c.flags.logLevel); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if mutate != nil {
		mutate(&cfg)
		if err := cfg.Validate(); err != nil {
			return config.Config{}, configErr(err)
		}
	}
	return cfg, nil
}

func (c *cli) logger(cfg config.Config) logger.Logger {
	return logger.NewWithWriter(c.stderr, cfg.Logging.Level)
}

func (c *cli) buildApp(ctx context.Context, cfg config.Config) (*app.App, error) {
	a, err := app.Build(ctx, cfg, c.logger(cfg), app.Options{})
	if err != nil {
		return nil, configErr(err)
	}
	return a, nil
}

func readFileOrStdin(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	return os.Open(path)
}
