package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/dunamismax/mediaflow/internal/app"
	"github.com/dunamismax/mediaflow/internal/config"
	"github.com/dunamismax/mediaflow/internal/logging"
	"github.com/spf13/cobra"
)

// commandContext loads configuration and the engine at most once per run.
type commandContext struct {
	logLevel *string

	once   sync.Once
	cfg    config.Config
	engine app.Engine
	err    error
}

func (c *commandContext) ensureEngine() (app.Engine, config.Config, error) {
	c.once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.err = err
			return
		}
		if *c.logLevel != "" {
			cfg.Log.Level = *c.logLevel
		}
		logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: "console"}, os.Stderr)

		engine, err := app.NewEngine(cfg.Convert, logger)
		if err != nil {
			c.err = fmt.Errorf("build conversion engine: %w", err)
			return
		}
		c.cfg = cfg
		c.engine = engine
	})
	return c.engine, c.cfg, c.err
}

func newRootCommand() *cobra.Command {
	var logLevel string
	ctx := &commandContext{logLevel: &logLevel}

	rootCmd := &cobra.Command{
		Use:           "mediaflow",
		Short:         "Convert images and subtitle files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level written to stderr")

	rootCmd.AddCommand(newImageCommand(ctx))
	rootCmd.AddCommand(newSubtitleCommand(ctx))
	rootCmd.AddCommand(newFormatsCommand())
	rootCmd.AddCommand(newEnvCommand())

	return rootCmd
}
