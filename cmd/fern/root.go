package main

import (
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/logging"
)

type commandContext struct {
	envFile *string

	once   sync.Once
	config *config.Config
	logger ectologger.Logger
	flush  func() error
	err    error
}

func (c *commandContext) ensure() (*config.Config, ectologger.Logger, error) {
	c.once.Do(func() {
		var files []string
		if c.envFile != nil && strings.TrimSpace(*c.envFile) != "" {
			files = append(files, strings.TrimSpace(*c.envFile))
		}
		cfg, err := config.Load(files...)
		if err != nil {
			c.err = err
			return
		}
		logger, flush, err := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.PrettyLogs})
		if err != nil {
			c.err = err
			return
		}
		c.config, c.logger, c.flush = cfg, logger, flush
	})
	return c.config, c.logger, c.err
}

func (c *commandContext) close() {
	if c.flush != nil {
		_ = c.flush()
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	ctx := &commandContext{envFile: &envFile}

	rootCmd := &cobra.Command{
		Use:           "fern",
		Short:         "Person record linkage: clustering and matching",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := ctx.ensure()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Environment file to load before reading the environment (default .env)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newClusterCommand(ctx))
	rootCmd.AddCommand(newMatchCommand(ctx))
	rootCmd.AddCommand(newLoadCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newNormalizeCommand())

	return rootCmd
}
