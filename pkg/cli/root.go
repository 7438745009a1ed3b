// Package cli implements the pipevine command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	// Version is the current version of pipevine
	Version = "1.0.0"
)

// Config holds the global configuration for the pipevine CLI
type Config struct {
	Debug  bool
	Logger *zap.Logger
}

// GlobalConfig is the shared configuration instance
var GlobalConfig = &Config{}

// NewRootCommand creates the root cobra command for pipevine
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipevine",
		Short: "Pipevine - typed workflow orchestration",
		Long: `Pipevine executes directed workflows of typed processing nodes.
Workflows are defined in YAML, flattened and validated into an execution
graph, expanded over iterable parameters, and run with provenance-keyed
caching and bounded parallelism.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var (
				logger *zap.Logger
				err    error
			)
			if GlobalConfig.Debug {
				logger, err = zap.NewDevelopment()
			} else {
				logger, err = zap.NewProduction()
			}
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			GlobalConfig.Logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if GlobalConfig.Logger != nil {
				_ = GlobalConfig.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().BoolVar(&GlobalConfig.Debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewGraphCommand())
	cmd.AddCommand(NewRunCommand())

	return cmd
}
