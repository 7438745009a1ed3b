package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipevine/pipevine/pkg/execution"
	"github.com/pipevine/pipevine/pkg/graph"
	"github.com/pipevine/pipevine/pkg/pipeline"
	"github.com/pipevine/pipevine/pkg/sink"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	var (
		parallelism int
		workDir     string
		cacheDir    string
		outputJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "run <definition-file>",
		Short: "Execute a pipeline",
		Long: `Execute a pipeline definition.

The definition is flattened, expanded over its iterables, and validated
before any node runs. Node results are cached by provenance key, so a
repeated run re-executes only what changed.

Examples:
  # Run with the default parallelism of 2
  pipevine run level1.yaml --workdir ./work

  # Run eight nodes at a time with a shared cache
  pipevine run level1.yaml --workdir ./work --cache-dir ./cache --parallelism 8

  # Emit the per-node report as JSON
  pipevine run level1.yaml --workdir ./work --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, sinkCfg, err := pipeline.Load(args[0])
			if err != nil {
				return err
			}

			g, err := graph.Build(wf)
			if err != nil {
				return err
			}

			engine := execution.NewEngine(GlobalConfig.Logger)
			if sinkCfg != nil {
				router, err := sink.NewRouter(*sinkCfg, GlobalConfig.Logger)
				if err != nil {
					return err
				}
				engine.SetRouter(router)
			}

			report, err := engine.Run(cmd.Context(), g, execution.RunConfig{
				Parallelism:      parallelism,
				WorkingDirectory: workDir,
				CacheDirectory:   cacheDir,
			})
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report.Results()); err != nil {
					return err
				}
			} else {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
			}

			for _, rerr := range report.RoutingErrors {
				_, _ = fmt.Fprintf(cmd.OutOrStderr(), "routing: %v\n", rerr)
			}

			if !report.OK() {
				cmd.SilenceUsage = true
				return fmt.Errorf("run %s completed with failures", report.RunID)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&parallelism, "parallelism", "p", execution.DefaultParallelism, "Maximum nodes executing concurrently")
	cmd.Flags().StringVarP(&workDir, "workdir", "w", "", "Working directory for node execution (required)")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Cache directory (default: <workdir>/cache)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Emit the per-node report as JSON")
	_ = cmd.MarkFlagRequired("workdir")

	return cmd
}
