package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipevine/pipevine/pkg/graph"
	"github.com/pipevine/pipevine/pkg/pipeline"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "validate <definition-file>",
		Short: "Validate a pipeline definition",
		Long: `Validate a pipeline definition file for correctness.

This checks:
- Definition file schema and syntax
- Port references and type compatibility
- Single producer per input port
- No circular dependencies
- Every required input satisfied by a connection, parameter, or default

Examples:
  pipevine validate level1.yaml
  pipevine validate level1.yaml --verbose`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, _, err := pipeline.Load(args[0])
			if err != nil {
				_, _ = fmt.Fprintln(cmd.OutOrStderr(), "✗ Failed to load definition")
				if verbose {
					_, _ = fmt.Fprintf(cmd.OutOrStderr(), "  Error: %v\n", err)
				}
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "✓ Definition parsed successfully")

			g, err := graph.Build(wf)
			if err != nil {
				_, _ = fmt.Fprintln(cmd.OutOrStderr(), "✗ Graph validation failed")
				if verbose {
					_, _ = fmt.Fprintf(cmd.OutOrStderr(), "  Error: %v\n", err)
				}
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Execution graph valid (%d nodes)\n", g.Len())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed error information")

	return cmd
}
