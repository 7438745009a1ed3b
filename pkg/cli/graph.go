package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipevine/pipevine/pkg/graph"
	"github.com/pipevine/pipevine/pkg/pipeline"
)

// NewGraphCommand creates the graph command
func NewGraphCommand() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "graph <definition-file>",
		Short: "Export the execution graph as Graphviz DOT",
		Long: `Build the flattened, expanded execution graph of a pipeline
definition and export it in Graphviz DOT format, without executing anything.

Examples:
  pipevine graph level1.yaml
  pipevine graph level1.yaml --output level1.dot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, _, err := pipeline.Load(args[0])
			if err != nil {
				return err
			}

			g, err := graph.Build(wf)
			if err != nil {
				return err
			}

			if outputFile != "" {
				if err := g.WriteDOTFile(outputFile); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s (%d nodes)\n", outputFile, g.Len())
				return nil
			}
			return g.ExportDOT(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write DOT to a file instead of stdout")

	return cmd
}
