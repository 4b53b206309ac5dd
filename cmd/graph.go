// -- cmd/graph.go --
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/flowline-dev/flowline/api/schemas"
	"github.com/flowline-dev/flowline/internal/document"
	"github.com/flowline-dev/flowline/internal/rebuild"
)

// graphOutput is the wire shape emitted by the graph command.
type graphOutput struct {
	Nodes       []schemas.Node       `json:"nodes"`
	Connections []schemas.Connection `json:"connections"`
	Warnings    []string             `json:"warnings,omitempty"`
}

var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Derive the node/connection graph for a pipeline document.",
	Long: `Graph rebuilds the editor's graph model from a pipeline document and
prints it as JSON: one node per plugin entry (grouped by role), one connection
per resolvable provider/storage reference, and a warning per dangling one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		doc, perr := document.Parse(raw)
		if perr != nil {
			return fmt.Errorf("%s:%d:%d: %s", args[0], perr.Line, perr.Column, perr.Msg)
		}

		nodes, conns, warnings := rebuild.Rebuild(doc)
		out := graphOutput{Nodes: nodes, Connections: conns}
		for _, w := range warnings {
			out.Warnings = append(out.Warnings, w.String())
		}

		encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode graph: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
