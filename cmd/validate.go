// -- cmd/validate.go --
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowline-dev/flowline/internal/document"
	"github.com/flowline-dev/flowline/internal/rebuild"
)

var validateStrict bool

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Parse a pipeline document and report problems.",
	Long: `Validate parses the given pipeline document and reports JSON syntax
errors with their line and column, followed by any reference parameters that
name a non-existent entry.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		doc, perr := document.Parse(raw)
		if perr != nil {
			return fmt.Errorf("%s:%d:%d: %s", path, perr.Line, perr.Column, perr.Msg)
		}

		warnings := rebuild.CollectWarnings(doc)
		for _, w := range warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
		}
		if len(warnings) > 0 && validateStrict {
			return fmt.Errorf("%d unresolved reference(s)", len(warnings))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "treat unresolved references as errors")
	rootCmd.AddCommand(validateCmd)
}
