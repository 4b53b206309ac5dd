// -- cmd/fmt.go --
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowline-dev/flowline/internal/document"
	"github.com/flowline-dev/flowline/internal/jsondiff"
)

var fmtWrite bool

var fmtCmd = &cobra.Command{
	Use:   "fmt <file>",
	Short: "Rewrite a pipeline document in canonical form.",
	Long: `Fmt renders the document with sorted keys and two-space indentation.
The rewrite is purely cosmetic: the formatted output is always semantically
identical to the input.`,
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

		canonical, err := document.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		var formatted bytes.Buffer
		if err := json.Indent(&formatted, canonical, "", "  "); err != nil {
			return fmt.Errorf("failed to format document: %w", err)
		}
		formatted.WriteByte('\n')

		if !jsondiff.Equivalent(raw, formatted.Bytes()) {
			return fmt.Errorf("formatting changed document semantics, refusing to continue")
		}

		if fmtWrite {
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			return os.WriteFile(path, formatted.Bytes(), info.Mode().Perm())
		}
		_, err = cmd.OutOrStdout().Write(formatted.Bytes())
		return err
	},
}

func init() {
	fmtCmd.Flags().BoolVarP(&fmtWrite, "write", "w", false, "write the result back instead of printing it")
	rootCmd.AddCommand(fmtCmd)
}
