// -- cmd/push.go --
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowline-dev/flowline/internal/document"
	"github.com/flowline-dev/flowline/internal/engine"
	"github.com/flowline-dev/flowline/internal/observability"
	"github.com/flowline-dev/flowline/internal/store"
)

var pushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Apply a document file to the store through the synchronization engine.",
	Long: `Push runs the file through the engine: the stored version (when one
exists) is loaded, the file content is applied as a text edit, references are
re-synchronized and the converged document is saved. A formatting-only change
is detected and skipped without a write.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		doc, perr := document.Parse(raw)
		if perr != nil {
			return fmt.Errorf("%s:%d:%d: %s", args[0], perr.Line, perr.Column, perr.Msg)
		}
		if doc.Name == "" {
			return fmt.Errorf("%s: document has no name", args[0])
		}

		st, err := newDocumentStore(ctx)
		if err != nil {
			return err
		}
		eng := engine.New(observability.GetLogger(), st)

		existing, err := st.Load(ctx, doc.Name)
		switch {
		case err == nil:
			if err := eng.LoadDocument(existing); err != nil {
				return err
			}
			if err := eng.ApplyText(raw); err != nil {
				return err
			}
		case errors.Is(err, store.ErrNotFound):
			if err := eng.LoadDocument(doc); err != nil {
				return err
			}
			eng.ForceSync()
		default:
			return err
		}

		for _, w := range eng.Warnings() {
			fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
		}

		if existing != nil && !eng.HasPendingChanges() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: up to date\n", doc.Name)
			return nil
		}
		if err := eng.Save(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: saved (%d nodes, %d connections)\n",
			doc.Name, len(eng.Nodes()), len(eng.Connections()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
}
