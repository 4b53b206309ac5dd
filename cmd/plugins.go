// -- cmd/plugins.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowline-dev/flowline/api/schemas"
	"github.com/flowline-dev/flowline/internal/catalog"
	"github.com/flowline-dev/flowline/internal/observability"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the installable plugin types by role.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.GetLogger()

		var c *catalog.Catalog
		var err error
		if appCfg.Catalog.Path != "" {
			c, err = catalog.Load(appCfg.Catalog.Path, log)
		} else {
			c, err = catalog.NewBuiltin(log)
		}
		if err != nil {
			return err
		}

		plugins, err := c.ListPlugins(cmd.Context())
		if err != nil {
			return err
		}
		for _, role := range schemas.RebuildOrder {
			descs := plugins[role]
			if len(descs) == 0 {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", role.DisplayName())
			for _, d := range descs {
				label := d.PrettyName
				if label == "" {
					label = d.Name
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %s\n", d.Name, label)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}
