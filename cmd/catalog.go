package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List languages, categories and modules",
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, _ := cmd.Flags().GetBool("yaml")
		e, err := setup(cmd, nil, false)
		if err != nil {
			return err
		}
		defer e.Close()

		out := cmd.OutOrStdout()
		if asYAML {
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(e.catalog)
		}

		for _, lang := range e.catalog.Languages {
			state := ""
			if !lang.Enabled {
				state = "  (coming soon)"
			}
			fmt.Fprintf(out, "%s  %s, %s%s\n", lang.Key, lang.Name, lang.Professor, state)
			for _, c := range lang.Categories {
				fmt.Fprintf(out, "  %s\n", c.Name)
				for _, m := range c.Modules {
					fmt.Fprintf(out, "    %4d  %s\n", m.ID, m.Title)
				}
			}
			fmt.Fprintln(out, strings.Repeat("─", 60))
		}
		return nil
	},
}

func init() {
	catalogCmd.Flags().Bool("yaml", false, "Print the full catalog as YAML")
}
