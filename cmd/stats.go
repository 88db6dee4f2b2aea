package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show levels, XP and completed modules",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		e, err := setup(cmd, nil, false)
		if err != nil {
			return err
		}
		defer e.Close()

		ledger := e.progress.Load(cmd.Context())
		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(ledger)
		}
		if len(ledger) == 0 {
			fmt.Fprintln(out, "No progress recorded yet.")
			return nil
		}

		for _, key := range ledger.Languages() {
			lp := ledger[key]
			name := key
			var categories []string
			if lang, err := e.catalog.Language(key); err == nil {
				name = lang.Name
				categories = lang.CategoryNames()
			}
			fmt.Fprintf(out, "%s: %d modules completed\n", name, len(lp.CompletedModules))
			fmt.Fprintln(out, strings.Repeat("─", 48))
			fmt.Fprintf(out, "%-24s  %5s  %8s  %s\n", "Category", "Level", "XP", "")
			for i, c := range categories {
				cp := lp.Category(c)
				note := ""
				if ledger.Locked(key, categories, i) {
					note = "locked"
				}
				fmt.Fprintf(out, "%-24s  %5d  %8d  %s\n", c, cp.Level, cp.XP, note)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "Print the ledger as stored")
}
