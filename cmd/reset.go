package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/profacademy/profacademy/internal/progress"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset learner progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("lang")
		yes, _ := cmd.Flags().GetBool("yes")

		e, err := setup(cmd, nil, false)
		if err != nil {
			return err
		}
		defer e.Close()

		what := "all progress"
		if lang != "" {
			if _, err := e.catalog.Language(lang); err != nil {
				return err
			}
			what = "progress for " + lang
		}
		if !yes {
			fmt.Fprintf(cmd.OutOrStdout(), "Delete %s? [y/N] ", what)
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		ctx := cmd.Context()
		if lang != "" {
			_, err = e.progress.Update(ctx, func(l progress.Ledger) { l.ResetLanguage(lang) })
		} else {
			err = e.progress.Reset(ctx)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", what)
		return nil
	},
}

func init() {
	resetCmd.Flags().String("lang", "", "Only reset this language")
	resetCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}
