package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/profacademy/profacademy/internal/actions"
	"github.com/profacademy/profacademy/internal/tutor"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the professor a single question, or run a file",
	Long: `Ask sends one message to the professor of the chosen language and
prints the reply. With --run the file given by --file is executed by the
professor instead and the simulated terminal output is printed.`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringP("lang", "l", "python", "Language key")
	askCmd.Flags().IntP("module", "m", 0, "Start this module before asking")
	askCmd.Flags().StringP("file", "f", "", "Put this file's contents in the editor")
	askCmd.Flags().Bool("run", false, "Run the editor contents instead of asking")
	askCmd.Flags().Bool("raw", false, "Print the reply without markdown rendering")
}

func runAsk(cmd *cobra.Command, args []string) error {
	lang, _ := cmd.Flags().GetString("lang")
	module, _ := cmd.Flags().GetInt("module")
	file, _ := cmd.Flags().GetString("file")
	run, _ := cmd.Flags().GetBool("run")
	raw, _ := cmd.Flags().GetBool("raw")

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" && !run && module == 0 {
		return fmt.Errorf("nothing to ask: give a question, --run or --module")
	}

	e, err := setup(cmd, nil, true)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	sess := tutor.NewSession(e.tutorDeps())
	defer sess.Close()

	if err := sess.SetLanguage(ctx, lang); err != nil {
		return err
	}
	if module != 0 {
		if err := sess.SelectModule(ctx, module); err != nil {
			return err
		}
	}
	if file != "" {
		code, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		sess.SetCode(string(code))
	}

	switch {
	case run:
		err = sess.Run(ctx)
	case question != "":
		err = sess.Ask(ctx, question)
	}
	if err != nil {
		return err
	}

	st := sess.Snapshot()
	out := cmd.OutOrStdout()
	if reply, ok := sess.LastReply(); ok {
		fmt.Fprintln(out, render(actions.Strip(reply.Content), raw))
	}
	if st.Terminal != "" && (run || module != 0) {
		fmt.Fprintln(out, "Terminal:")
		fmt.Fprintln(out, st.Terminal)
	}
	if module != 0 && st.Workspace.Code != "" {
		fmt.Fprintln(out, "Editor:")
		fmt.Fprintln(out, st.Workspace.Code)
	}
	return nil
}

// render formats markdown for the terminal, falling back to the input.
func render(md string, raw bool) string {
	if raw {
		return md
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
