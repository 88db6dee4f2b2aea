package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"

	"github.com/profacademy/profacademy/internal/actions"
	"github.com/profacademy/profacademy/internal/config"
	"github.com/profacademy/profacademy/internal/llm"
	"github.com/profacademy/profacademy/internal/store"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect recorded professor requests and archived conversations",
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent requests to the professor",
	RunE:  runLLMList,
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show one request with its prompt and reply",
	Args:  cobra.ExactArgs(1),
	RunE:  runLLMView,
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show token usage per purpose and estimated cost per model",
	RunE:  runLLMStats,
}

var llmTranscriptCmd = &cobra.Command{
	Use:   "transcript <session-id>",
	Short: "Print the archived conversation of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runLLMTranscript,
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of requests to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Only show one purpose (greeting, module, chat, run, debug, continue)")

	llmCmd.AddCommand(llmListCmd, llmViewCmd, llmStatsCmd, llmTranscriptCmd)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

func runLLMList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	purpose, _ := cmd.Flags().GetString("purpose")

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.EventRepo().QueryLLMEvents(cmd.Context(), store.QueryOpts{Limit: limit, Purpose: purpose})
	if err != nil {
		return fmt.Errorf("query requests: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No requests recorded.")
		return nil
	}

	t := newTable("ID", "Time", "Purpose", "Model", "In", "Out", "ms", "OK")
	for _, e := range events {
		ok := "✓"
		if !e.Success {
			ok = "✗"
		}
		t.Row(
			strconv.Itoa(e.ID),
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Purpose,
			truncate(e.Model, 28),
			strconv.Itoa(e.InputTokens),
			strconv.Itoa(e.OutputTokens),
			strconv.FormatInt(e.LatencyMs, 10),
			ok,
		)
	}
	fmt.Fprintln(out, t.String())
	return nil
}

func runLLMView(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := s.EventRepo().GetLLMEvent(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("get request: %w", err)
	}
	if e == nil {
		return fmt.Errorf("request %d not found", id)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Request %d  %s\n", e.ID, e.Timestamp.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  %s / %s, purpose %s\n", e.Provider, e.Model, e.Purpose)
	fmt.Fprintf(out, "  %d tokens in, %d out, %dms\n", e.InputTokens, e.OutputTokens, e.LatencyMs)
	if !e.Success {
		fmt.Fprintf(out, "  failed: %s\n", e.ErrorMessage)
	}
	section(out, "Prompt", e.RequestBody)
	section(out, "Reply", e.ResponseBody)
	return nil
}

// section prints a titled body; JSON bodies are indented.
func section(out io.Writer, title, body string) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, lipgloss.NewStyle().Bold(true).Render(title))
	if body == "" {
		fmt.Fprintln(out, "(not captured)")
		return
	}
	var buf bytes.Buffer
	if json.Indent(&buf, []byte(body), "", "  ") == nil {
		body = buf.String()
	}
	fmt.Fprintln(out, body)
}

func runLLMStats(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	usage, err := s.EventRepo().LLMUsageByPurpose(ctx)
	if err != nil {
		return fmt.Errorf("query usage: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(usage) == 0 {
		fmt.Fprintln(out, "No requests recorded.")
		return nil
	}

	var calls, in, outTok int
	t := newTable("Purpose", "Calls", "Input", "Output", "Avg ms")
	for _, u := range usage {
		t.Row(u.Purpose, strconv.Itoa(u.Calls), strconv.Itoa(u.InputTokens), strconv.Itoa(u.OutputTokens), strconv.FormatInt(u.AvgLatencyMs, 10))
		calls += u.Calls
		in += u.InputTokens
		outTok += u.OutputTokens
	}
	t.Row("total", strconv.Itoa(calls), strconv.Itoa(in), strconv.Itoa(outTok), "")
	fmt.Fprintln(out, t.String())

	byModel, err := s.EventRepo().LLMUsageByModel(ctx)
	if err != nil {
		return fmt.Errorf("query model usage: %w", err)
	}
	if len(byModel) == 0 {
		return nil
	}

	var total float64
	var unpriced []string
	ct := newTable("Model", "Calls", "Input", "Output", "Cost (USD)")
	for _, mu := range byModel {
		cost := "?"
		if p := llm.LookupCost(mu.Model); p != nil {
			c := p.Cost(mu.InputTokens, mu.OutputTokens)
			total += c
			cost = formatCost(c)
		} else {
			unpriced = append(unpriced, mu.Model)
		}
		ct.Row(truncate(mu.Model, 32), strconv.Itoa(mu.Calls), strconv.Itoa(mu.InputTokens), strconv.Itoa(mu.OutputTokens), cost)
	}
	label := "total"
	if len(unpriced) > 0 {
		label = "total (partial)"
	}
	ct.Row(label, "", "", "", formatCost(total))
	fmt.Fprintln(out)
	fmt.Fprintln(out, ct.String())
	if len(unpriced) > 0 {
		fmt.Fprintf(out, "No pricing for: %s\n", strings.Join(unpriced, ", "))
	}
	return nil
}

func runLLMTranscript(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	recs, err := s.TranscriptRepo().SessionMessages(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("query transcript: %w", err)
	}
	if len(recs) == 0 {
		return fmt.Errorf("no messages for session %s", args[0])
	}

	out := cmd.OutOrStdout()
	who := lipgloss.NewStyle().Bold(true)
	for _, r := range recs {
		name := "Learner"
		if r.Role == "model" {
			name = "Professor"
		}
		fmt.Fprintf(out, "%s %s [%s, %s]\n", r.Timestamp.Local().Format("15:04:05"), who.Render(name), r.Language, r.Kind)
		fmt.Fprintln(out, actions.Strip(r.Content))
		for _, m := range actions.ScanAll(r.Content) {
			fmt.Fprintf(out, "  -> %s\n", m.Action.Kind())
		}
		fmt.Fprintln(out)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

// openStore opens the database without building a provider.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}
