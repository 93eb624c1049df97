package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	dmp "github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-editorstate"
)

var inspectNoColor bool

var (
	diffDelLine = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "203"})
	diffAddLine = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "114"})
	faint       = lipgloss.NewStyle().Faint(true)
	heading     = lipgloss.NewStyle().Bold(true)
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [token]",
	Short: "Show how a share token is repaired and reconciled, without loading it",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	token, err := readToken(cmd, args)
	if err != nil {
		return err
	}
	inspection, err := engine.Inspect(token)
	if err != nil {
		return err
	}
	printInspection(cmd.OutOrStdout(), inspection, !inspectNoColor)
	return nil
}

func printInspection(w io.Writer, in *editorstate.Inspection, color bool) {
	style := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	fmt.Fprintf(w, "%s %s\n", style(heading, "format:"), in.Format)
	if len(in.Repairs) == 0 {
		fmt.Fprintf(w, "%s none\n", style(heading, "repairs:"))
	} else {
		fmt.Fprintln(w, style(heading, "repairs:"))
		for _, repair := range in.Repairs {
			fmt.Fprintf(w, "  %s: %s (depth %d)\n", repair.Field, repair.Kind, repair.Depth)
		}
	}
	printList(w, style(heading, "defaulted:"), in.Migration.Defaulted)
	printList(w, style(heading, "dropped:"), in.Migration.Dropped)
	printList(w, style(heading, "rejected:"), in.Migration.Rejected)

	for _, repair := range in.Repairs {
		before := fieldText(in.Record[repair.Field])
		after := fieldText(in.Healed[repair.Field])
		fmt.Fprintf(w, "\n%s\n", style(heading, repair.Field+":"))
		fmt.Fprint(w, renderDiff(before, after, color))
	}
}

func printList(w io.Writer, label string, values []string) {
	if len(values) == 0 {
		return
	}
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	fmt.Fprintf(w, "%s %s\n", label, strings.Join(sorted, ", "))
}

// fieldText shows a JSON string field as its content and anything else as
// indented JSON.
func fieldText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// renderDiff renders a line diff of before and after.
func renderDiff(before, after string, color bool) string {
	if before == after {
		return "No changes\n"
	}
	d := dmp.New()
	a, b, lines := d.DiffLinesToChars(before, after)
	diffs := d.DiffCharsToLines(d.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, df := range diffs {
		prefix, s := "  ", faint
		switch df.Type {
		case dmp.DiffDelete:
			prefix, s = "- ", diffDelLine
		case dmp.DiffInsert:
			prefix, s = "+ ", diffAddLine
		}
		for _, line := range strings.Split(strings.TrimSuffix(df.Text, "\n"), "\n") {
			text := prefix + line
			if color {
				text = s.Render(text)
			}
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
