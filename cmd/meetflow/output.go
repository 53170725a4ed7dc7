package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"golang.org/x/term"

	"meetflow/internal/orchestrator"
	"meetflow/internal/progress"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// isTTY checks if stdout is an interactive terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// renderMarkdown styles markdown for the terminal. Outside a TTY, or if
// glamour fails, the input is returned unchanged.
func renderMarkdown(content string) string {
	if content == "" || !isTTY() {
		return content
	}
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = min(w-4, 120)
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return out
}

func statusMark(status orchestrator.ResultStatus) string {
	switch status {
	case orchestrator.StatusSuccess:
		return green("✓")
	case orchestrator.StatusWarning:
		return yellow("!")
	default:
		return red("✗")
	}
}

// printProgress writes one line per stage transition.
func printProgress(w io.Writer, ev progress.Event) {
	switch ev.Type {
	case progress.EventStageStart:
		fmt.Fprintf(w, "%s %s\n", cyan("▶"), ev.Title)
	case progress.EventStageComplete:
		fmt.Fprintf(w, "%s %s %s\n", green("✓"), ev.Title, gray(stageDuration(ev)))
	case progress.EventWorkflowError:
		fmt.Fprintf(w, "%s %s failed\n", red("✗"), ev.Title)
	}
}

func stageDuration(ev progress.Event) string {
	data, ok := ev.Data.(map[string]any)
	if !ok {
		return ""
	}
	if ms, ok := data["duration_ms"]; ok {
		return fmt.Sprintf("(%vms)", ms)
	}
	return ""
}

// printResult writes the human-readable run report.
func printResult(w io.Writer, res orchestrator.Result) {
	fmt.Fprintf(w, "\n%s %s\n", bold("Workflow"), res.WorkflowID)
	if res.Analysis.Title != "" {
		fmt.Fprintf(w, "%s %s\n", bold("Meeting:"), res.Analysis.Title)
	}
	fmt.Fprintf(w, "%s %d in window, %d related\n", bold("Calendar:"), res.CalendarEventsCount, res.RelatedMeetingsCount)

	if len(res.Actions) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Planned actions"))
		for _, a := range res.Actions {
			fmt.Fprintf(w, "  • %s %s\n", a.Kind, gray(a.Reasoning))
		}
	}
	if len(res.Results) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Execution"))
		for _, r := range res.Results {
			line := fmt.Sprintf("  %s %s: %s", statusMark(r.Status), r.Kind, r.Message)
			if r.Detail != "" && !strings.Contains(r.Detail, "\n") {
				line += " " + gray(r.Detail)
			}
			fmt.Fprintln(w, line)
			for _, s := range r.Slots {
				fmt.Fprintf(w, "      %s\n", s.String())
			}
		}
	}
	if res.Summary != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", bold("Summary"), strings.TrimRight(renderMarkdown(res.Summary), "\n"))
	}
	if len(res.NextSteps) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Next steps"))
		for i, step := range res.NextSteps {
			fmt.Fprintf(w, "  %d. %s\n", i+1, step)
		}
	}
	if res.Error != "" {
		fmt.Fprintf(w, "\n%s %s (stage %s)\n", red("Failed:"), res.Error, res.FailedStage)
	}
}
