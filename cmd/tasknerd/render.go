package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"tasknerd/internal/types"
)

// tasksMarkdown renders tasks as a markdown table under heading.
func tasksMarkdown(heading string, tasks []types.Task) string {
	var b strings.Builder
	if heading != "" {
		fmt.Fprintf(&b, "## %s\n\n", heading)
	}
	if len(tasks) == 0 {
		b.WriteString("_No tasks._\n")
		return b.String()
	}
	b.WriteString("| # | Title | Priority | Due | Status |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Local().Format("Mon Jan 2 15:04")
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
			t.ID, escapeCell(t.Title), t.Priority, due, t.StatusLabel())
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func listHeading(filter types.ListFilter) string {
	switch filter {
	case types.FilterPending:
		return "Pending tasks"
	case types.FilterCompleted:
		return "Completed tasks"
	default:
		return "Tasks"
	}
}

// newRenderer builds a glamour renderer; dark picks the auto style, light
// the light style, as the chat does.
func newRenderer(width int, dark bool) (*glamour.TermRenderer, error) {
	if width < 20 {
		width = 80
	}
	style := glamour.WithStylePath("light")
	if dark {
		style = glamour.WithAutoStyle()
	}
	return glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
}

// renderMarkdown falls back to the raw markdown if rendering fails.
func renderMarkdown(r *glamour.TermRenderer, md string) string {
	if r == nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
