package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tasknerd/cmd/tasknerd/ui"
	"tasknerd/internal/types"
)

var (
	tasksFilter string
	tasksPlain  bool
)

// tasksCmd lists tasks directly from the store, bypassing the conversation.
var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List your tasks",
	Long: `Lists the owner's tasks as a table.

Examples:
  tasknerd tasks
  tasknerd tasks --filter pending
  tasknerd tasks --owner bob --plain`,
	Args: cobra.NoArgs,
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().StringVarP(&tasksFilter, "filter", "f", string(types.FilterAll), "pending, completed or all")
	tasksCmd.Flags().BoolVar(&tasksPlain, "plain", false, "Print markdown without terminal styling")
}

func parseFilter(s string) (types.ListFilter, error) {
	switch f := types.ListFilter(s); f {
	case types.FilterAll, types.FilterPending, types.FilterCompleted:
		return f, nil
	case "":
		return types.FilterAll, nil
	}
	return "", fmt.Errorf("unknown filter %q (want pending, completed or all)", s)
}

func runTasks(cmd *cobra.Command, _ []string) error {
	filter, err := parseFilter(tasksFilter)
	if err != nil {
		return err
	}

	eng, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	all, err := eng.tasks.List(cmd.Context(), eng.owner)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	var shown []types.Task
	for _, t := range all {
		if filter.Match(t) {
			shown = append(shown, t)
		}
	}

	md := tasksMarkdown(listHeading(filter), shown)
	if tasksPlain {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}
	r, err := newRenderer(100, ui.DetectTheme().IsDark)
	if err != nil {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderMarkdown(r, md))
	return nil
}
