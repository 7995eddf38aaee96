package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tasknerd/internal/orchestrator"
)

var (
	sayConversation string
	sayJSON         bool
)

// sayCmd runs a single turn. Conversation state persists between
// invocations, so a workflow can be continued across several calls.
var sayCmd = &cobra.Command{
	Use:   "say [message]",
	Short: "Send one message to a conversation",
	Long: `Processes one message and prints the reply. State is kept in the task
database, so follow-up calls with the same --conversation continue the
same workflow.

Examples:
  tasknerd say add a task to call the bank
  tasknerd say high
  tasknerd say yes
  tasknerd say --json show my pending tasks`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSay,
}

func init() {
	sayCmd.Flags().StringVar(&sayConversation, "conversation", "cli", "Conversation id")
	sayCmd.Flags().BoolVar(&sayJSON, "json", false, "Print the outcome as JSON")
}

func runSay(cmd *cobra.Command, args []string) error {
	eng, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	out, err := eng.orch.Turn(cmd.Context(), sayConversation, eng.owner, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return printOutcome(cmd.OutOrStdout(), out, sayJSON)
}

func printOutcome(w io.Writer, out orchestrator.Outcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out.Payload())
	}
	_, err := fmt.Fprintln(w, out.Render())
	return err
}
