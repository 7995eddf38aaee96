package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"tasknerd/internal/orchestrator"
)

var replayParallel int

// replayCmd runs scripted conversations, for demos and regression checks.
var replayCmd = &cobra.Command{
	Use:   "replay [script.yaml]",
	Short: "Run scripted conversations",
	Long: `Runs every conversation in a YAML script through the engine. Separate
conversations run in parallel; turns within one conversation run in order.
A turn may state the outcome kind it expects; any mismatch fails the run.

Script format:
  owner: alice
  conversations:
    - id: groceries
      turns:
        - say: add a task to buy milk
          expect: question
        - say: no deadline
        - say: medium
          expect: confirmation
        - say: yes
          expect: mutation_performed`,
	Args: cobra.ExactArgs(1),
	RunE: runReplayCmd,
}

func init() {
	replayCmd.Flags().IntVarP(&replayParallel, "parallel", "p", 4, "Conversations run at once")
}

// replayScript is the YAML script format.
type replayScript struct {
	Owner         string               `yaml:"owner"`
	Conversations []replayConversation `yaml:"conversations"`
}

type replayConversation struct {
	ID    string       `yaml:"id"`
	Owner string       `yaml:"owner"`
	Turns []replayTurn `yaml:"turns"`
}

type replayTurn struct {
	Say    string `yaml:"say"`
	Expect string `yaml:"expect,omitempty"`
}

type replayStep struct {
	turn    replayTurn
	outcome orchestrator.Outcome
	err     error
	failed  bool
}

type replayResult struct {
	id    string
	owner string
	steps []replayStep
}

func loadReplayScript(path string) (*replayScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var s replayScript
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if len(s.Conversations) == 0 {
		return nil, fmt.Errorf("script %s has no conversations", path)
	}
	return &s, nil
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	script, err := loadReplayScript(args[0])
	if err != nil {
		return err
	}
	eng, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	failures, err := replay(cmd.Context(), eng, script, replayParallel, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	logger.Info("replay finished",
		zap.String("script", args[0]),
		zap.Int("conversations", len(script.Conversations)),
		zap.Int("failures", failures))
	if failures > 0 {
		return fmt.Errorf("%d turn(s) did not match their expected outcome", failures)
	}
	return nil
}

// replay runs the script and writes a transcript to w in script order. It
// returns the number of turns whose outcome did not match expect.
func replay(ctx context.Context, eng *engine, script *replayScript, parallel int, w io.Writer) (int, error) {
	results := make([]replayResult, len(script.Conversations))

	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, conv := range script.Conversations {
		owner := firstNonEmpty(conv.Owner, script.Owner, eng.owner)
		id := conv.ID
		if id == "" {
			id = "replay-" + uuid.NewString()
		}
		results[i] = replayResult{id: id, owner: owner}

		g.Go(func() error {
			for _, turn := range conv.Turns {
				out, err := eng.orch.Turn(gctx, id, owner, turn.Say)
				step := replayStep{turn: turn, outcome: out, err: err}
				if err != nil {
					step.failed = true
					results[i].steps = append(results[i].steps, step)
					return fmt.Errorf("conversation %s: %w", id, err)
				}
				step.failed = turn.Expect != "" && string(out.Kind) != turn.Expect
				results[i].steps = append(results[i].steps, step)
			}
			return nil
		})
	}
	runErr := g.Wait()

	failures := 0
	for _, r := range results {
		fmt.Fprintf(w, "=== %s (%s)\n", r.id, r.owner)
		for _, s := range r.steps {
			fmt.Fprintf(w, "> %s\n", s.turn.Say)
			if s.err != nil {
				fmt.Fprintf(w, "! %v\n", s.err)
			} else {
				for _, line := range strings.Split(s.outcome.Render(), "\n") {
					fmt.Fprintf(w, "  %s\n", line)
				}
			}
			if s.failed {
				failures++
				if s.err == nil {
					fmt.Fprintf(w, "! expected %s, got %s\n", s.turn.Expect, s.outcome.Kind)
				}
			}
		}
	}
	return failures, runErr
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
