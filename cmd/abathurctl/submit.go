package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abathur-ai/abathur/internal/events"
	"github.com/abathur-ai/abathur/internal/types"
)

var (
	submitTask            string
	submitStdin           bool
	submitAcceptanceTests []string
	submitInvariants      []string
	submitTags            []string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a task and run it to a terminal outcome",
	Long: `Submit builds a Task Submission from --task (or --stdin), wires up
the default Anthropic-backed substrate, intent verifier, and subtask
planner, and runs the Engine Loop to completion: PREPARE, DECIDE,
ITERATE, and RESOLVE. It prints the resulting trajectory ID and
terminal outcome.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		description := submitTask
		if submitStdin {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read task from stdin: %w", err)
			}
			description = string(data)
		}
		if description == "" {
			return fmt.Errorf("--task or --stdin is required")
		}

		task := types.TaskSubmission{
			Description:     description,
			Complexity:      types.ComplexityModerate,
			AcceptanceTests: submitAcceptanceTests,
			Invariants:      submitInvariants,
			Tags:            submitTags,
		}

		bus := events.NewInMemoryBus()
		e, err := buildEngine(projectRoot, bus)
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Submitting task ==="))

		traj, outcome, err := e.Submit(context.Background(), task)
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}

		if traj != nil {
			if saveErr := db.Save(context.Background(), traj, task); saveErr != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to persist trajectory: %v\n", saveErr)
			}
			if saveErr := db.SaveBanditPriors(context.Background(), e.Bandit.Snapshot()); saveErr != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to persist bandit priors: %v\n", saveErr)
			}
		}

		printOutcome(traj, outcome)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitTask, "task", "", "task description")
	submitCmd.Flags().BoolVar(&submitStdin, "stdin", false, "read the task description from stdin")
	submitCmd.Flags().StringSliceVar(&submitAcceptanceTests, "acceptance-test", nil, "acceptance test (repeatable)")
	submitCmd.Flags().StringSliceVar(&submitInvariants, "invariant", nil, "invariant (repeatable)")
	submitCmd.Flags().StringSliceVar(&submitTags, "tag", nil, "tag (repeatable)")
	rootCmd.AddCommand(submitCmd)
}

func printOutcome(traj *types.Trajectory, outcome *types.Outcome) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow, color.Bold).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()

	if traj != nil {
		fmt.Printf("Trajectory: %s\n", traj.ID)
	}
	if outcome == nil {
		fmt.Println("No outcome (the context was cancelled mid-iteration; the trajectory is frozen and resumable).")
		return
	}

	switch outcome.Kind {
	case types.OutcomeConverged:
		fmt.Printf("%s after %d iteration(s), %d token(s)\n", green("CONVERGED"), outcome.Iterations, outcome.TotalTokens)
		fmt.Printf("Artifact: %s\n", outcome.ArtifactRef)
	case types.OutcomeExhausted:
		fmt.Printf("%s (budget exhausted)\n", yellow("EXHAUSTED"))
		fmt.Printf("Best artifact: %s\n", outcome.BestArtifactRef)
	case types.OutcomeTrapped:
		fmt.Printf("%s", red("TRAPPED"))
		if outcome.Attractor != nil {
			fmt.Printf(" (%s)", outcome.Attractor.Kind)
		}
		fmt.Println()
		fmt.Printf("Best artifact: %s\n", outcome.BestArtifactRef)
		if len(outcome.Cycle) > 0 {
			fmt.Printf("Cycle: %v\n", outcome.Cycle)
		}
	}
}
