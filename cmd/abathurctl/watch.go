package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abathur-ai/abathur/internal/types"
)

var watchCmd = &cobra.Command{
	Use:   "watch <trajectory-id>",
	Short: "Show a trajectory's current phase and observation history",
	Long:  `Load a persisted trajectory and render its phase, attractor state, and per-iteration observation history.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		traj, err := db.Load(context.Background(), args[0])
		if err != nil {
			return err
		}
		renderTrajectory(traj)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func renderTrajectory(traj *types.Trajectory) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Trajectory %s ===", traj.ID)))
	fmt.Printf("Task:      %s\n", traj.TaskID)
	fmt.Printf("Phase:     %s\n", phaseColor(traj.Phase, green, yellow, red)(string(traj.Phase)))
	fmt.Printf("Attractor: %s (confidence %.2f)\n", traj.Attractor.Type.Kind, traj.Attractor.Confidence)
	fmt.Printf("Context:   signal/noise %.2f, churn %.2f, self-similarity %.2f\n",
		traj.Context.SignalToNoise, traj.Context.StructuralChurnRate, traj.Context.ArtifactSelfSimilarity)
	fmt.Printf("Budget:    %d tokens, %d iteration(s), %v wall time\n",
		traj.Budget.MaxTokens, traj.Budget.MaxIterations, traj.Budget.MaxWallTime)

	fmt.Printf("\n%s\n", yellow("Observations:"))
	if len(traj.Observations) == 0 {
		fmt.Printf("  %s\n", gray("none yet"))
	}
	for _, obs := range traj.Observations {
		marker := gray("-")
		if obs.Verification != nil {
			if obs.Verification.Satisfied {
				marker = green("+")
			} else {
				marker = red("x")
			}
		}
		fmt.Printf("  %s #%d  %-24s  %d token(s)  %v\n", marker, obs.Sequence, obs.Strategy, obs.Tokens, obs.WallTime.Round(time.Millisecond))
		if obs.Metrics != nil {
			fmt.Printf("      delta=%.3f level=%.3f\n", obs.Metrics.ConvergenceDelta, obs.Metrics.ConvergenceLevel)
		}
	}

	if len(traj.Children) > 0 {
		fmt.Printf("\n%s\n", yellow("Children:"))
		for _, childID := range traj.Children {
			fmt.Printf("  %s\n", childID)
		}
	}
	fmt.Println()
}

func phaseColor(phase types.ConvergencePhase, green, yellow, red func(a ...interface{}) string) func(a ...interface{}) string {
	switch phase {
	case types.PhaseConverged:
		return green
	case types.PhaseExhausted, types.PhaseTrapped:
		return red
	default:
		return yellow
	}
}
