package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aggregate trajectory metrics and bandit posterior state",
	Long:  `Display the trajectory store's aggregate rollups (by complexity and by attractor kind) and the persisted bandit posteriors.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Abathur Status ==="))

		agg, err := db.Aggregate(ctx)
		if err != nil {
			return fmt.Errorf("aggregate: %w", err)
		}

		fmt.Printf("%s\n", yellow("Trajectories:"))
		fmt.Printf("  Total: %d\n", agg.TotalTrajectories)
		if agg.TotalTrajectories == 0 {
			fmt.Printf("  %s\n", gray("none recorded yet"))
		} else {
			complexities := make([]string, 0, len(agg.ByComplexity))
			for k := range agg.ByComplexity {
				complexities = append(complexities, k)
			}
			sort.Strings(complexities)
			for _, c := range complexities {
				m := agg.ByComplexity[c]
				fmt.Printf("  %-12s count=%-4d converged=%-4d mean_iterations=%.1f\n", c, m.Count, m.ConvergedCount, m.MeanIterations)
			}

			fmt.Println()
			fmt.Printf("%s\n", yellow("By attractor kind:"))
			kinds := make([]string, 0, len(agg.ByAttractorKind))
			for k := range agg.ByAttractorKind {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Printf("  %-14s count=%d\n", k, agg.ByAttractorKind[k].Count)
			}
		}

		fmt.Println()
		fmt.Printf("%s\n", yellow("Bandit posteriors:"))
		priors, err := db.LoadBanditPriors(ctx)
		if err != nil {
			return fmt.Errorf("load bandit priors: %w", err)
		}
		if len(priors) == 0 {
			fmt.Printf("  %s\n", gray("no priors persisted yet (uninformative until a trajectory converges)"))
		} else {
			keys := make([]string, 0, len(priors))
			byKey := make(map[string]string)
			for k, p := range priors {
				label := fmt.Sprintf("%s / %s", k.Attractor, k.Strategy)
				keys = append(keys, label)
				byKey[label] = fmt.Sprintf("alpha=%.2f beta=%.2f mean=%.3f", p.Alpha, p.Beta, p.Mean())
			}
			sort.Strings(keys)
			for _, label := range keys {
				fmt.Printf("  %s %-32s %s\n", green("*"), label, byKey[label])
			}
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
