package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/abathur-ai/abathur/internal/types"
)

var traceCmd = &cobra.Command{
	Use:   "trace <trajectory-id>",
	Short: "Step through a trajectory's observation history interactively",
	Long: `Trace opens an interactive shell over one persisted trajectory:
list its observations, show the detail of any one of them, and step
forward and backward through the sequence. Grounded on internal/repl's
chzyer/readline shell loop, narrowed from a natural-language REPL to a
fixed set of navigation commands since there is no conversational
substrate call involved in replaying an already-resolved trajectory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		traj, err := db.Load(context.Background(), args[0])
		if err != nil {
			return err
		}
		return runTrace(traj)
	},
}

func init() {
	rootCmd.AddCommand(traceCmd)
}

type traceShell struct {
	traj   *types.Trajectory
	cursor int // index into traj.Observations
}

func runTrace(traj *types.Trajectory) error {
	cyan := color.New(color.FgCyan).SprintFunc()

	completer := readline.NewPrefixCompleter(
		readline.PcItem("/list"),
		readline.PcItem("/show"),
		readline.PcItem("/next"),
		readline.PcItem("/prev"),
		readline.PcItem("/help"),
		readline.PcItem("/quit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("trace> "),
		AutoComplete:      completer,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	sh := &traceShell{traj: traj}
	sh.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if exit, err := sh.process(line); err != nil {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		} else if exit {
			fmt.Println("Goodbye!")
			return nil
		}
	}
}

func (s *traceShell) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Printf("\n%s\n", cyan(fmt.Sprintf("Tracing trajectory %s (%d observation(s))", s.traj.ID, len(s.traj.Observations))))
	fmt.Printf("%s\n\n", gray("/list, /show <n>, /next, /prev, /help, /quit"))
}

func (s *traceShell) process(line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		s.printWelcome()
		return false, nil
	case "/list":
		s.list()
		return false, nil
	case "/show":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /show <n>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return false, fmt.Errorf("invalid observation index: %s", fields[1])
		}
		return false, s.show(n)
	case "/next":
		return false, s.show(s.cursor + 1)
	case "/prev":
		return false, s.show(s.cursor - 1)
	default:
		return false, fmt.Errorf("unrecognized command %q (try /help)", fields[0])
	}
}

// list renders a fixed-width table of every observation, padding the
// strategy-name column with go-runewidth so multi-byte strategy labels
// (none today, but the column must hold whatever a future AttractorKind
// or StrategyKind localisation introduces) still line up.
func (s *traceShell) list() {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	const strategyColumn = 24
	for _, obs := range s.traj.Observations {
		marker := gray("-")
		if obs.Verification != nil {
			if obs.Verification.Satisfied {
				marker = green("+")
			} else {
				marker = red("x")
			}
		}
		strategy := string(obs.Strategy)
		pad := strategyColumn - runewidth.StringWidth(strategy)
		if pad < 0 {
			pad = 0
		}
		fmt.Printf("  %s #%-3d %s%s %d token(s)\n", marker, obs.Sequence, strategy, strings.Repeat(" ", pad), obs.Tokens)
	}
}

func (s *traceShell) show(n int) error {
	if n < 0 || n >= len(s.traj.Observations) {
		return fmt.Errorf("observation %d out of range (0..%d)", n, len(s.traj.Observations)-1)
	}
	s.cursor = n
	obs := s.traj.Observations[n]

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("\n%s\n", yellow(fmt.Sprintf("Observation #%d (strategy %s)", obs.Sequence, obs.Strategy)))
	fmt.Printf("  Artifact ref: %s\n", truncate(obs.ArtifactRef, 120))
	fmt.Printf("  Tokens: %d   Wall time: %v\n", obs.Tokens, obs.WallTime)
	if obs.Signals.TestResults != nil {
		tr := obs.Signals.TestResults
		fmt.Printf("  Tests: %d/%d passing, %d regression(s)\n", tr.Passed, tr.Total, len(tr.Regressions))
	}
	if obs.Verification != nil {
		fmt.Printf("  Verification satisfied: %v\n", obs.Verification.Satisfied)
		for _, gap := range obs.Verification.Gaps {
			fmt.Printf("    gap [%s]: %s\n", gap.Severity, gap.Description)
		}
	}
	if obs.Metrics != nil {
		fmt.Printf("  convergence_delta=%.3f convergence_level=%.3f\n", obs.Metrics.ConvergenceDelta, obs.Metrics.ConvergenceLevel)
	}
	fmt.Println()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
