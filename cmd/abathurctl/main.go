// Command abathurctl is the operator CLI for the Convergence Engine:
// submit a task, watch a trajectory converge, inspect bandit/aggregate
// state, and step through an already-resolved trajectory's observations
// in an interactive trace REPL. Grounded on cmd/vc's cobra command-per-file
// layout (one file per subcommand, a shared set of package-level globals
// wired up once in init/root).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abathur-ai/abathur/internal/config"
	"github.com/abathur-ai/abathur/internal/store"
)

// projectRoot, cfg, and db are resolved once in rootCmd's PersistentPreRunE
// and shared by every subcommand, mirroring cmd/vc's package-level
// store/dbPath globals.
var (
	projectRoot string
	cfg         *config.Config
	db          *store.Store
)

var rootCmd = &cobra.Command{
	Use:   "abathurctl",
	Short: "Operate the Convergence Engine",
	Long: `abathurctl drives the Convergence Engine from the command line:
submit a task, watch a trajectory iterate toward acceptance, inspect
bandit and aggregate trajectory state, and replay a finished
trajectory's observation history.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		root, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		projectRoot = root

		loaded, err := config.LoadConfigFile(projectRoot)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		dbPath := filepath.Join(projectRoot, ".abathur", "trajectories.db")
		s, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open trajectory store: %w", err)
		}
		db = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
