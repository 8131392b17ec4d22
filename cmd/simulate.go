package cmd

import (
	"fmt"

	"github.com/mselser95/lmsr-amm/internal/simulate"
	"github.com/mselser95/lmsr-amm/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario.toml>",
	Short: "Replay a TOML scenario through a fresh ledger",
	Long: `Applies the timed steps of a scenario file to an empty ledger and prints
every committed event, the final market snapshots, account balances and the
state digest. Steps may declare the error they are expected to fail with.

Example:
  lmsr-amm simulate internal/simulate/testdata/lifecycle.toml`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().BoolP("verbose", "v", false, "Log engine activity to stderr")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	scenario, err := simulate.Load(args[0])
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger, err = config.NewLogger("debug")
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() {
			_ = logger.Sync()
		}()
	}

	_, err = simulate.NewRunner(scenario, cmd.OutOrStdout(), logger).Run()
	if err != nil {
		return fmt.Errorf("simulate %s: %w", args[0], err)
	}
	return nil
}
