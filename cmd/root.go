package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "lmsr-amm",
	Short: "LMSR market maker for binary prediction markets",
	Long: `Deterministic LMSR pricing and settlement engine for binary YES/NO
prediction markets.

The engine prices trades with a logarithmic market scoring rule, charges
creator, protocol and liquidity fees, and settles markets through a creator
proposal, a dispute window and arbitration voting. Every accepted
transaction is journaled so the ledger can be rebuilt on restart.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
