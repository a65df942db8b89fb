/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/krobus00/copy-trader-service/internal/bootstrap"
)

// replicateCmd represents the replication engine command
var replicateCmd = &cobra.Command{
	Use:   "replicate",
	Short: "Run the order replication engine",
	Long: `Connects one order stream per leader, reconciles open orders placed
while disconnected, and replicates every incoming order event onto the
leader's followers.`,
	Run: bootstrap.StartReplicator,
}

func init() {
	rootCmd.AddCommand(replicateCmd)
}
