/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/krobus00/copy-trader-service/internal/bootstrap"
)

// journalWorkerCmd represents the journal worker command
var journalWorkerCmd = &cobra.Command{
	Use:   "journal-worker",
	Short: "Persist copy-action audit records",
	Long:  `The journal worker consumes copy-action events published by the replication engine and stores them in the journal database.`,
	Run:   bootstrap.StartJournalWorker,
}

func init() {
	rootCmd.AddCommand(journalWorkerCmd)
}
