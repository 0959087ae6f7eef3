// Package cli implements the fleetctl cobra command tree (spec §6):
// `worker run`, `batch pause|resume`, and `schedule list|cancel|cancel-all`.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the fleetctl root command with every subcommand
// attached. config.Load() and app.New() run lazily inside each leaf
// command's RunE, not here, so `fleetctl --help` never requires a live
// spreadsheet or service-account key.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fleetctl",
		Short: "Operate the subscription pause/resume fleet worker",
	}

	root.AddCommand(newWorkerCmd())
	root.AddCommand(newBatchCmd())
	root.AddCommand(newScheduleCmd())

	return root
}
