// Package admin implements the syncadmin operator commands: minting bearer
// tokens, generating keys, applying migrations and purging old tombstones.
package admin

import (
	"io"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the syncadmin command tree writing results to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "syncadmin",
		Short:         "Operator tools for the teamsync server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.AddCommand(
		newTokenCmd(),
		newKeygenCmd(),
		newMigrateCmd(),
		newPurgeCmd(),
	)
	return root
}
