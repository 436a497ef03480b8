// File: cmd/version.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version and Commit identify the build. Both are meant to be overridden at
// build time.
// Example: go build -ldflags "-X github.com/vantrigo/deskhand/cmd.Version=1.2.0"
var (
	Version = "0.1.0"
	Commit  = ""
)

// versionString renders the version, with the commit when one was stamped.
func versionString() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}

// newVersionCmd reports the build version. It overrides the root's
// persistent hook so no configuration is needed to ask for the version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the deskhand version",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deskhand %s\n", versionString())
		},
	}
}
