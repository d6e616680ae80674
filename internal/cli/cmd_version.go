package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0-dev"

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show mahavishnu version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("mahavishnu version " + Version)
		},
	}
}
