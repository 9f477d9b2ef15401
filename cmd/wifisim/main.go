// Command wifisim runs the station firmware's tasks on a host against a simulated radio, so the
// connect and request behaviour can be exercised without a board.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wifisim",
		Short:         "Simulate the wifi station on the host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "YAML config file; defaults apply when empty")
	root.AddCommand(newRunCmd(), newConfigCmd())
	return root
}
