// Command dbaasd is the control-plane daemon: it serves the public API
// surface and runs the background workers in one process, the way the
// teacher's cmd/ binaries each wrap one long-running role behind cobra.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/coralcp/dbaas/engine/adapters"
)

func main() {
	root := &cobra.Command{
		Use:   "dbaasd",
		Short: "Database-as-a-service control plane daemon",
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
