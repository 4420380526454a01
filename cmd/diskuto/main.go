// Command diskuto runs the Diskuto content server and its operator
// subcommands: db (schema management), user (admission management), and
// serve (the HTTP server).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "diskuto",
		Short: "Diskuto peer-to-peer content server",
	}
	root.AddCommand(dbCmd())
	root.AddCommand(userCmd())
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
