// Command cnw-license-server runs the product key activation server.
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
		Use:           "cnw-license-server",
		Short:         "Product key activation server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := newServeCmd()
	root.AddCommand(serve, newVerifyCmd(), newActivateCmd())
	// Running without a subcommand serves, like the deployed entrypoint expects.
	root.RunE = serve.RunE
	return root
}
