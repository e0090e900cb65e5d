package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "todo-ui",
	Short: "todo-ui is the UI side of the todo MCP App",
	Long: `todo-ui speaks the MCP Apps bridge protocol with the host that embeds it: it answers the
handshake, shows the todos the host reports and acknowledges the teardown.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
