package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MegaGrindStone/go-mcp-ui/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the UI until the host tears it down",
	Long: `Connects to the host over stdio (the default, for hosts that spawn the UI) or SSE, lists the
todos once the handshake completed and prints every update to stderr.

Settings are read from flags, MCPUI_* environment variables and the file named by MCPUI_CONFIG.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		v := viper.New()
		for key, flag := range runFlagKeys {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}

		cfg, err := config.LoadWith(v)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runUI(ctx, cfg, os.Stdin, os.Stdout, os.Stderr)
	},
}

// runFlagKeys maps config keys to the flags overriding them.
var runFlagKeys = map[string]string{
	"transport":               "transport",
	"sse.url":                 "sse-url",
	"bridge.request_timeout":  "request-timeout",
	"bridge.teardown_timeout": "teardown-timeout",
	"metrics.addr":            "metrics-addr",
	"log.level":               "log-level",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("transport", config.TransportStdIO, "Transport to the host: stdio or sse")
	runCmd.Flags().String("sse-url", "", "URL of the host event stream, for the sse transport")
	runCmd.Flags().Duration("request-timeout", 0, "How long a tool call waits for its result (default 30s)")
	runCmd.Flags().Duration("teardown-timeout", 0, "How long cleanup may take on teardown (default 10s)")
	runCmd.Flags().String("metrics-addr", "", "Address to serve Prometheus metrics on, disabled when empty")
	runCmd.Flags().String("log-level", "info", "Log level: debug, info, warn or error")

}
