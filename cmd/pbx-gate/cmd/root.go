// Package cmd provides the CLI commands for pbx-gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pbxgate/pbxgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pbx-gate",
	Short: "pbx-gate - PBX control API gateway",
	Long: `pbx-gate is an HTTP gateway in front of a PBX control API.

It performs the challenge/response login on behalf of its clients, keeps
the resulting session cookies, and proxies recording downloads, CDR
queries and call origination with per-user sessions.

Quick start:
  1. Create a config file: pbx-gate.yaml (pbx.base_url is required)
  2. Run: pbx-gate start

Configuration:
  Config is loaded from pbx-gate.yaml in the current directory,
  $HOME/.pbx-gate/, or /etc/pbx-gate/.

  Environment variables can override config values with the PBX_GATE_ prefix.
  Example: PBX_GATE_SERVER_HTTP_ADDR=:9090
  UCM_API_BASE_URL, UCM_API_USER and UCM_API_PASS are honored as well.

Commands:
  start       Start the gateway
  stop        Stop the running gateway
  config      Print the effective configuration (secrets redacted)
  digest      Compute a login digest or challenge token offline
  hash-key    Generate an Argon2id hash for an admin API key
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./pbx-gate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
