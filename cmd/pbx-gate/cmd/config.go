package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pbxgate/pbxgate/internal/config"
)

var configDev bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Load the configuration the way "start" does (file, environment and
defaults), validate it, and print it as YAML. The PBX password, the shared
secret and admin key hashes are redacted.

Examples:
  pbx-gate config
  pbx-gate --config /etc/pbx-gate/pbx-gate.yaml config`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidatedConfig(configDev)
		if err != nil {
			return err
		}
		data, err := cfg.RedactedYAML()
		if err != nil {
			return err
		}
		if used := config.ConfigFileUsed(); used != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configCmd.Flags().BoolVar(&configDev, "dev", false, "apply development defaults")
	rootCmd.AddCommand(configCmd)
}

// loadValidatedConfig loads the raw config, applies the --dev override and
// dev defaults, and validates.
func loadValidatedConfig(dev bool) (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dev {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
