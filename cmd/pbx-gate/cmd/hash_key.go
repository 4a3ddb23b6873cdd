package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pbxgate/pbxgate/internal/domain/auth"
)

var hashKeySHA256 bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Generate an Argon2id hash for an admin API key",
	Long: `Generate a hash of an admin API key for use in config.

The default output is an Argon2id PHC string that can be used directly
in the admin.api_keys[].key_hash field. --sha256 prints the legacy
"sha256:<hex>" form instead.

Example:
  pbx-gate hash-key "my-secret-api-key"
  # Output: $argon2id$v=19$m=48128,t=1,p=1$...

Security note: The key will appear in shell history.
Consider clearing history after use or using environment variable:
  pbx-gate hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if hashKeySHA256 {
			fmt.Fprintln(cmd.OutOrStdout(), "sha256:"+auth.HashKey(args[0]))
			return nil
		}
		hash, err := auth.HashKeyArgon2id(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash key: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeySHA256, "sha256", false, "print a sha256:<hex> hash instead of Argon2id")
	rootCmd.AddCommand(hashKeyCmd)
}
