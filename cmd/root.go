package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/keyrelay/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "keyrelay",
	Short: "Round-robin API key rotating proxy",
	Long: `keyrelay is a reverse proxy that spreads requests across a pool of API keys.

Each request under the proxied prefix is sent upstream with the next key
in the pool:
  - As "Authorization: Bearer <key>" for /openai/ and /embeddings routes
  - As the key query parameter for everything else

Keys come from GEMINI_API_KEYS (comma separated) or a key file.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose, jsonOutput, os.Stderr)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)
