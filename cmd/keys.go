package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/keyrelay/internal/config"
	"github.com/firefly-engineering/keyrelay/internal/errors"
	"github.com/firefly-engineering/keyrelay/internal/keys"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the configured API keys (masked)",
	Long: `List the API keys serve would load, in rotation order, with each key
masked. Uses the same sources as serve: GEMINI_API_KEYS first, then the
key file.`,
	SilenceUsage: true,
	RunE:         runKeys,
}

var keysFileFlag string

func init() {
	keysCmd.Flags().StringVar(&keysFileFlag, "keys-file", "", "Key file used when GEMINI_API_KEYS is unset (default $KEYRELAY_KEYS_FILE or api-keys.json)")
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if keysFileFlag != "" {
		cfg.KeysFile = keysFileFlag
	}

	store, err := keys.Load(cfg.KeySource())
	if err != nil {
		return err
	}
	if store.Len() == 0 {
		logWarning("No API keys configured (set %s or create %s)", keys.EnvVar, cfg.KeysFile)
		return errors.NoCredentials()
	}

	source := cfg.KeysFile
	if store.Origin() == keys.OriginEnv {
		source = keys.EnvVar
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d API keys from %s", store.Len(), source)))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tKEY")
	fmt.Fprintln(w, "-----\t---")
	for i, k := range store.Keys() {
		fmt.Fprintf(w, "%d\t%s\n", i, keys.Mask(k))
	}
	return w.Flush()
}
