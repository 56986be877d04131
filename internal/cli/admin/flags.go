package admin

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envPrefix is prepended to flag names when looking up environment overrides,
// e.g. --no-worker becomes DOCUFORGE_NO_WORKER.
const envPrefix = "DOCUFORGE_"

// applyEnvOverrides fills flags that were not set on the command line from
// matching environment variables. Explicit flags always win.
func applyEnvOverrides(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		key := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if value, ok := os.LookupEnv(key); ok && value != "" {
			_ = f.Value.Set(value)
		}
	})
}
