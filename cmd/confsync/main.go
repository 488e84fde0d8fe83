// Command confsync imports configuration bundles into an entity store and
// diffs bundles against each other.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opsforge/confsync/internal/logging"
	"github.com/opsforge/confsync/internal/telemetry"
)

// Version and Build are set at link time.
var (
	Version = "dev"
	Build   = "unknown"
)

var (
	statePath   string
	optionsPath string
	logLevel    string
	jsonLogs    bool

	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "confsync",
	Short: "confsync - configuration bundle importer",
	Long: `Imports exported configuration bundles (templates, hosts and the
objects they own) into an entity store, resolving cross-references and
honoring per-kind create/update/delete policies.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("confsync version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if jsonLogs {
			log = logging.NewJSON(os.Stderr, logLevel)
		} else {
			log = logging.New(logLevel)
		}
		if err := telemetry.Init(cmd.Context(), "confsync", Version); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

func init() {
	viper.SetEnvPrefix("CONFSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&statePath, "state", "", "Store state file (default: in-memory, discarded on exit)")
	pf.StringVar(&optionsPath, "options", "", "Import options file (default: create and update everything, delete nothing)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (trace|debug|info|warn|error)")
	pf.BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON instead of console output")

	for _, name := range []string{"state", "options", "log-level"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flagOrEnv prefers the flag value, falling back to viper's env binding.
func flagOrEnv(flagValue, key string) string {
	if flagValue != "" {
		return flagValue
	}
	return viper.GetString(key)
}
