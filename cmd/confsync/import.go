package main

import (
	"github.com/spf13/cobra"

	"github.com/opsforge/confsync/internal/importer"
	"github.com/opsforge/confsync/internal/telemetry"
)

var importCmd = &cobra.Command{
	Use:   "import <bundle.yaml>",
	Short: "Import a configuration bundle into the store",
	Long: `Imports a bundle into the store state. The import is fail-fast: the
first unresolvable reference or policy violation aborts with an error,
and phases already applied stay applied.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		statePath = flagOrEnv(statePath, "state")
		optionsPath = flagOrEnv(optionsPath, "options")

		st, err := loadStore(statePath)
		if err != nil {
			return err
		}
		bundle, err := loadBundle(args[0])
		if err != nil {
			return err
		}
		opts, err := loadOptions(optionsPath)
		if err != nil {
			return err
		}

		im := importer.New(telemetry.WrapStore(st), opts, log)
		if err := im.Import(cmd.Context(), bundle); err != nil {
			return err
		}

		if err := saveStore(statePath, st); err != nil {
			return err
		}
		log.Info().Str("bundle", args[0]).Msg("import complete")
		return nil
	},
}
