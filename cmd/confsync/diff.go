package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opsforge/confsync/internal/compare"
)

var diffCmd = &cobra.Command{
	Use:   "diff <before.yaml> <after.yaml>",
	Short: "Show what importing a bundle would change",
	Long: `Diffs two export files entity by entity, matched by UUID, honoring
the same per-kind policies an import would. Covers the UUID-addressed
template subtree; hosts and other entities without durable UUIDs are
not compared. An empty diff means the import would change nothing
there.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		optionsPath = flagOrEnv(optionsPath, "options")

		before, err := loadTree(args[0])
		if err != nil {
			return err
		}
		after, err := loadTree(args[1])
		if err != nil {
			return err
		}
		opts, err := loadOptions(optionsPath)
		if err != nil {
			return err
		}

		diff := compare.New(opts).Compare(unwrap(before), unwrap(after))
		if len(diff) == 0 {
			log.Info().Msg("no differences")
			return nil
		}
		data, err := yaml.Marshal(diff)
		if err != nil {
			return fmt.Errorf("encode diff: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func unwrap(tree map[string]any) map[string]any {
	if inner, ok := tree["export"].(map[string]any); ok {
		return inner
	}
	return tree
}
