package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the store state as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		statePath = flagOrEnv(statePath, "state")

		st, err := loadStore(statePath)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(st.Snapshot())
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}
