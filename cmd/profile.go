package cmd

import (
	"github.com/spf13/cobra"

	"calypsocore/output"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Select the card and print its profile",
	RunE:  runProfile,
}

func runProfile(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig(cmd)
	if err != nil {
		return err
	}
	t, p, err := connectAndSelect(cfg)
	if err != nil {
		return err
	}
	defer t.Close()

	if !outputJSON {
		output.PrintCardProfile(p)
	}
	return nil
}
