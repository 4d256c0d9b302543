package cmd

import (
	"github.com/ecgovern/ecgovern/internal/fan"
	"github.com/ecgovern/ecgovern/internal/ui"
	"github.com/spf13/cobra"
)

var autoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Force automatic fan control immediately",
	Long:  `Switches the mode register to the EC's own control law. Idempotent.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadAndValidateConfig()

		actuator := fan.NewActuator(newController())
		if err := actuator.EnterAuto(); err != nil {
			return err
		}

		if mode, err := actuator.CurrentMode(); err == nil {
			ui.Info("Fan mode: %s", fan.ModeName(mode))
		}
		ui.Success("Automatic fan control active.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(autoCmd)
}
