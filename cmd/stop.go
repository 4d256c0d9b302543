package cmd

import (
	"fmt"

	"github.com/ecgovern/ecgovern/internal/configuration"
	"github.com/ecgovern/ecgovern/internal/ec"
	"github.com/ecgovern/ecgovern/internal/fan"
	"github.com/ecgovern/ecgovern/internal/runstate"
	"github.com/ecgovern/ecgovern/internal/ui"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Force automatic fan control and clear the persisted governor state",
	Long: `Hands fan control back to the EC's own control law and removes the
persisted thermal state, regardless of what the governor last did.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadAndValidateConfig()
		config := configuration.CurrentConfig

		actuator := fan.NewActuator(newController())
		if err := actuator.EnterAuto(); err != nil {
			return fmt.Errorf("unable to restore automatic fan control: %w", err)
		}

		store := runstate.NewStore(config.StateDir)
		if err := store.Clear(); err != nil {
			return fmt.Errorf("unable to clear persisted state: %w", err)
		}

		ui.Success("Done!")
		return nil
	},
}

func newController() *ec.SysfsEmbeddedController {
	config := configuration.CurrentConfig
	return ec.NewEmbeddedController(config.EcChannelPath, config.EcModule, ec.RetryPolicy{
		MaxAttempts: config.Reset.MaxAttempts,
		Backoff:     config.Reset.Backoff,
	})
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
