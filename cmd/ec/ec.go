package ec

import (
	"github.com/ecgovern/ecgovern/internal/configuration"
	"github.com/ecgovern/ecgovern/internal/ec"
	"github.com/ecgovern/ecgovern/internal/ui"
	"github.com/spf13/cobra"
)

var Command = &cobra.Command{
	Use:              "ec",
	Short:            "Raw EC register access",
	Long:             `Read and write whitelisted embedded controller registers directly.`,
	TraverseChildren: true,
}

func getController() *ec.SysfsEmbeddedController {
	configPath := configuration.DetectConfigFile()
	if configPath != "" {
		ui.Debug("Using configuration file at: %s", configPath)
	}
	configuration.LoadConfig()
	if err := configuration.Validate(); err != nil {
		ui.Fatal(err.Error())
	}

	config := configuration.CurrentConfig
	return ec.NewEmbeddedController(config.EcChannelPath, config.EcModule, ec.RetryPolicy{
		MaxAttempts: config.Reset.MaxAttempts,
		Backoff:     config.Reset.Backoff,
	})
}
