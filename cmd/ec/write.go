package ec

import (
	"strconv"

	"github.com/ecgovern/ecgovern/internal/ui"
	"github.com/spf13/cobra"
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write a value to a whitelisted EC register",
	Long:  `The write is validated against the register whitelist and value bounds.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		register, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		value, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}

		controller := getController()
		if err := controller.WriteRegister(register, value); err != nil {
			return err
		}

		ui.Success("Wrote %d to register %d", value, register)
		return nil
	},
}

func init() {
	Command.AddCommand(writeCmd)
}
