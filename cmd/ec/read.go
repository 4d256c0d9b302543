package ec

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read a whitelisted EC register",
	Long:  ``,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pterm.DisableOutput()

		register, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}

		controller := getController()
		value, err := controller.ReadRegister(register)
		if err != nil {
			return err
		}

		fmt.Printf("%d", value)
		return nil
	},
}

func init() {
	Command.AddCommand(readCmd)
}
