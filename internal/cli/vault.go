package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var vaultDescription string

func init() {
	vaultCreateCmd.Flags().StringVar(&vaultDescription, "description", "", "vault description")
	vaultCmd.AddCommand(vaultListCmd)
	vaultCmd.AddCommand(vaultCreateCmd)
}

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage vaults",
}

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vaults on the configured relays",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		s, cleanup := startSpinner("Fetching vaults...")
		defer cleanup()
		vaults, err := eng.FetchVaults(ctx)
		if err != nil {
			return err
		}
		if len(vaults) == 0 {
			s.FinalMSG = noteMark() + " No vaults yet. Create one with " + color.YellowString("drift vault create <name>")
			return nil
		}
		s.FinalMSG = ""
		cleanup()
		for _, v := range vaults {
			line := fmt.Sprintf("%s %s  (%d files, %d deleted)", okMark(), color.YellowString(v.Name), len(v.Files), len(v.Deleted))
			if v.Description != "" {
				line += "  " + v.Description
			}
			fmt.Println(line)
		}
		return nil
	},
}

var vaultCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new empty vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		s, cleanup := startSpinner("Creating vault...")
		defer cleanup()
		v, err := eng.CreateVault(ctx, args[0], vaultDescription)
		if err != nil {
			s.FinalMSG = failMark() + " Could not create vault"
			return err
		}
		s.FinalMSG = okMark() + " Created vault " + color.YellowString(v.Name)
		return nil
	},
}
