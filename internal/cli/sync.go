package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftnotes/drift/internal/vaultfs"
)

var (
	syncVaultName string
	syncDir       string
)

func init() {
	syncCmd.Flags().StringVar(&syncVaultName, "vault", "", "vault to sync (defaults to the only vault)")
	syncCmd.Flags().StringVar(&syncDir, "dir", ".", "local notes directory")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile a local directory with a vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		store, err := vaultfs.NewDirStore(syncDir)
		if err != nil {
			return err
		}
		v, err := findVault(ctx, syncVaultName)
		if err != nil {
			return err
		}

		res, err := eng.Sync(ctx, v, store, func(msg string) {
			fmt.Println(noteMark() + " " + msg)
		})
		if err != nil {
			fmt.Println(failMark() + " Sync failed")
			return err
		}
		fmt.Printf("%s %s: %s uploaded, %s downloaded, %d unchanged\n",
			okMark(), color.YellowString(v.Name),
			color.GreenString("%d", res.Uploaded), color.GreenString("%d", res.Downloaded), res.Unchanged)
		return nil
	},
}
