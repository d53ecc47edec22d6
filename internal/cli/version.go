package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/driftnotes/drift/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	Run: func(cmd *cobra.Command, args []string) {
		buildinfo.PrintBuildData(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
