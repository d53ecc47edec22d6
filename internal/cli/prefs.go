package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftnotes/drift/internal/prefs"
)

var (
	prefsTheme string
	prefsFont  string
)

func init() {
	prefsSetCmd.Flags().StringVar(&prefsTheme, "theme", "", "UI theme")
	prefsSetCmd.Flags().StringVar(&prefsFont, "font", "", "editor font")
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetCmd)
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change synced preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the preferences synced to this identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		p, err := eng.FetchPreferences(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("theme:           %s\n", orUnset(p.Theme))
		fmt.Printf("editor font:     %s\n", orUnset(p.EditorFont))
		fmt.Printf("sync on startup: %t\n", p.SyncOnStartup)
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		p, err := eng.FetchPreferences(ctx)
		if err != nil {
			p = &prefs.Preferences{SyncOnStartup: true}
		}
		if prefsTheme != "" {
			p.Theme = prefsTheme
		}
		if prefsFont != "" {
			p.EditorFont = prefsFont
		}
		if err := eng.SavePreferences(ctx, p); err != nil {
			return err
		}
		fmt.Println(okMark() + " Preferences saved")
		return nil
	},
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
