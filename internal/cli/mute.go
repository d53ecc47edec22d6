package cli

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/spf13/cobra"

	"github.com/driftnotes/drift/internal/identity"
)

var mutePrivate bool

func init() {
	muteAddCmd.Flags().BoolVar(&mutePrivate, "private", false, "hide this entry from other clients")
	muteCmd.AddCommand(muteAddCmd)
	muteCmd.AddCommand(muteRemoveCmd)
	muteCmd.AddCommand(muteListCmd)
}

var muteCmd = &cobra.Command{
	Use:   "mute",
	Short: "Manage the mute list",
}

var muteAddCmd = &cobra.Command{
	Use:   "add <npub>",
	Short: "Mute a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		pub, err := identity.DecodePublicKey(args[0])
		if err != nil {
			return err
		}
		if err := eng.AddToMuteList(ctx, pub, mutePrivate); err != nil {
			return err
		}
		fmt.Println(okMark() + " Muted")
		return nil
	},
}

var muteRemoveCmd = &cobra.Command{
	Use:   "remove <npub>",
	Short: "Unmute a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		pub, err := identity.DecodePublicKey(args[0])
		if err != nil {
			return err
		}
		if err := eng.RemoveFromMuteList(ctx, pub); err != nil {
			return err
		}
		fmt.Println(okMark() + " Unmuted")
		return nil
	},
}

var muteListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the mute list",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		list, err := eng.FetchMuteList(ctx)
		if err != nil {
			return err
		}
		if len(list.Public)+len(list.Private) == 0 {
			fmt.Println(noteMark() + " Mute list is empty")
			return nil
		}
		for _, pk := range list.Public {
			npub, _ := nip19.EncodePublicKey(pk)
			fmt.Println(npub)
		}
		for _, pk := range list.Private {
			npub, _ := nip19.EncodePublicKey(pk)
			fmt.Println(npub + "  (private)")
		}
		return nil
	},
}
