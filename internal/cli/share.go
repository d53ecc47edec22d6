package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftnotes/drift/internal/identity"
)

var (
	shareTitle     string
	shareVaultName string
)

func init() {
	shareSendCmd.Flags().StringVar(&shareTitle, "title", "", "document title (defaults to the file name)")
	shareImportCmd.Flags().StringVar(&shareVaultName, "vault", "", "vault to import into (defaults to the only vault)")

	shareCmd.AddCommand(shareSendCmd)
	shareCmd.AddCommand(shareListCmd)
	shareCmd.AddCommand(shareSentCmd)
	shareCmd.AddCommand(shareImportCmd)
	shareCmd.AddCommand(shareRevokeCmd)
}

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Share documents with other users",
}

var shareSendCmd = &cobra.Command{
	Use:   "send <npub> <file>",
	Short: "Share a local file with another user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		recipient, err := identity.DecodePublicKey(args[0])
		if err != nil {
			return err
		}
		content, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		title := shareTitle
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(args[1]), filepath.Ext(args[1]))
		}

		s, cleanup := startSpinner("Sharing document...")
		defer cleanup()
		res, err := eng.ShareDocument(ctx, recipient, title, filepath.ToSlash(args[1]), string(content))
		if err != nil {
			s.FinalMSG = failMark() + " Could not share document"
			return err
		}
		msg := okMark() + " Shared " + color.YellowString(title) + "  (event " + res.EventID + ")"
		if !res.DMSent {
			msg += "\n" + noteMark() + " Notification DM not sent: " + res.DMError.Error()
		}
		s.FinalMSG = msg
		return nil
	},
}

var shareListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents shared with you",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		s, cleanup := startSpinner("Fetching shares...")
		defer cleanup()
		shares, err := eng.FetchSharedWithMe(ctx)
		if err != nil {
			return err
		}
		if len(shares) == 0 {
			s.FinalMSG = noteMark() + " Nothing has been shared with you"
			return nil
		}
		s.FinalMSG = ""
		cleanup()
		for _, sh := range shares {
			mark := color.GreenString("read")
			if !sh.Read {
				mark = color.CyanString("new")
			}
			sender := sh.Sender
			if name, err := eng.ProfileName(ctx, sh.Sender); err == nil {
				sender = name
			}
			fmt.Printf("[%s] %s  from %s  (%s)\n", mark, color.YellowString(sh.Title), sender, sh.EventID)
		}
		return nil
	},
}

var shareSentCmd = &cobra.Command{
	Use:   "sent",
	Short: "List documents you have shared",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		s, cleanup := startSpinner("Fetching sent shares...")
		defer cleanup()
		sent, err := eng.FetchSentShares(ctx)
		if err != nil {
			return err
		}
		if len(sent) == 0 {
			s.FinalMSG = noteMark() + " You have not shared anything"
			return nil
		}
		s.FinalMSG = ""
		cleanup()
		for _, sh := range sent {
			fmt.Printf("%s  to %s  (%s)\n", color.YellowString(sh.Title), sh.Recipient, sh.EventID)
		}
		return nil
	},
}

var shareImportCmd = &cobra.Command{
	Use:   "import <event-id>",
	Short: "Import a received share into your vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		shares, err := eng.FetchSharedWithMe(ctx)
		if err != nil {
			return err
		}
		for _, sh := range shares {
			if sh.EventID != args[0] {
				continue
			}
			v, err := findVault(ctx, shareVaultName)
			if err != nil {
				return err
			}
			s, cleanup := startSpinner("Importing document...")
			defer cleanup()
			entry, _, err := eng.ImportShare(ctx, v, sh)
			if err != nil {
				s.FinalMSG = failMark() + " Import failed"
				return err
			}
			s.FinalMSG = okMark() + " Imported as " + color.YellowString(entry.Path)
			return nil
		}
		return fmt.Errorf("no incoming share with event id %s", args[0])
	},
}

var shareRevokeCmd = &cobra.Command{
	Use:   "revoke <event-id>",
	Short: "Revoke a share you sent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		s, cleanup := startSpinner("Publishing revocation...")
		defer cleanup()
		if err := eng.RevokeShare(ctx, args[0]); err != nil {
			s.FinalMSG = failMark() + " Could not revoke share"
			return err
		}
		s.FinalMSG = okMark() + " Revocation published\n" +
			noteMark() + " Relays treat deletions as advisory; copies already fetched may survive"
		return nil
	},
}
