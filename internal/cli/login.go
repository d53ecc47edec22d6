package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/spf13/cobra"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/identity"
	"github.com/driftnotes/drift/internal/signer"
)

const defaultKeyName = "default"

var (
	loginGenerate bool
	loginBunker   string
)

func bunkerURLPath() string {
	return filepath.Join(cfg.DataDir, "bunker.url")
}

func init() {
	loginCmd.Flags().BoolVar(&loginGenerate, "generate", false, "generate a fresh identity instead of importing one")
	loginCmd.Flags().StringVar(&loginBunker, "bunker", "", "connect to a remote signer via a bunker:// URL")
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Import, generate or connect an identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if loginBunker != "" {
			if _, err := signer.ParseBunkerURL(loginBunker); err != nil {
				return err
			}
			s, cleanup := startSpinner("Connecting to remote signer...")
			defer cleanup()
			sg, err := signer.NewBunkerSigner(loginBunker, logger)
			if err != nil {
				return err
			}
			eng.SetSigner(sg)
			pub, err := eng.PublicKey(ctx)
			if err != nil {
				s.FinalMSG = failMark() + " Remote signer did not answer"
				return err
			}
			if err := os.WriteFile(bunkerURLPath(), []byte(loginBunker), 0o600); err != nil {
				return err
			}
			npub, _ := nip19.EncodePublicKey(pub)
			s.FinalMSG = okMark() + " Connected to remote signer for " + color.YellowString(npub)
			return nil
		}

		var id *identity.Identity
		if loginGenerate {
			var err error
			id, err = identity.Generate()
			if err != nil {
				return err
			}
		} else {
			raw, err := promptSecret("Secret key (nsec or hex)")
			if err != nil {
				return err
			}
			defer common.WipeByteArray(raw)
			id, err = identity.FromSecretKey(string(raw))
			if err != nil {
				return err
			}
		}

		passphrase, err := promptSecret("Choose a passphrase")
		if err != nil {
			return err
		}
		defer common.WipeByteArray(passphrase)
		if len(passphrase) == 0 {
			return fmt.Errorf("passphrase must not be empty")
		}
		if err := eng.Keys().Set(ctx, defaultKeyName, id.SecretKey, passphrase); err != nil {
			return err
		}

		fmt.Println(okMark() + " Logged in as " + color.YellowString(id.Npub))
		if loginGenerate {
			fmt.Println(noteMark() + " Back up your secret key: " + id.Nsec)
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored identity from this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := eng.Keys().Delete(cmd.Context(), defaultKeyName); err != nil {
			return err
		}
		if err := os.Remove(bunkerURLPath()); err != nil && !os.IsNotExist(err) {
			return err
		}
		fmt.Println(okMark() + " Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the active identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureSigner(ctx); err != nil {
			return err
		}
		pub, err := eng.PublicKey(ctx)
		if err != nil {
			return err
		}
		npub, err := nip19.EncodePublicKey(pub)
		if err != nil {
			return err
		}
		fmt.Println(npub)
		fmt.Println(pub)
		return nil
	},
}
