package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/identity"
	"github.com/driftnotes/drift/internal/signer"
	"github.com/driftnotes/drift/internal/vault"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// startSpinner shows a progress spinner unless verbose logging is on. The
// returned cleanup stops it and prints s.FinalMSG, if set.
func startSpinner(message string) (*spinner.Spinner, func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	_ = s.Color("cyan")
	if !verbose {
		s.Start()
	}
	cleanup := func() {
		final := s.FinalMSG
		s.FinalMSG = ""
		if !verbose {
			s.Stop()
		}
		if final != "" {
			if !strings.HasSuffix(final, "\n") {
				final += "\n"
			}
			fmt.Print(final)
		}
	}
	return s, cleanup
}

// promptLine prints a prompt and reads one line from stdin.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt + "\n> ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads a line from the terminal without echo.
func promptSecret(prompt string) ([]byte, error) {
	fmt.Print(prompt + ": ")
	secret, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// ensureSigner attaches the saved identity to the engine: a stored bunker
// connection when one exists, otherwise the passphrase-protected local key.
func ensureSigner(ctx context.Context) error {
	if url, err := os.ReadFile(bunkerURLPath()); err == nil {
		sg, err := signer.NewBunkerSigner(strings.TrimSpace(string(url)), logger)
		if err != nil {
			return err
		}
		eng.SetSigner(sg)
		return nil
	}

	passphrase, err := promptSecret("Passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(passphrase)

	sk, err := eng.Keys().Get(ctx, defaultKeyName, passphrase)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("no identity found; run %s first", color.YellowString("drift login"))
		}
		return err
	}
	id, err := identity.FromSecretKey(sk)
	if err != nil {
		return err
	}
	sg, err := signer.NewLocalSigner(id.SecretKey)
	if err != nil {
		return err
	}
	eng.SetSigner(sg)
	return nil
}

// findVault resolves a vault by name, or returns the only vault when name is
// empty.
func findVault(ctx context.Context, name string) (*vault.Vault, error) {
	vaults, err := eng.FetchVaults(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		switch len(vaults) {
		case 0:
			return nil, fmt.Errorf("no vaults yet; run %s first", color.YellowString("drift vault create"))
		case 1:
			return vaults[0], nil
		default:
			return nil, errors.New("several vaults exist; pick one with --vault")
		}
	}
	for _, v := range vaults {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, fmt.Errorf("vault %q: %w", name, common.ErrNotFound)
}

func okMark() string   { return color.GreenString("✓") }
func failMark() string { return color.RedString("✗") }
func noteMark() string { return color.CyanString("→") }
