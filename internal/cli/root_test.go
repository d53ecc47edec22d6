package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	expected := []string{"login", "logout", "whoami", "vault", "sync", "share", "mute", "prefs", "version"}
	have := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range expected {
		require.True(t, have[name], "missing command %q", name)
	}
}

func TestShareSubcommands(t *testing.T) {
	expected := []string{"send", "list", "sent", "import", "revoke"}
	have := map[string]bool{}
	for _, c := range shareCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range expected {
		require.True(t, have[name], "missing subcommand %q", name)
	}
}

func TestGlobalFlags(t *testing.T) {
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
	require.NotNil(t, muteAddCmd.Flags().Lookup("private"))
	require.NotNil(t, syncCmd.Flags().Lookup("vault"))
	require.NotNil(t, syncCmd.Flags().Lookup("dir"))
}
