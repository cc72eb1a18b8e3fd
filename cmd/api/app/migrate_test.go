package app

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	cases := map[string]bool{
		"y\n":   true,
		"YES\n": true,
		"n\n":   false,
		"\n":    false,
		"":      false,
	}
	for input, want := range cases {
		cmd := newMigrateCmd()
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetIn(strings.NewReader(input))
		require.Equal(t, want, confirm(cmd, "Continue?"), "input %q", input)
		require.Contains(t, out.String(), "Continue? [y/N]")
	}
}

func TestServeRejectsUnknownStore(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"serve", "--store", "sqlite"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	require.ErrorContains(t, err, "invalid configuration")
}

func TestMigrateDownDeclinedDoesNothing(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"migrate", "down"})
	root.SetIn(strings.NewReader("n\n"))
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "WARNING")
}
