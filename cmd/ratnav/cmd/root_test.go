package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootFlags(t *testing.T) {
	flags := rootCmd.Flags()

	for _, name := range []string{"config", "threshold", "mode", "source", "device", "dir", "preview", "no-audio", "log-level"} {
		require.NotNil(t, flags.Lookup(name), name)
	}

	require.Equal(t, "t", flags.Lookup("threshold").Shorthand)
}

func TestRootRejectsArgs(t *testing.T) {
	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"unexpected"})

	require.Error(t, rootCmd.Execute())
}
