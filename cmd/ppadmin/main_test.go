package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)

	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		databaseURL = ""
	})

	err := rootCmd.Execute()

	return buf.String(), err
}

func TestRootCmd_ListsCommands(t *testing.T) {
	out, err := execute(t, "--help")

	require.NoError(t, err)
	assert.Contains(t, out, "backfill-embeddings")
	assert.Contains(t, out, "recompute-capabilities")
	assert.Contains(t, out, "seed-taxonomy")
}

func TestCommands_RequireDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	for _, name := range []string{"backfill-embeddings", "recompute-capabilities", "seed-taxonomy"} {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, name)

			require.ErrorIs(t, err, errDatabaseURLRequired)
		})
	}
}

func TestCommands_RejectArgs(t *testing.T) {
	_, err := execute(t, "seed-taxonomy", "extra")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
