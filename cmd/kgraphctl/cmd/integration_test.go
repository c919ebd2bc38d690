package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRoot executes the full root command tree with args, returning stdout.
func runRoot(t *testing.T, args ...string) string {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return buf.String()
}

func TestAddSearchStats_EndToEnd(t *testing.T) {
	db := filepath.Join(t.TempDir(), "db")

	addOut := runRoot(t, "add", "Fireball", "--type", "spell",
		"--description", "Fireball conjures a roaring burst of flame.",
		"--db-path", db)
	assert.Contains(t, addOut, "Fireball")

	statsOut := runRoot(t, "stats", "--db-path", db)
	assert.Contains(t, statsOut, "objects:   1")

	searchOut := runRoot(t, "search", "fireball", "--db-path", db)
	assert.Contains(t, searchOut, "Fireball")
}
