package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crystal-mush/mushkit/pkg/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes mushctl against dataDir and returns its output.
func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--datadir", dataDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func openTestAccounts(t *testing.T, dataDir string) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(filepath.Join(dataDir, "accounts.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRootHelp(t *testing.T) {
	cmd := NewRootCmd()
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())

	out := b.String()
	assert.Contains(t, out, "Usage:")
	for _, sub := range []string{"player", "tag", "config", "backup"} {
		assert.Contains(t, out, sub)
	}
}

func TestPlayerCreateAndList(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "player", "create", "Alice", "wonderland", "--email", "alice@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Created player Alice (id 1) with character #2")

	out, err = run(t, dir, "player", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "never")

	_, err = run(t, dir, "player", "create", "Alice", "again")
	assert.Error(t, err)
}

func TestPlayerPasswdAndSuper(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "player", "create", "Bob", "first")
	require.NoError(t, err)

	out, err := run(t, dir, "player", "passwd", "Bob", "second")
	require.NoError(t, err)
	assert.Contains(t, out, "Password changed for Bob")

	out, err = run(t, dir, "player", "super", "Bob")
	require.NoError(t, err)
	assert.Contains(t, out, "Superuser granted to Bob")

	accounts := openTestAccounts(t, dir)
	p, err := accounts.Authenticate(context.Background(), "Bob", "second")
	require.NoError(t, err)
	assert.True(t, p.Superuser)

	_, err = run(t, dir, "player", "super", "Bob", "--revoke")
	require.NoError(t, err)
	p, err = accounts.PlayerByName(context.Background(), "Bob")
	require.NoError(t, err)
	assert.False(t, p.Superuser)

	_, err = run(t, dir, "player", "passwd", "Nobody", "x")
	assert.ErrorContains(t, err, `no player named "Nobody"`)
}

func TestTags(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "player", "create", "Carol", "secret")
	require.NoError(t, err)

	out, err := run(t, dir, "tag", "add", "Carol", "builder", "--category", "role")
	require.NoError(t, err)
	assert.Contains(t, out, "Tagged Carol with role/builder")

	out, err = run(t, dir, "tag", "list", "Carol")
	require.NoError(t, err)
	assert.Contains(t, out, "builder")
	assert.Contains(t, out, "role")

	out, err = run(t, dir, "tag", "who", "builder", "--category", "role")
	require.NoError(t, err)
	assert.Contains(t, out, "Carol")

	_, err = run(t, dir, "tag", "remove", "Carol", "builder", "--category", "role")
	require.NoError(t, err)
	out, err = run(t, dir, "tag", "who", "builder", "--category", "role")
	require.NoError(t, err)
	assert.NotContains(t, out, "Carol")
}

func TestConfigValues(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "config", "set", "default_home", "#5")
	require.NoError(t, err)

	out, err := run(t, dir, "config", "get", "default_home")
	require.NoError(t, err)
	assert.Equal(t, "#5\n", out)

	out, err = run(t, dir, "config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "default_home")

	_, err = run(t, dir, "config", "unset", "default_home")
	require.NoError(t, err)
	_, err = run(t, dir, "config", "get", "default_home")
	assert.ErrorContains(t, err, "is not set")
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "player", "create", "Dave", "secret")
	require.NoError(t, err)

	backups := t.TempDir()
	out, err := run(t, dir, "backup", "--dir", backups)
	require.NoError(t, err)
	assert.Contains(t, out, "Backup written to")

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	snap := filepath.Join(backups, entries[0].Name())
	assert.FileExists(t, filepath.Join(snap, "game.bolt"))
	assert.FileExists(t, filepath.Join(snap, "accounts.db"))

	copied, err := sqlstore.Open(filepath.Join(snap, "accounts.db"), time.Second)
	require.NoError(t, err)
	defer copied.Close()
	_, err = copied.PlayerByName(context.Background(), "Dave")
	assert.NoError(t, err)
}
