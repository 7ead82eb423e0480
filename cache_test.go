package ddns_test

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/Travis-Britz/cpanel-ddns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCacheLoad(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	t.Run("MissingFile", func(t *testing.T) {
		c := ddns.NewFileCache(filepath.Join(dir, "missing.txt"))
		ip, err := c.Load(ctx)
		require.NoError(t, err)
		assert.False(t, ip.IsValid())
	})

	t.Run("TrimsWhitespace", func(t *testing.T) {
		path := filepath.Join(dir, "ip.txt")
		require.NoError(t, os.WriteFile(path, []byte("203.0.113.5\n"), 0644))
		ip, err := ddns.NewFileCache(path).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, netip.MustParseAddr("203.0.113.5"), ip)
	})

	t.Run("GarbageIsIgnored", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.txt")
		require.NoError(t, os.WriteFile(path, []byte("<html>"), 0644))
		ip, err := ddns.NewFileCache(path).Load(ctx)
		require.NoError(t, err)
		assert.False(t, ip.IsValid())
	})

	t.Run("LockFileUnavailable", func(t *testing.T) {
		// a directory in place of the lock file cannot be opened for locking
		path := filepath.Join(dir, "locked.txt")
		require.NoError(t, os.WriteFile(path, []byte("203.0.113.5"), 0644))
		require.NoError(t, os.Mkdir(path+".lock", 0755))

		ip, err := ddns.NewFileCache(path).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, netip.MustParseAddr("203.0.113.5"), ip)

		err = ddns.NewFileCache(path).Store(ctx, ip, netip.MustParseAddr("203.0.113.9"))
		assert.Error(t, err, "writes still require the lock")
	})

	t.Run("CanceledContext", func(t *testing.T) {
		path := filepath.Join(dir, "canceled.txt")
		require.NoError(t, os.Mkdir(path+".lock", 0755))
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := ddns.NewFileCache(path).Load(canceled)
		assert.Error(t, err)
	})

	t.Run("Unreadable", func(t *testing.T) {
		// a directory cannot be read as a file
		path := filepath.Join(dir, "adir")
		require.NoError(t, os.Mkdir(path, 0755))
		_, err := ddns.NewFileCache(path).Load(ctx)
		assert.Error(t, err)
	})
}

func TestFileCacheStore(t *testing.T) {
	ctx := context.Background()
	old := netip.MustParseAddr("203.0.113.5")
	next := netip.MustParseAddr("203.0.113.9")

	t.Run("CreatesFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ip.txt")
		c := ddns.NewFileCache(path)
		require.NoError(t, c.Store(ctx, netip.Addr{}, next))

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.9", string(b))
	})

	t.Run("ReplacesPrevious", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ip.txt")
		require.NoError(t, os.WriteFile(path, []byte("203.0.113.5"), 0644))
		c := ddns.NewFileCache(path)
		require.NoError(t, c.Store(ctx, old, next))

		ip, err := c.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, next, ip)
	})

	t.Run("RefusesConcurrentChange", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ip.txt")
		require.NoError(t, os.WriteFile(path, []byte("198.51.100.1"), 0644))
		c := ddns.NewFileCache(path)
		err := c.Store(ctx, old, next)
		require.Error(t, err)

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "198.51.100.1", string(b))
	})

	t.Run("AlreadyStored", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ip.txt")
		require.NoError(t, os.WriteFile(path, []byte("203.0.113.9"), 0644))
		assert.NoError(t, ddns.NewFileCache(path).Store(ctx, old, next))
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nope", "ip.txt")
		assert.Error(t, ddns.NewFileCache(path).Store(ctx, netip.Addr{}, next))
	})
}
