package ddns

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
)

const lockRetryDelay = 50 * time.Millisecond

// FileCache is a Cache that keeps the last applied IP in a flat text file.
//
// The file holds exactly the address and nothing else.
// A sibling "<path>.lock" file serializes access between processes.
type FileCache struct {
	Path   string
	logger *slog.Logger
}

// NewFileCache returns a cache stored at path.
func NewFileCache(path string) *FileCache {
	return &FileCache{Path: path, logger: discard}
}

// SetLogger implements the logger propagation used by ddns.New.
func (fc *FileCache) SetLogger(logger *slog.Logger) {
	fc.logger = logger
}

// Load implements ddns.Cache.
//
// A missing file or one that does not contain an IP address yields the zero Addr and no error.
//
// If the lock file cannot be created, for example because the directory is not writable,
// the file is read without a lock. Store only ever replaces it by rename, so a read is never torn.
func (fc *FileCache) Load(ctx context.Context) (netip.Addr, error) {
	l := flock.New(fc.Path + ".lock")
	if err := acquire(ctx, l.TryRLockContext); err != nil {
		if ctx.Err() != nil {
			return netip.Addr{}, fmt.Errorf("error locking %s: %w", fc.Path, err)
		}
		fc.logger.Debug("reading IP cache without a lock", "path", fc.Path, "error", err)
		return fc.read()
	}
	defer l.Unlock()
	return fc.read()
}

// Store implements ddns.Cache.
//
// The file is replaced atomically, and only if it still holds prev.
// Rewriting a file that already holds next is a no-op.
func (fc *FileCache) Store(ctx context.Context, prev, next netip.Addr) error {
	l := flock.New(fc.Path + ".lock")
	if err := acquire(ctx, l.TryLockContext); err != nil {
		return fmt.Errorf("error locking %s: %w", fc.Path, err)
	}
	defer l.Unlock()

	cur, err := fc.read()
	if err != nil {
		return err
	}
	if cur == next {
		return nil
	}
	if cur != prev {
		return fmt.Errorf("%s changed from %q to %q during this run; refusing to overwrite it", fc.Path, addrString(prev), addrString(cur))
	}
	if err := renameio.WriteFile(fc.Path, []byte(next.String()), 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", fc.Path, err)
	}
	return nil
}

func (fc *FileCache) read() (netip.Addr, error) {
	b, err := os.ReadFile(fc.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return netip.Addr{}, nil
	}
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error reading %s: %w", fc.Path, err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return netip.Addr{}, nil
	}
	ip, err := netip.ParseAddr(s)
	if err != nil {
		fc.logger.Warn("ignoring unparseable cached IP", "path", fc.Path, "error", err)
		return netip.Addr{}, nil
	}
	return ip.Unmap(), nil
}

func acquire(ctx context.Context, try func(context.Context, time.Duration) (bool, error)) error {
	ok, err := try(ctx, lockRetryDelay)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("lock not acquired")
	}
	return nil
}

func addrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}
