// Package lcache keeps planned message layouts on disk so repeated
// generation runs over an unchanged description skip the planner.
package lcache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"l4idl/internal/layout"
)

// Increment when the layout encoding changes.
const schemaVersion uint16 = 2

// Cache is a layout.Cache backed by one msgpack file per plan, with an
// in-memory front. Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
	mem map[layout.Key]*layout.Layout

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64
}

var _ layout.Cache = (*Cache)(nil)

type payload struct {
	Schema uint16         `msgpack:"schema"`
	Key    layout.Key     `msgpack:"key"`
	Layout *layout.Layout `msgpack:"layout"`
}

// Stats counts cache traffic since Open.
type Stats struct {
	Hits   int64
	Misses int64
	Writes int64
}

// Open uses dir, creating it when missing.
func Open(dir string) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("lcache: empty cache directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lcache: %w", err)
	}
	return &Cache{dir: dir, mem: make(map[layout.Key]*layout.Layout)}, nil
}

// OpenUser opens the cache under $XDG_CACHE_HOME/app, or ~/.cache/app.
func OpenUser(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("lcache: %w", err)
		}
		base = filepath.Join(home, ".cache")
	}
	return Open(filepath.Join(base, app))
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Stats returns the traffic counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Writes: c.writes.Load()}
}

func (c *Cache) pathFor(k layout.Key) (string, error) {
	raw, err := msgpack.Marshal(&k)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	name := hex.EncodeToString(sum[:])
	return filepath.Join(c.dir, "layouts", name[:2], name+".mp"), nil
}

// Get implements layout.Cache. Read errors count as misses.
func (c *Cache) Get(k layout.Key) (*layout.Layout, bool) {
	l, ok, err := c.Load(k)
	if err != nil {
		Logger().Warn("layout cache read failed", zap.String("operation", k.Operation), zap.Error(err))
		return nil, false
	}
	return l, ok
}

// Put implements layout.Cache. Write errors are logged and dropped.
func (c *Cache) Put(k layout.Key, l *layout.Layout) {
	if err := c.Store(k, l); err != nil {
		Logger().Warn("layout cache write failed", zap.String("operation", k.Operation), zap.Error(err))
	}
}

// Load looks k up in memory, then on disk.
func (c *Cache) Load(k layout.Key) (*layout.Layout, bool, error) {
	c.mu.RLock()
	l, ok := c.mem[k]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return l, true, nil
	}

	p, err := c.pathFor(k)
	if err != nil {
		return nil, false, err
	}
	f, err := os.Open(p)
	if err != nil {
		c.misses.Add(1)
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var pl payload
	if err := msgpack.NewDecoder(f).Decode(&pl); err != nil {
		c.misses.Add(1)
		return nil, false, fmt.Errorf("decode %s: %w", p, err)
	}
	if pl.Schema != schemaVersion || pl.Key != k || pl.Layout == nil {
		c.misses.Add(1)
		Logger().Debug("stale layout cache entry", zap.String("path", p), zap.Uint16("schema", pl.Schema))
		return nil, false, nil
	}

	c.mu.Lock()
	c.mem[k] = pl.Layout
	c.mu.Unlock()
	c.hits.Add(1)
	return pl.Layout, true, nil
}

// Store writes l for k. The file is replaced atomically.
func (c *Cache) Store(k layout.Key, l *layout.Layout) error {
	if l == nil {
		return errors.New("lcache: nil layout")
	}
	p, err := c.pathFor(k)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[k] = l

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			Logger().Warn("failed to remove temp file", zap.String("path", f.Name()), zap.Error(rmErr))
		}
	}()

	if err := msgpack.NewEncoder(f).Encode(&payload{Schema: schemaVersion, Key: k, Layout: l}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), p); err != nil {
		return err
	}
	committed = true
	c.writes.Add(1)
	Logger().Debug("layout cached", zap.String("interface", k.Interface), zap.String("operation", k.Operation), zap.String("path", p))
	return nil
}

// DropAll removes every cached layout.
func (c *Cache) DropAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mem = make(map[layout.Key]*layout.Layout)
	dir := filepath.Join(c.dir, "layouts")
	old := dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(old)
}
