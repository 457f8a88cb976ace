// Package cache is the content-addressed Document cache. Entries are keyed by
// path, content hash, and parser configuration hash, persisted in the index
// database, and fronted by an in-memory LRU of decoded Documents.
package cache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jward/arbor/internal/ast"
	arborerrors "github.com/jward/arbor/internal/errors"
	"github.com/jward/arbor/internal/store"
)

// Defaults for New.
const (
	DefaultMaxEntries    = 10000
	DefaultMemoryEntries = 256
)

// Key identifies one cached Document.
type Key struct {
	Path        string
	ContentHash string
	ConfigHash  string
}

// KeyFor returns the key under which doc is stored.
func KeyFor(doc *ast.Document) Key {
	return Key{Path: doc.Path, ContentHash: doc.ContentHash, ConfigHash: doc.ConfigHash}
}

// Stats summarizes the persisted entries.
type Stats = store.CacheStats

type scopeKind int

const (
	scopeAll scopeKind = iota
	scopePath
	scopeSuperseded
)

// Scope selects the entries removed by Clear.
type Scope struct {
	kind scopeKind
	path string
}

// ScopeAll clears every entry.
func ScopeAll() Scope { return Scope{kind: scopeAll} }

// ScopePath clears the entries of a file, or of every file below a directory
// when p ends with "/".
func ScopePath(p string) Scope { return Scope{kind: scopePath, path: p} }

// ScopeSuperseded clears every entry that is not the newest for its path.
func ScopeSuperseded() Scope { return Scope{kind: scopeSuperseded} }

func (s Scope) String() string {
	switch s.kind {
	case scopePath:
		return "path:" + s.path
	case scopeSuperseded:
		return "superseded"
	}
	return "all"
}

// Cache stores encoded Documents. It is safe for concurrent use; its only
// shared state is the database handle and the LRU, which locks internally.
// Documents returned by Get are shared and must not be modified.
type Cache struct {
	store      *store.Store
	mem        *lru.Cache[Key, *ast.Document]
	maxEntries int
	memEntries int
	log        *slog.Logger
	now        func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the number of persisted entries. Zero disables
// eviction.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// WithMemoryEntries sizes the in-memory Document LRU.
func WithMemoryEntries(n int) Option {
	return func(c *Cache) { c.memEntries = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// New returns a cache persisting into s.
func New(s *store.Store, opts ...Option) (*Cache, error) {
	c := &Cache{
		store:      s,
		maxEntries: DefaultMaxEntries,
		memEntries: DefaultMemoryEntries,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.memEntries <= 0 {
		c.memEntries = 1
	}
	mem, err := lru.New[Key, *ast.Document](c.memEntries)
	if err != nil {
		return nil, arborerrors.NewCacheError("new", "", err)
	}
	c.mem = mem
	return c, nil
}

// Get returns the Document stored under key. Read failures and corrupt
// entries are logged and reported as a miss; a corrupt entry is deleted.
func (c *Cache) Get(ctx context.Context, key Key) (*ast.Document, bool) {
	if doc, ok := c.mem.Get(key); ok {
		c.touch(ctx, key)
		return doc, true
	}

	e, err := c.store.CacheEntry(ctx, key.Path, key.ContentHash, key.ConfigHash)
	if err != nil {
		c.log.Warn("cache read failed", "path", key.Path, "error", err)
		return nil, false
	}
	if e == nil {
		return nil, false
	}

	doc, err := ast.Decode(e.Data)
	if err == nil && KeyFor(doc) != key {
		err = arborerrors.Validationf("key", key.Path, "entry holds %s@%s", doc.Path, doc.ContentHash)
	}
	if err != nil {
		c.log.Warn("discarding corrupt cache entry", "path", key.Path, "content_hash", key.ContentHash, "error", err)
		if derr := c.store.DeleteCacheEntry(ctx, key.Path, key.ContentHash, key.ConfigHash); derr != nil {
			c.log.Warn("delete corrupt cache entry failed", "path", key.Path, "error", derr)
		}
		return nil, false
	}

	c.touch(ctx, key)
	c.mem.Add(key, doc)
	return doc, true
}

// Has reports whether an entry exists for key without decoding it or
// refreshing its recency.
func (c *Cache) Has(ctx context.Context, key Key) (bool, error) {
	if c.mem.Contains(key) {
		return true, nil
	}
	e, err := c.store.CacheEntry(ctx, key.Path, key.ContentHash, key.ConfigHash)
	if err != nil {
		return false, arborerrors.NewCacheError("lookup", key.Path, err)
	}
	return e != nil, nil
}

func (c *Cache) touch(ctx context.Context, key Key) {
	if err := c.store.TouchCacheEntry(ctx, key.Path, key.ContentHash, key.ConfigHash, c.now().UnixNano()); err != nil {
		c.log.Debug("cache touch failed", "path", key.Path, "error", err)
	}
}

// Put stores doc under key, which must match the Document's own path and
// hashes. An existing entry for the key is kept unchanged.
func (c *Cache) Put(ctx context.Context, key Key, doc *ast.Document) error {
	if doc == nil {
		return arborerrors.Validationf("document", key.Path, "nil document")
	}
	if KeyFor(doc) != key {
		return arborerrors.Validationf("key", key.Path, "document %s@%s does not match key", doc.Path, doc.ContentHash)
	}
	data, err := ast.Encode(doc)
	if err != nil {
		return arborerrors.NewCacheError("encode", key.Path, err)
	}
	now := c.now().UnixNano()
	if _, err := c.store.PutCacheEntry(ctx, &store.CacheEntry{
		Path:        key.Path,
		ContentHash: key.ContentHash,
		ConfigHash:  key.ConfigHash,
		Data:        data,
		CreatedAt:   now,
		LastUsed:    now,
	}); err != nil {
		return arborerrors.NewCacheError("put", key.Path, err)
	}
	c.mem.Add(key, doc)

	if c.maxEntries > 0 {
		n, err := c.store.EvictCacheEntries(ctx, c.maxEntries)
		if err != nil {
			return arborerrors.NewCacheError("evict", key.Path, err)
		}
		if n > 0 {
			c.log.Debug("evicted cache entries", "count", n)
			c.purgeEvicted(ctx)
		}
	}
	return nil
}

// purgeEvicted drops memory entries whose persisted row is gone.
func (c *Cache) purgeEvicted(ctx context.Context) {
	for _, k := range c.mem.Keys() {
		e, err := c.store.CacheEntry(ctx, k.Path, k.ContentHash, k.ConfigHash)
		if err == nil && e == nil {
			c.mem.Remove(k)
		}
	}
}

// Clear removes the entries selected by scope and returns how many persisted
// entries were deleted.
func (c *Cache) Clear(ctx context.Context, scope Scope) (int, error) {
	var n int
	var err error
	switch scope.kind {
	case scopePath:
		if scope.path == "" {
			return 0, arborerrors.Validationf("scope", scope.path, "path scope needs a path")
		}
		n, err = c.store.ClearCachePath(ctx, scope.path)
		for _, k := range c.mem.Keys() {
			if matchesPath(k.Path, scope.path) {
				c.mem.Remove(k)
			}
		}
	case scopeSuperseded:
		n, err = c.store.ClearCacheSuperseded(ctx)
		c.purgeEvicted(ctx)
	default:
		n, err = c.store.ClearCacheAll(ctx)
		c.mem.Purge()
	}
	if err != nil {
		return 0, arborerrors.NewCacheError("clear", scope.String(), err)
	}
	c.log.Info("cleared cache", "scope", scope.String(), "entries", n)
	return n, nil
}

func matchesPath(path, prefix string) bool {
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Stats reports the persisted entry count and size.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	st, err := c.store.CacheStats(ctx)
	if err != nil {
		return Stats{}, arborerrors.NewCacheError("stats", "", err)
	}
	return st, nil
}
