// Package cache stores resolved event geometries keyed by the quantized
// (start, end, direction) triple. Entries are immutable: geometry for a
// coordinate pair does not change between corridor refreshes, so there is
// no TTL, and re-putting a key simply replaces the entry.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/go-spatial/geom/encoding/geojson"
	_ "github.com/mattn/go-sqlite3"

	"github.com/openroads/corridor/internal/lib/direction"
	"github.com/openroads/corridor/internal/lib/event"
	"github.com/openroads/corridor/internal/lib/geo"
)

// Key builds the cache key for an event. Coordinates are quantized to five
// decimal places (roughly a meter) so that jittered re-reports of the same
// event hit the same entry.
func Key(start, end geo.Point, dir direction.Direction) string {
	return fmt.Sprintf("%.5f,%.5f;%.5f,%.5f;%s",
		start.Latitude, start.Longitude, end.Latitude, end.Longitude, dir)
}

// Entry is a cached resolution outcome: the geometry plus the provenance it
// was resolved from.
type Entry struct {
	Geometry  geojson.Geometry `json:"geometry"`
	Source    event.Source     `json:"source"`
	CreatedAt time.Time        `json:"createdAt"`
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS geometry_cache (
	key        TEXT PRIMARY KEY,
	entry      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

// GeometryCache is a read-through memory map over an optional sqlite
// write-through. Safe for concurrent use.
type GeometryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	db      *sql.DB
}

// NewMemory returns a cache with no persistence.
func NewMemory() *GeometryCache {
	return &GeometryCache{entries: make(map[string]Entry)}
}

// Open returns a cache persisted at path, pre-loaded with every previously
// stored entry. Corrupt rows are skipped, not fatal.
func Open(ctx context.Context, path string) (*GeometryCache, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open geometry cache: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize geometry cache schema: %w", err)
	}

	c := &GeometryCache{entries: make(map[string]Entry), db: db}
	if err := c.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *GeometryCache) load(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx, `SELECT key, entry FROM geometry_cache`)
	if err != nil {
		return fmt.Errorf("failed to load geometry cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return fmt.Errorf("failed to scan geometry cache row: %w", err)
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			logging.Warnw(ctx, "Skipping corrupt geometry cache entry",
				"key", key, "error", err)
			continue
		}
		c.entries[key] = entry
	}
	return rows.Err()
}

// Get returns the entry for key if present.
func (c *GeometryCache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// Put stores an entry, replacing any prior value for the key, and writes it
// through to sqlite when persistence is configured.
func (c *GeometryCache) Put(ctx context.Context, key string, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	if c.db == nil {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode geometry cache entry: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO geometry_cache (key, entry, created_at)
		VALUES (?, ?, ?)`, key, string(raw), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to persist geometry cache entry: %w", err)
	}
	return nil
}

// Len returns the number of cached entries.
func (c *GeometryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close releases the sqlite handle if persistence is configured.
func (c *GeometryCache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
