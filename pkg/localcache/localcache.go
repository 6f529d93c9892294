// Package localcache is a client-side response cache for SDK consumers.
// Small payloads live in an in-memory map; payloads over the size
// threshold go to a SQLite-backed store so repeated large responses
// (charts, symbol lists) survive process restarts without bloating
// memory. Without a database the large class degrades to pass-through:
// reads miss and writes are dropped, but calls never fail.
package localcache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// SizeThreshold is the serialized-envelope size above which entries go to
// the durable store instead of memory.
const SizeThreshold = 50 * 1024

// envelope wraps a cached payload with the metadata needed to judge
// freshness on read.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // Unix ms
	TTLMillis int64           `json:"ttl"`
}

func (e envelope) expired(now time.Time) bool {
	return now.UnixMilli() > e.Timestamp+e.TTLMillis
}

// Cache routes entries between the in-memory and durable stores by
// serialized size. Safe for concurrent use.
type Cache struct {
	mu  sync.Mutex
	mem map[string]envelope
	db  *sql.DB // nil disables the large class
	now func() time.Time
}

// New creates a cache with a durable store at dbPath. An empty dbPath
// skips the durable store; see NewMemoryOnly.
func New(dbPath string) (*Cache, error) {
	if dbPath == "" {
		return NewMemoryOnly(), nil
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Cache{
		mem: make(map[string]envelope),
		db:  db,
		now: time.Now,
	}, nil
}

// NewMemoryOnly creates a cache without a durable store. Large entries
// are silently dropped.
func NewMemoryOnly() *Cache {
	return &Cache{
		mem: make(map[string]envelope),
		now: time.Now,
	}
}

// Close closes the durable store if one is attached.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Set caches a value under the key for ttl. The value is serialized once;
// the envelope's serialized size decides which store it lands in.
func (c *Cache) Set(key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	env := envelope{
		Data:      data,
		Timestamp: c.now().UnixMilli(),
		TTLMillis: ttl.Milliseconds(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope %s: %w", key, err)
	}

	if len(raw) <= SizeThreshold {
		c.mu.Lock()
		c.mem[key] = env
		c.mu.Unlock()
		// The key may have been large before; drop any stale durable copy.
		c.deleteDurable(key)
		return nil
	}

	if c.db == nil {
		return nil // degrade to pass-through
	}
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()

	_, err = c.db.Exec(`
		INSERT INTO entries (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, raw)
	if err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

// Get loads a cached value into out. It returns false on a miss or an
// expired entry; expired entries are evicted on read.
func (c *Cache) Get(key string, out any) (bool, error) {
	now := c.now()

	c.mu.Lock()
	env, ok := c.mem[key]
	if ok && env.expired(now) {
		delete(c.mem, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		env, ok = c.loadDurable(key)
		if ok && env.expired(now) {
			c.deleteDurable(key)
			ok = false
		}
	}
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Delete removes the key from both stores.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()
	c.deleteDurable(key)
}

// Clear removes every entry from both stores.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.mem = make(map[string]envelope)
	c.mu.Unlock()
	if c.db != nil {
		c.db.Exec(`DELETE FROM entries`)
	}
}

func (c *Cache) loadDurable(key string) (envelope, bool) {
	if c.db == nil {
		return envelope{}, false
	}
	var raw []byte
	if err := c.db.QueryRow(`SELECT value FROM entries WHERE key = ?`, key).Scan(&raw); err != nil {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, false
	}
	return env, true
}

func (c *Cache) deleteDurable(key string) {
	if c.db == nil {
		return
	}
	c.db.Exec(`DELETE FROM entries WHERE key = ?`, key)
}
