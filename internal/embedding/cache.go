package embedding

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"sync"

	_ "modernc.org/sqlite"
)

// Cache is a content-addressed store of embedding vectors keyed by the
// SHA-256 digest of the exact search text. There is no eviction; Clear
// is the only way to shrink it.
type Cache struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{vectors: make(map[string][]float32)}
}

// CacheKey returns the hex-encoded SHA-256 digest of text.
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for text, or nil when absent.
func (c *Cache) Get(text string) []float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vectors[CacheKey(text)]
}

// Put stores a vector for text. Values are deterministic for the same
// text, so concurrent last-write-wins is harmless.
func (c *Cache) Put(text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[CacheKey(text)] = vector
}

// Clear discards all cached vectors.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors = make(map[string][]float32)
}

// Size returns the number of cached vectors.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

// SaveTo writes the cache contents to a SQLite file at path, replacing
// any previous artifact.
func (c *Cache) SaveTo(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset cache artifact: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open cache artifact: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS embeddings (
		key TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL,
		vector BLOB NOT NULL
	);`); err != nil {
		return fmt.Errorf("init cache artifact: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO embeddings (key, dimension, vector) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare cache insert: %w", err)
	}
	defer stmt.Close()

	c.mu.RLock()
	defer c.mu.RUnlock()
	for key, vec := range c.vectors {
		if _, err := stmt.Exec(key, len(vec), vectorToBlob(vec)); err != nil {
			return fmt.Errorf("insert cache entry: %w", err)
		}
	}
	return tx.Commit()
}

// LoadFrom replaces the cache contents with the artifact at path. A
// missing artifact is not an error: the cache is simply left empty.
func (c *Cache) LoadFrom(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		c.Clear()
		return nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open cache artifact: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT key, dimension, vector FROM embeddings`)
	if err != nil {
		return fmt.Errorf("read cache artifact: %w", err)
	}
	defer rows.Close()

	loaded := make(map[string][]float32)
	for rows.Next() {
		var key string
		var dim int
		var blob []byte
		if err := rows.Scan(&key, &dim, &blob); err != nil {
			return fmt.Errorf("scan cache entry: %w", err)
		}
		vec, err := blobToVector(blob)
		if err != nil || len(vec) != dim {
			continue // skip malformed entries
		}
		loaded[key] = vec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate cache entries: %w", err)
	}

	c.mu.Lock()
	c.vectors = loaded
	c.mu.Unlock()
	return nil
}

func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:i*4+4], math.Float32bits(v))
	}
	return blob
}

func blobToVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob size %d is not a multiple of 4", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vector, nil
}
