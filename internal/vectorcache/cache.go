// Package vectorcache persists embedding vectors in SQLite, keyed by a
// content hash of the exact text that was embedded. It backs the in-memory
// embedding cache so restarts don't re-embed the whole collection.
package vectorcache

import (
	"database/sql"
	"embed"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Cache wraps a SQLite database holding one row per embedded text.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Cache, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "vectors.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return c, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// migrate applies embedded SQL migration files that haven't been run yet.
func (c *Cache) migrate() error {
	if _, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := c.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := c.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

// Get returns the cached vector for hash, or ok=false when absent.
func (c *Cache) Get(hash string) ([]float32, bool, error) {
	var blob []byte
	err := c.db.QueryRow("SELECT vector FROM embedding_cache WHERE hash = ?", hash).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying vector: %w", err)
	}
	vec, err := decodeFloat32s(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decoding vector for %s: %w", hash, err)
	}
	return vec, true, nil
}

// Put stores a vector under hash. Concurrent writers for the same hash
// converge last-write-wins via INSERT OR REPLACE.
func (c *Cache) Put(hash, model string, vec []float32) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO embedding_cache (hash, model, vector, created_at) VALUES (?, ?, ?, ?)`,
		hash, model, encodeFloat32s(vec), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storing vector: %w", err)
	}
	return nil
}

// Purge removes all vectors produced by a different model. Called on startup
// when the configured embedding model changes, since vectors from different
// models are not comparable.
func (c *Cache) Purge(keepModel string) (int64, error) {
	res, err := c.db.Exec("DELETE FROM embedding_cache WHERE model != ?", keepModel)
	if err != nil {
		return 0, fmt.Errorf("purging vectors: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of cached vectors.
func (c *Cache) Count() (int, error) {
	var n int
	err := c.db.QueryRow("SELECT COUNT(*) FROM embedding_cache").Scan(&n)
	return n, err
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
