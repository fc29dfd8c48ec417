// Package store adapts the mbtiles tile database into a general-purpose
// named blob cache: every stage that produces an expensive intermediate
// artifact (a composite image, a correction field, a coherent index
// tile) writes it here keyed by an opaque name, and a phase boundary can
// purge everything written so far without closing the database.
package store

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"sync"

	_ "modernc.org/sqlite"
)

// DefaultBatchSize is the number of blobs buffered before an automatic flush.
const DefaultBatchSize = 100

type entry struct {
	key  string
	data []byte
}

// BlobStore is a gzip-compressed key/blob table over a single SQLite
// file, batched the same way the tile writer batches rows.
type BlobStore struct {
	db        *sql.DB
	batch     []entry
	batchSize int
	mu        sync.Mutex
}

// Open creates or reopens a blob store at path.
func Open(path string) (*BlobStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 50000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS blobs (
			key  TEXT PRIMARY KEY,
			data BLOB NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &BlobStore{db: db, batchSize: DefaultBatchSize}, nil
}

// Put buffers a blob under key; it is visible to Get only after a Flush.
func (s *BlobStore) Put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch = append(s.batch, entry{key: key, data: data})
	if len(s.batch) >= s.batchSize {
		return s.flushLocked()
	}
	return nil
}

// Flush writes any buffered blobs to the database.
func (s *BlobStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *BlobStore) flushLocked() error {
	if len(s.batch) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO blobs (key, data) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range s.batch {
		compressed, err := gzipCompress(e.data)
		if err != nil {
			return fmt.Errorf("compress blob %q: %w", e.key, err)
		}
		if _, err := stmt.Exec(e.key, compressed); err != nil {
			return fmt.Errorf("insert blob %q: %w", e.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.batch = s.batch[:0]
	return nil
}

// Get reads and decompresses a stored blob. It flushes pending writes
// first so a Put immediately followed by a Get is consistent.
func (s *BlobStore) Get(key string) ([]byte, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}

	var compressed []byte
	err := s.db.QueryRow("SELECT data FROM blobs WHERE key = ?", key).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("blob not found: %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("query blob %q: %w", key, err)
	}
	return gzipDecompress(compressed)
}

// Purge deletes every blob in the store. Called at phase boundaries so
// intermediate artifacts from one stage don't leak into the next.
func (s *BlobStore) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = s.batch[:0]
	if _, err := s.db.Exec("DELETE FROM blobs"); err != nil {
		return fmt.Errorf("purge blobs: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the database.
func (s *BlobStore) Close() error {
	if err := s.Flush(); err != nil {
		s.db.Close()
		return err
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close blob store: %w", err)
	}
	return nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
