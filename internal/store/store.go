// Package store is the storage engine: SQLite-backed item/file metadata, a
// content-addressed blob store for attachments, and the worker pools that
// keep blocking I/O off the HTTP goroutines.
package store

import (
	"database/sql"
	"fmt"
	"runtime"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the top-level handle every other package depends on. A single
// writer *sql.DB connection (SQLite allows only one writer at a time) is
// paired with a separate, larger reader pool so concurrent GETs are never
// blocked behind an in-flight ingestion write.
type Store struct {
	writer *sql.DB
	reader *sql.DB

	writePool *workPool
	readPool  *workPool

	blobs *BlobStore
}

// Options configures Open.
type Options struct {
	// DatabasePath is the sqlite file path. The writer and reader open it
	// separately, so it must name a file whose schema is already initialized.
	DatabasePath string
	// BlobDir is the root directory of the content-addressed blob store.
	BlobDir string
	// WriteWorkers bounds concurrent blocking write dispatch; SQLite only
	// supports one concurrent writer so this is normally 1.
	WriteWorkers int
	// ReadWorkers bounds concurrent blocking read dispatch.
	ReadWorkers int
}

// Open opens (creating if needed) the sqlite database and blob store
// described by opts, verifies the schema is at least ExpectedSchemaVersion,
// and starts the worker pools. Callers must call Close when done.
func Open(opts Options) (*Store, error) {
	writer, err := sql.Open("sqlite3", opts.DatabasePath+"?_journal_mode=WAL&_foreign_keys=off")
	if err != nil {
		return nil, fmt.Errorf("open writer db: %w", err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite3", opts.DatabasePath+"?_journal_mode=WAL&mode=ro")
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader db: %w", err)
	}
	readWorkers := opts.ReadWorkers
	if readWorkers <= 0 {
		readWorkers = runtime.GOMAXPROCS(0) * 2
	}
	reader.SetMaxOpenConns(readWorkers)

	if err := EnsureVersion(writer); err != nil {
		writer.Close()
		reader.Close()
		return nil, err
	}

	blobs, err := NewBlobStore(opts.BlobDir)
	if err != nil {
		writer.Close()
		reader.Close()
		return nil, err
	}

	writeWorkers := opts.WriteWorkers
	if writeWorkers <= 0 {
		writeWorkers = 1
	}

	return &Store{
		writer:    writer,
		reader:    reader,
		writePool: newWorkPool(writeWorkers, writeWorkers*8),
		readPool:  newWorkPool(readWorkers, readWorkers*8),
		blobs:     blobs,
	}, nil
}

// Close stops the worker pools and closes both database connections.
func (s *Store) Close() error {
	s.writePool.Close()
	s.readPool.Close()
	if err := s.writer.Close(); err != nil {
		return err
	}
	return s.reader.Close()
}

// DB returns the writer connection, bypassing the worker-pool dispatch path.
// cmd/diskuto's `db init` and `db upgrade` do not use it; they open their own
// connection before any Store exists.
func (s *Store) DB() *sql.DB { return s.writer }
