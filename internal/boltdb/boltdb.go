// Package boltdb opens the embedded database shared by the bolt-backed
// stores.
package boltdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DefaultTimeout bounds how long Open waits for the file lock held by
// another process.
const DefaultTimeout = 5 * time.Second

// Open opens or creates the database at path, creating its directory.
func Open(path string) (*bolt.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// Size returns the size in bytes of the database file.
func Size(db *bolt.DB) int64 {
	info, err := os.Stat(db.Path())
	if err != nil {
		return 0
	}
	return info.Size()
}
