package boltdb

import (
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
)

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "quotegen.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte("probe"))
		return err
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if Size(db) == 0 {
		t.Error("Size() = 0 for an open database")
	}
}
