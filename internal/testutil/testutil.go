// Package testutil provides shared test helpers for setting up image
// directories and note databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/rplanner/internal/storage"
	"github.com/starford/rplanner/internal/store"
)

// TestDB creates a temporary SQLite note database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "rplanner-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestImages creates a temporary image directory with a storage.Provider.
func TestImages(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	images, err := storage.NewFS(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	return dir, images
}
