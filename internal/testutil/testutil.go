// Package testutil provides shared test helpers for setting up databases and
// a live API server.
package testutil

import (
	"net/http/httptest"
	"os"
	"testing"

	"github.com/starford/checktick/internal/api"
	"github.com/starford/checktick/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "checktick-test-*.db")
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

// TestServer starts the HTTP API over a fresh database. An empty token
// disables auth.
func TestServer(t *testing.T, token string) (*httptest.Server, *store.DB) {
	t.Helper()
	db := TestDB(t)
	router := api.NewRouter(db, token != "", token, nil, nil)
	srv := httptest.NewServer(api.NewRoot(db, router))
	t.Cleanup(srv.Close)
	return srv, db
}
