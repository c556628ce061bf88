package sqlite

import "testing"

// newTestDB opens an in-memory database with all migrations applied.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
