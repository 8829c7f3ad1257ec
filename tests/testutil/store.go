// Package testutil provides shared helpers for package tests.
package testutil

import (
	"testing"

	"github.com/motdiem/email-kanban/internal/store"
)

// NewTestStore opens an in-memory sqlite store with the schema
// migrated. The store is closed when the test finishes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing store: %v", err)
		}
	})

	return s
}
