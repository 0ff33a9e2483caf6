package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/clprog/internal/device"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func deviceID(s string) device.ID { return device.ID(s) }
