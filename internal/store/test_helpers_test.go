package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/oakvm/internal/ir"
)

// createTestStore opens a store in a temporary directory.
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

func createTestClassEvent(seq int64, id uint64, name, kind string) ir.ClassEvent {
	return ir.ClassEvent{
		Seq:      seq,
		KlassID:  id,
		Name:     name,
		Kind:     kind,
		Loader:   "app",
		LoaderID: "0191d0f2-0000-7000-8000-000000000001",
		Super:    "java/lang/Object",
		Layout:   -2147221488,
	}
}

func createTestAttachRecord(id string, seq int64, command string, args ...string) ir.AttachRecord {
	return ir.AttachRecord{
		ID:             id,
		Seq:            seq,
		Command:        command,
		Args:           args,
		Pipe:           `\\.\pipe\javatool1`,
		Code:           0,
		OutputBytes:    12,
		DurationMicros: 150,
	}
}
