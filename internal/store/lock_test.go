package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nadim/fieldsync/internal/models"
)

func TestOpenHoldsWriteLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldsync.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// A second process (simulated here) must not get write access.
	if _, err := Open(path); err == nil {
		t.Fatal("second Open succeeded while lock held")
	}

	if _, err := s.CreateEntity(context.Background(), taskEntity("lock-1")); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Lock released on close; reopening sees the persisted data.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	e, err := s2.EntityByClientID(context.Background(), models.KindTask, "lock-1")
	if err != nil {
		t.Fatalf("EntityByClientID: %v", err)
	}
	if e == nil {
		t.Fatal("entity lost across reopen")
	}
}
