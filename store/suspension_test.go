package store

import (
	"testing"

	"github.com/loom-run/loom/values"
)

func TestMemorySuspensionStoreSaveLoad(t *testing.T) {
	s := NewMemorySuspensionStore()
	handle, err := s.Save(&SuspendedExecution{
		ExecutionID:     "exec-1",
		StructuralHash:  "sha256:abc",
		ResumptionCount: 0,
		ProvidedInputs:  map[string]values.CValue{"x": values.Int(1)},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if handle == "" {
		t.Fatal("expected a non-empty handle")
	}

	got, err := s.Load(handle)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ExecutionID != "exec-1" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestMemorySuspensionStoreLoadUnknownHandle(t *testing.T) {
	s := NewMemorySuspensionStore()
	_, err := s.Load("missing")
	if _, ok := err.(*SuspensionNotFoundError); !ok {
		t.Fatalf("expected *SuspensionNotFoundError, got %v", err)
	}
}

func TestMemorySuspensionStoreDelete(t *testing.T) {
	s := NewMemorySuspensionStore()
	handle, _ := s.Save(&SuspendedExecution{ExecutionID: "exec-2"})

	ok, err := s.Delete(handle)
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	ok, err = s.Delete(handle)
	if err != nil || ok {
		t.Fatalf("expected the second delete to report false, got ok=%v err=%v", ok, err)
	}
}

func TestMemorySuspensionStoreListSortedByHandle(t *testing.T) {
	s := NewMemorySuspensionStore()
	h1, _ := s.Save(&SuspendedExecution{ExecutionID: "exec-a"})
	h2, _ := s.Save(&SuspendedExecution{ExecutionID: "exec-b"})

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	seen := map[string]bool{h1: false, h2: false}
	for _, item := range list {
		seen[item.Handle] = true
	}
	if !seen[h1] || !seen[h2] {
		t.Fatalf("expected both handles listed, got %+v", list)
	}
}
