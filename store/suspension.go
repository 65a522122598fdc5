package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loom-run/loom/values"
)

// SuspendedExecution is the snapshot persisted when a run can make no
// further progress but a suspension store is configured: the computed
// value map, the provided inputs, the pipeline's structural hash, and a
// monotonically increasing resumption count. Module statuses, the DAG
// and call options are not stored; resume takes the DAG from its caller.
type SuspendedExecution struct {
	Handle          string
	ExecutionID     string
	StructuralHash  string
	ResumptionCount int
	ComputedValues  map[uuid.UUID]values.CValue
	ProvidedInputs  map[string]values.CValue
	SuspendedAt     time.Time
}

// SuspensionNotFoundError is returned by Load/Delete for an unknown handle.
type SuspensionNotFoundError struct {
	Handle string
}

func (e *SuspensionNotFoundError) Error() string {
	return fmt.Sprintf("suspension handle %q not found", e.Handle)
}

// SuspensionSummary is the listing projection returned by List.
type SuspensionSummary struct {
	Handle          string
	ExecutionID     string
	ResumptionCount int
	SuspendedAt     time.Time
}

// SuspensionStore is the out-of-core contract spec.md §6 describes:
// save/load/delete/list, with an in-memory default implementation
// since persistent durability is explicitly out of scope.
type SuspensionStore interface {
	Save(s *SuspendedExecution) (string, error)
	Load(handle string) (*SuspendedExecution, error)
	Delete(handle string) (bool, error)
	List() []SuspensionSummary
}

// MemorySuspensionStore is the default in-memory SuspensionStore,
// grounded on the same mutex-guarded-map shape as Store above.
type MemorySuspensionStore struct {
	mu      sync.Mutex
	entries map[string]*SuspendedExecution
}

// NewMemorySuspensionStore constructs an empty MemorySuspensionStore.
func NewMemorySuspensionStore() *MemorySuspensionStore {
	return &MemorySuspensionStore{entries: make(map[string]*SuspendedExecution)}
}

// Save assigns s a fresh handle, stores it, and returns the handle.
func (m *MemorySuspensionStore) Save(s *SuspendedExecution) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle := uuid.New().String()
	s.Handle = handle
	m.entries[handle] = s
	return handle, nil
}

// Load returns the suspension stored at handle.
func (m *MemorySuspensionStore) Load(handle string) (*SuspendedExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.entries[handle]
	if !ok {
		return nil, &SuspensionNotFoundError{Handle: handle}
	}
	return s, nil
}

// Delete removes the suspension at handle, reporting whether it existed.
func (m *MemorySuspensionStore) Delete(handle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[handle]; !ok {
		return false, nil
	}
	delete(m.entries, handle)
	return true, nil
}

// List returns every stored suspension's summary, sorted by handle.
func (m *MemorySuspensionStore) List() []SuspensionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SuspensionSummary, 0, len(m.entries))
	for handle, s := range m.entries {
		out = append(out, SuspensionSummary{
			Handle: handle, ExecutionID: s.ExecutionID,
			ResumptionCount: s.ResumptionCount, SuspendedAt: s.SuspendedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

var (
	// ErrNoSuspensionStore is returned when a run needs to suspend but
	// none was configured.
	ErrNoSuspensionStore = fmt.Errorf("no suspension store configured")
)
