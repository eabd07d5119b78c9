package testutil

import (
	"sync"

	"github.com/kestrel-es/kestrel"
)

// RecordingUnitOfWork records every RegisterDirty call, duplicates included.
type RecordingUnitOfWork struct {
	mu    sync.Mutex
	calls []kestrel.EventSource
}

var _ kestrel.UnitOfWork = (*RecordingUnitOfWork)(nil)

// NewRecordingUnitOfWork creates an empty RecordingUnitOfWork.
func NewRecordingUnitOfWork() *RecordingUnitOfWork {
	return &RecordingUnitOfWork{}
}

// RegisterDirty records source.
func (u *RecordingUnitOfWork) RegisterDirty(source kestrel.EventSource) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, source)
}

// Calls returns every registered source in call order.
func (u *RecordingUnitOfWork) Calls() []kestrel.EventSource {
	u.mu.Lock()
	defer u.mu.Unlock()
	calls := make([]kestrel.EventSource, len(u.calls))
	copy(calls, u.calls)
	return calls
}

// CallCount returns the number of RegisterDirty calls.
func (u *RecordingUnitOfWork) CallCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

// Reset forgets all recorded calls.
func (u *RecordingUnitOfWork) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = nil
}
