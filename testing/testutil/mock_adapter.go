package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/kestrel-es/kestrel/adapters"
)

// MockAdapter is an adapters.EventStoreAdapter whose failures can be injected.
// Appended batches are recorded; versions continue from the expected version.
type MockAdapter struct {
	AppendErr          error
	LoadErr            error
	GetStreamInfoErr   error
	GetLastPositionErr error
	Events             []adapters.StoredEvent

	mu       sync.Mutex
	appended [][]adapters.EventRecord
}

// Append implements adapters.EventStoreAdapter.
func (m *MockAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if m.AppendErr != nil {
		return nil, m.AppendErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended = append(m.appended, events)

	base := expectedVersion
	if base < 0 {
		base = 0
	}

	stored := make([]adapters.StoredEvent, len(events))
	for i, e := range events {
		stored[i] = adapters.StoredEvent{
			ID:             e.ID,
			StreamID:       streamID,
			Type:           e.Type,
			Data:           e.Data,
			Metadata:       e.Metadata,
			Version:        base + int64(i+1),
			GlobalPosition: uint64(len(m.Events) + i + 1),
			Timestamp:      e.Timestamp,
		}
		if stored[i].Timestamp.IsZero() {
			stored[i].Timestamp = time.Now()
		}
	}
	m.Events = append(m.Events, stored...)
	return stored, nil
}

// Appended returns the batches passed to Append, oldest first.
func (m *MockAdapter) Appended() [][]adapters.EventRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]adapters.EventRecord, len(m.appended))
	copy(out, m.appended)
	return out
}

// Load implements adapters.EventStoreAdapter.
func (m *MockAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]adapters.StoredEvent, 0)
	for _, e := range m.Events {
		if e.StreamID == streamID && e.Version > fromVersion {
			events = append(events, e)
		}
	}
	return events, nil
}

// GetStreamInfo implements adapters.EventStoreAdapter.
func (m *MockAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if m.GetStreamInfoErr != nil {
		return nil, m.GetStreamInfoErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, e := range m.Events {
		if e.StreamID == streamID {
			count++
		}
	}
	if count == 0 {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	return &adapters.StreamInfo{
		StreamID:   streamID,
		Category:   adapters.ExtractCategory(streamID),
		Version:    count,
		EventCount: count,
	}, nil
}

// GetLastPosition implements adapters.EventStoreAdapter.
func (m *MockAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if m.GetLastPositionErr != nil {
		return 0, m.GetLastPositionErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Events) == 0 {
		return 0, nil
	}
	return m.Events[len(m.Events)-1].GlobalPosition, nil
}

// Initialize implements adapters.EventStoreAdapter.
func (m *MockAdapter) Initialize(ctx context.Context) error {
	return nil
}

// Close implements adapters.EventStoreAdapter.
func (m *MockAdapter) Close() error {
	return nil
}

// Ensure MockAdapter implements adapters.EventStoreAdapter.
var _ adapters.EventStoreAdapter = (*MockAdapter)(nil)
