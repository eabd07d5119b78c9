// Package adapters provides interfaces for event store backends.
package adapters

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for adapter implementations.
// Adapters should return these (or errors that match via errors.Is)
// to enable consistent error handling across different backends.
var (
	// ErrConcurrencyConflict is returned when optimistic concurrency check fails.
	ErrConcurrencyConflict = errors.New("kestrel: concurrency conflict")

	// ErrStreamNotFound is returned when a stream does not exist.
	ErrStreamNotFound = errors.New("kestrel: stream not found")

	// ErrEmptyStreamID is returned when an empty stream ID is provided.
	ErrEmptyStreamID = errors.New("kestrel: stream ID is required")

	// ErrNoEvents is returned when attempting to append zero events.
	ErrNoEvents = errors.New("kestrel: no events to append")

	// ErrInvalidVersion is returned when an invalid version is specified.
	ErrInvalidVersion = errors.New("kestrel: invalid version")

	// ErrAdapterClosed is returned when operations are attempted on a closed adapter.
	ErrAdapterClosed = errors.New("kestrel: adapter is closed")

	// ErrNilAggregate indicates a nil aggregate was passed.
	ErrNilAggregate = errors.New("kestrel: nil aggregate")

	// ErrNotSupported is returned by wrappers when the wrapped adapter lacks an optional capability.
	ErrNotSupported = errors.New("kestrel: operation not supported by adapter")
)

// Metadata contains event context for tracing and multi-tenancy.
type Metadata struct {
	// CorrelationID links related events across services.
	CorrelationID string `json:"correlationId,omitempty" msgpack:"correlationId,omitempty"`

	// CausationID identifies the event that caused this event.
	CausationID string `json:"causationId,omitempty" msgpack:"causationId,omitempty"`

	// UserID identifies who triggered this event.
	UserID string `json:"userId,omitempty" msgpack:"userId,omitempty"`

	// TenantID for multi-tenant applications.
	TenantID string `json:"tenantId,omitempty" msgpack:"tenantId,omitempty"`

	// Custom holds any additional metadata.
	Custom map[string]string `json:"custom,omitempty" msgpack:"custom,omitempty"`
}

// StoredEvent represents a persisted event with its storage metadata.
// This is returned when loading events from the store.
type StoredEvent struct {
	// ID is the unique event identifier.
	ID string

	// StreamID is the stream this event belongs to.
	StreamID string

	// Type is the event type identifier.
	Type string

	// Data is the serialized event payload.
	Data []byte

	// Metadata contains contextual information.
	Metadata Metadata

	// Version is the position within the stream (1-based).
	Version int64

	// GlobalPosition is the global ordering position across all streams.
	GlobalPosition uint64

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// StreamInfo contains metadata about an event stream.
type StreamInfo struct {
	// StreamID is the stream identifier.
	StreamID string

	// Category is the aggregate type (first part of stream ID).
	Category string

	// Version is the current stream version.
	Version int64

	// EventCount is the number of events in the stream.
	EventCount int64

	// CreatedAt is when the first event was stored.
	CreatedAt time.Time

	// UpdatedAt is when the last event was stored.
	UpdatedAt time.Time
}

// EventRecord represents an event to be appended to a stream.
type EventRecord struct {
	// ID is the event identifier. Adapters generate one when empty.
	ID string

	// Type is the event type identifier.
	Type string

	// Data is the serialized event payload.
	Data []byte

	// Metadata contains optional contextual information.
	Metadata Metadata

	// Timestamp is when the event occurred. Adapters use the append time when zero.
	Timestamp time.Time
}

// EventStoreAdapter is the interface that database adapters must implement.
// It provides the low-level operations for persisting and retrieving events.
type EventStoreAdapter interface {
	// Append stores events to the specified stream with optimistic concurrency control.
	// expectedVersion specifies the expected current version of the stream:
	//   - AnyVersion (-1): Skip version check
	//   - NoStream (0): Stream must not exist
	//   - StreamExists (-2): Stream must exist
	//   - Any positive number: Stream must be at this exact version
	// Returns the stored events with their assigned positions, or an error.
	Append(ctx context.Context, streamID string, events []EventRecord, expectedVersion int64) ([]StoredEvent, error)

	// Load retrieves all events from a stream starting after the specified version.
	// Use fromVersion=0 to load all events.
	Load(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error)

	// GetStreamInfo returns metadata about a stream.
	// Returns ErrStreamNotFound if the stream does not exist.
	GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error)

	// GetLastPosition returns the global position of the last stored event.
	// Returns 0 if no events exist.
	GetLastPosition(ctx context.Context) (uint64, error)

	// Initialize sets up the required database schema.
	Initialize(ctx context.Context) error

	// Close releases any resources held by the adapter.
	Close() error
}

// HealthChecker provides health check capability.
type HealthChecker interface {
	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error
}

// Migrator reports and applies schema migrations.
type Migrator interface {
	// Migrate runs all pending migrations.
	Migrate(ctx context.Context) error

	// MigrationVersion returns the current schema version.
	MigrationVersion(ctx context.Context) (int, error)
}

// StreamSummary is a compact description of a stream for listings.
type StreamSummary struct {
	// StreamID is the stream identifier.
	StreamID string

	// Category is the aggregate type.
	Category string

	// Version is the current stream version.
	Version int64

	// LastEventType is the type of the most recent event.
	LastEventType string

	// UpdatedAt is when the last event was stored.
	UpdatedAt time.Time
}

// StreamQueryAdapter lists streams for tooling such as the CLI.
type StreamQueryAdapter interface {
	// ListStreams returns streams whose ID starts with prefix, most recently updated first.
	ListStreams(ctx context.Context, prefix string, limit int) ([]StreamSummary, error)
}
