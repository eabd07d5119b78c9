package kestrel

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/kestrel-es/kestrel/adapters"
)

// EventStore persists aggregates' uncommitted events and rebuilds aggregates
// from their stored history.
type EventStore struct {
	adapter    adapters.EventStoreAdapter
	serializer Serializer
	logger     Logger
	publishers []EventPublisher
}

// Logger defines the logging interface for the event store.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// noopLogger is a no-op logger implementation.
type noopLogger struct{}

func (l *noopLogger) Debug(msg string, args ...interface{}) {}
func (l *noopLogger) Info(msg string, args ...interface{})  {}
func (l *noopLogger) Warn(msg string, args ...interface{})  {}
func (l *noopLogger) Error(msg string, args ...interface{}) {}

// EventPublisher forwards committed events to downstream consumers.
// Publishers are called after the events are durably stored.
type EventPublisher interface {
	Publish(ctx context.Context, events []PublishedEvent) error
}

// Option configures an EventStore.
type Option func(*EventStore)

// WithSerializer sets a custom serializer.
func WithSerializer(s Serializer) Option {
	return func(es *EventStore) {
		es.serializer = s
	}
}

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option {
	return func(es *EventStore) {
		es.logger = l
	}
}

// WithPublisher adds publishers notified of every successfully saved batch.
func WithPublisher(publishers ...EventPublisher) Option {
	return func(es *EventStore) {
		es.publishers = append(es.publishers, publishers...)
	}
}

// New creates a new EventStore with the given adapter and options.
func New(adapter adapters.EventStoreAdapter, opts ...Option) *EventStore {
	es := &EventStore{
		adapter:    adapter,
		serializer: NewJSONSerializer(),
		logger:     &noopLogger{},
	}

	for _, opt := range opts {
		opt(es)
	}

	return es
}

// Serializer returns the event store's serializer.
func (s *EventStore) Serializer() Serializer {
	return s.serializer
}

// Adapter returns the underlying adapter.
func (s *EventStore) Adapter() adapters.EventStoreAdapter {
	return s.adapter
}

// RegisterEvents registers event types with the serializer.
// This is required for deserializing events back to their original types.
func (s *EventStore) RegisterEvents(events ...interface{}) {
	if r, ok := s.serializer.(TypeRegistrar); ok {
		r.RegisterAll(events...)
	}
}

// SaveOption configures a save operation.
type SaveOption func(*saveConfig)

type saveConfig struct {
	metadata Metadata
}

// WithSaveMetadata sets metadata for all events in the save operation.
func WithSaveMetadata(m Metadata) SaveOption {
	return func(c *saveConfig) {
		c.metadata = m
	}
}

// SaveAggregate persists the aggregate's uncommitted events and accepts them.
//
// The aggregate's initial version is the expected stream version, so a save
// fails with ErrConcurrencyConflict when another writer got there first; the
// aggregate is left untouched in that case. Saving an aggregate without
// uncommitted events is a no-op.
func (s *EventStore) SaveAggregate(ctx context.Context, agg EventSource, opts ...SaveOption) error {
	if isNilSource(agg) {
		return ErrNilAggregate
	}

	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}

	cfg := &saveConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	streamID := BuildStreamID(agg.AggregateType(), agg.ID().String())

	records := make([]adapters.EventRecord, len(events))
	for i, event := range events {
		eventType, data, err := SerializeEvent(s.serializer, event)
		if err != nil {
			return fmt.Errorf("kestrel: failed to serialize aggregate event %d: %w", i, err)
		}

		records[i] = adapters.EventRecord{
			ID:        event.EventID().String(),
			Type:      eventType,
			Data:      data,
			Metadata:  cfg.metadata,
			Timestamp: event.OccurredAt(),
		}
	}

	expectedVersion := agg.InitialVersion()

	stored, err := s.adapter.Append(ctx, streamID, records, expectedVersion)
	if err != nil {
		s.logger.Error("failed to append aggregate events",
			"stream_id", streamID, "expected_version", expectedVersion, "error", err)
		return err
	}

	if n := len(stored); n > 0 && stored[n-1].Version != agg.Version() {
		s.logger.Warn("stored version differs from aggregate version",
			"stream_id", streamID, "stored_version", stored[n-1].Version, "aggregate_version", agg.Version())
	}

	agg.AcceptChanges()

	s.logger.Debug("saved aggregate",
		"stream_id", streamID, "events", len(events), "version", agg.Version())

	return s.publish(ctx, agg, stored)
}

func (s *EventStore) publish(ctx context.Context, agg EventSource, stored []adapters.StoredEvent) error {
	if len(s.publishers) == 0 || len(stored) == 0 {
		return nil
	}

	published := make([]PublishedEvent, len(stored))
	for i, e := range stored {
		published[i] = PublishedEvent{
			EventID:       e.ID,
			StreamID:      e.StreamID,
			AggregateType: agg.AggregateType(),
			AggregateID:   agg.ID().String(),
			Type:          e.Type,
			Sequence:      e.Version,
			Data:          e.Data,
			Metadata:      e.Metadata,
			Timestamp:     e.Timestamp,
		}
	}

	var errs []error
	for _, p := range s.publishers {
		if err := p.Publish(ctx, published); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}

	err := &PublishError{StreamID: stored[0].StreamID, Cause: errors.Join(errs...)}
	s.logger.Error("failed to publish committed events", "stream_id", err.StreamID, "error", err.Cause)
	return err
}

// LoadAggregate rebuilds an aggregate by replaying its stored events.
// The aggregate must be fresh with its ID and type already set.
// Returns ErrStreamNotFound when no events exist for the aggregate.
func (s *EventStore) LoadAggregate(ctx context.Context, agg EventSource) error {
	if isNilSource(agg) {
		return ErrNilAggregate
	}

	streamID := BuildStreamID(agg.AggregateType(), agg.ID().String())

	storedEvents, err := s.adapter.Load(ctx, streamID, 0)
	if err != nil {
		return err
	}
	if len(storedEvents) == 0 {
		return NewStreamNotFoundError(streamID)
	}

	history := make([]DomainEvent, len(storedEvents))
	for i, stored := range storedEvents {
		if stored.Version != int64(i+1) {
			return fmt.Errorf("kestrel: stream %q: expected version %d at position %d, got %d",
				streamID, i+1, i, stored.Version)
		}

		event, err := DeserializeEvent(s.serializer, stored)
		if err != nil {
			return fmt.Errorf("kestrel: failed to deserialize event %d: %w", i, err)
		}

		eventID, err := uuid.Parse(stored.ID)
		if err != nil {
			return fmt.Errorf("kestrel: event %d has invalid id %q: %w", i, stored.ID, err)
		}

		event.base().restore(eventID, agg.ID(), stored.Version, stored.Timestamp)
		history[i] = event
	}

	if err := agg.InitializeFromHistory(history); err != nil {
		return err
	}

	s.logger.Debug("loaded aggregate", "stream_id", streamID, "version", agg.Version())
	return nil
}

// Load retrieves all raw events from a stream.
func (s *EventStore) Load(ctx context.Context, streamID string) ([]StoredEvent, error) {
	return s.LoadFrom(ctx, streamID, 0)
}

// LoadFrom retrieves raw events from a stream after the specified version.
func (s *EventStore) LoadFrom(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}
	return s.adapter.Load(ctx, streamID, fromVersion)
}

// GetStreamInfo returns metadata about a stream.
func (s *EventStore) GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}
	return s.adapter.GetStreamInfo(ctx, streamID)
}

// GetLastPosition returns the global position of the last stored event.
func (s *EventStore) GetLastPosition(ctx context.Context) (uint64, error) {
	return s.adapter.GetLastPosition(ctx)
}

// Initialize sets up the required storage schema.
func (s *EventStore) Initialize(ctx context.Context) error {
	return s.adapter.Initialize(ctx)
}

// Close releases resources held by the event store.
func (s *EventStore) Close() error {
	return s.adapter.Close()
}

func isNilSource(agg EventSource) bool {
	if agg == nil {
		return true
	}
	v := reflect.ValueOf(agg)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
