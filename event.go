package kestrel

import (
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-es/kestrel/adapters"
)

// DomainEvent is an immutable fact produced by exactly one aggregate.
//
// The payload is the struct that embeds EventBase; the aggregate only manages
// the ownership and sequence fields stamped when the event is first applied.
// Events are applied by pointer so stamping is visible to the caller.
type DomainEvent interface {
	// EventID returns the unique identifier of this event occurrence.
	EventID() uuid.UUID

	// EventSourceID returns the ID of the owning aggregate, or uuid.Nil
	// when the event has not been applied yet.
	EventSourceID() uuid.UUID

	// EventSequence returns the 1-based position of the event in its
	// aggregate's history, or 0 when the event has not been applied yet.
	EventSequence() int64

	// OccurredAt returns when the event was applied.
	OccurredAt() time.Time

	base() *EventBase
}

// EventBase carries the fields owned by the aggregate root.
// Embed it in every event payload struct:
//
//	type AccountOpened struct {
//	    kestrel.EventBase
//	    Owner string `json:"owner"`
//	}
type EventBase struct {
	eventID    uuid.UUID
	sourceID   uuid.UUID
	sequence   int64
	occurredAt time.Time
}

// EventID returns the unique identifier of this event occurrence.
func (e *EventBase) EventID() uuid.UUID {
	return e.eventID
}

// EventSourceID returns the ID of the aggregate that owns this event.
func (e *EventBase) EventSourceID() uuid.UUID {
	return e.sourceID
}

// EventSequence returns the position of this event in its aggregate's history.
func (e *EventBase) EventSequence() int64 {
	return e.sequence
}

// OccurredAt returns when the event was applied.
func (e *EventBase) OccurredAt() time.Time {
	return e.occurredAt
}

// IsOwned reports whether the event has been stamped by an aggregate.
func (e *EventBase) IsOwned() bool {
	return e.sourceID != uuid.Nil
}

func (e *EventBase) base() *EventBase {
	return e
}

// stamp fixes ownership and position. Identity and timestamp are only
// assigned when still unset so a caller may provide them up front.
func (e *EventBase) stamp(owner uuid.UUID, sequence int64, now time.Time) {
	e.sourceID = owner
	e.sequence = sequence
	if e.eventID == uuid.Nil {
		e.eventID = uuid.New()
	}
	if e.occurredAt.IsZero() {
		e.occurredAt = now
	}
}

// restore copies storage metadata onto a deserialized historical event.
func (e *EventBase) restore(eventID, owner uuid.UUID, sequence int64, occurredAt time.Time) {
	e.eventID = eventID
	e.sourceID = owner
	e.sequence = sequence
	e.occurredAt = occurredAt
}

// EventType returns the event type name used for serialization and errors.
// It is the struct name of the payload, without the pointer.
func EventType(event interface{}) string {
	if event == nil {
		return ""
	}

	t := reflect.TypeOf(event)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Metadata contains contextual information about an event.
// It carries correlation and causation IDs plus custom key-value pairs.
type Metadata = adapters.Metadata

// StoredEvent represents a persisted event with all storage metadata.
type StoredEvent = adapters.StoredEvent

// StreamInfo contains metadata about an event stream.
type StreamInfo = adapters.StreamInfo

// Version constants for optimistic concurrency control.
const (
	// AnyVersion skips version checking, allowing append regardless of current version.
	AnyVersion = adapters.AnyVersion

	// NoStream indicates the stream must not exist (for creating new streams).
	NoStream = adapters.NoStream

	// StreamExists indicates the stream must exist (for appending to existing streams).
	StreamExists = adapters.StreamExists
)

// PublishedEvent is a committed event handed to an EventPublisher.
type PublishedEvent struct {
	// EventID is the globally unique event identifier.
	EventID string

	// StreamID identifies the stream this event belongs to.
	StreamID string

	// AggregateType is the category of the owning aggregate.
	AggregateType string

	// AggregateID is the owning aggregate's identifier.
	AggregateID string

	// Type is the event type identifier.
	Type string

	// Sequence is the position within the stream (1-based).
	Sequence int64

	// Data is the serialized event payload.
	Data []byte

	// Metadata contains contextual information.
	Metadata Metadata

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Header keys produced by PublishedEvent.Headers.
const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderStreamID      = "stream-id"
	HeaderAggregateType = "aggregate-type"
	HeaderAggregateID   = "aggregate-id"
	HeaderSequence      = "sequence"
	HeaderCorrelationID = "correlation-id"
	HeaderCausationID   = "causation-id"
	HeaderUserID        = "user-id"
	HeaderTenantID      = "tenant-id"
)

var reservedHeaders = map[string]struct{}{
	HeaderEventID: {}, HeaderEventType: {}, HeaderStreamID: {},
	HeaderAggregateType: {}, HeaderAggregateID: {}, HeaderSequence: {},
	HeaderCorrelationID: {}, HeaderCausationID: {}, HeaderUserID: {}, HeaderTenantID: {},
}

// Headers flattens the event's identity and metadata into string headers for
// transports such as Kafka, SNS or HTTP. Empty metadata fields are omitted.
// Custom metadata keys are copied unchanged unless they collide with one of
// the Header constants, even one left out because its field is empty.
func (e PublishedEvent) Headers() map[string]string {
	h := map[string]string{
		HeaderEventID:       e.EventID,
		HeaderEventType:     e.Type,
		HeaderStreamID:      e.StreamID,
		HeaderAggregateType: e.AggregateType,
		HeaderAggregateID:   e.AggregateID,
		HeaderSequence:      strconv.FormatInt(e.Sequence, 10),
	}

	optional := map[string]string{
		HeaderCorrelationID: e.Metadata.CorrelationID,
		HeaderCausationID:   e.Metadata.CausationID,
		HeaderUserID:        e.Metadata.UserID,
		HeaderTenantID:      e.Metadata.TenantID,
	}
	for k, v := range optional {
		if v != "" {
			h[k] = v
		}
	}
	for k, v := range e.Metadata.Custom {
		if _, reserved := reservedHeaders[k]; !reserved {
			h[k] = v
		}
	}
	return h
}
