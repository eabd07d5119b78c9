package kestrel

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kestrel-es/kestrel/adapters"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
var (
	// ErrArgumentInvalid indicates a required argument was nil or empty.
	ErrArgumentInvalid = errors.New("kestrel: invalid argument")

	// ErrInvalidState indicates the aggregate is not in a state that allows the operation.
	ErrInvalidState = errors.New("kestrel: invalid state")

	// ErrEventNotHandled indicates no registered handler recognized an event.
	// This is a configuration defect: an event variant has no state transition.
	ErrEventNotHandled = errors.New("kestrel: event not handled")

	// ErrNoActiveUnitOfWork indicates a new event was applied without a unit of work.
	ErrNoActiveUnitOfWork = errors.New("kestrel: no active unit of work")

	// ErrSerializationFailed indicates event serialization/deserialization failed.
	ErrSerializationFailed = errors.New("kestrel: serialization failed")

	// ErrNilAggregate indicates a nil aggregate was passed.
	ErrNilAggregate = adapters.ErrNilAggregate

	// ErrPublishFailed indicates committed events could not be published.
	ErrPublishFailed = errors.New("kestrel: publish failed")

	// Store errors are aliases to the adapters package errors for compatibility.

	// ErrStreamNotFound indicates the requested stream does not exist.
	ErrStreamNotFound = adapters.ErrStreamNotFound

	// ErrConcurrencyConflict indicates an optimistic concurrency violation.
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict

	// ErrEmptyStreamID indicates an empty stream ID was provided.
	ErrEmptyStreamID = adapters.ErrEmptyStreamID

	// ErrNoEvents indicates no events were provided for append.
	ErrNoEvents = adapters.ErrNoEvents

	// ErrInvalidVersion indicates an invalid version number was provided.
	ErrInvalidVersion = adapters.ErrInvalidVersion

	// ErrAdapterClosed indicates the adapter has been closed.
	ErrAdapterClosed = adapters.ErrAdapterClosed
)

// ArgumentError provides detail about a nil or empty argument.
type ArgumentError struct {
	Argument string
	Reason   string
}

// Error returns the error message.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("kestrel: invalid argument %q: %s", e.Argument, e.Reason)
}

// Is reports whether this error matches the target error.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrArgumentInvalid
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *ArgumentError) Unwrap() error {
	return ErrArgumentInvalid
}

// NewArgumentError creates a new ArgumentError.
func NewArgumentError(argument, reason string) *ArgumentError {
	return &ArgumentError{Argument: argument, Reason: reason}
}

// StateError reports an operation rejected because of the aggregate's current state.
type StateError struct {
	Operation string
	Reason    string
}

// Error returns the error message.
func (e *StateError) Error() string {
	return fmt.Sprintf("kestrel: cannot %s: %s", e.Operation, e.Reason)
}

// Is reports whether this error matches the target error.
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// NewStateError creates a new StateError.
func NewStateError(operation, reason string) *StateError {
	return &StateError{Operation: operation, Reason: reason}
}

// OwnershipError reports an attempt to apply an event that already belongs
// to another aggregate.
type OwnershipError struct {
	EventType     string
	AggregateType string
	AggregateID   uuid.UUID
	OwnerID       uuid.UUID
}

// Error returns the error message.
func (e *OwnershipError) Error() string {
	return fmt.Sprintf("kestrel: the %s event cannot be applied to aggregate %s with id %s "+
		"since it is already owned by aggregate with id %s",
		e.EventType, e.AggregateType, e.AggregateID, e.OwnerID)
}

// Is reports whether this error matches the target error.
func (e *OwnershipError) Is(target error) bool {
	return target == ErrInvalidState
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *OwnershipError) Unwrap() error {
	return ErrInvalidState
}

// EventNotHandledError provides detail about an event no handler recognized.
type EventNotHandledError struct {
	EventType     string
	AggregateType string
}

// Error returns the error message.
func (e *EventNotHandledError) Error() string {
	return fmt.Sprintf("kestrel: no handler of aggregate %q handled event %q", e.AggregateType, e.EventType)
}

// Is reports whether this error matches the target error.
func (e *EventNotHandledError) Is(target error) bool {
	return target == ErrEventNotHandled
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *EventNotHandledError) Unwrap() error {
	return ErrEventNotHandled
}

// NewEventNotHandledError creates a new EventNotHandledError.
func NewEventNotHandledError(eventType, aggregateType string) *EventNotHandledError {
	return &EventNotHandledError{EventType: eventType, AggregateType: aggregateType}
}

// ConcurrencyError provides detailed information about a concurrency conflict.
type ConcurrencyError = adapters.ConcurrencyError

// NewConcurrencyError creates a new ConcurrencyError.
func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return adapters.NewConcurrencyError(streamID, expected, actual)
}

// StreamNotFoundError provides detailed information about a missing stream.
type StreamNotFoundError = adapters.StreamNotFoundError

// NewStreamNotFoundError creates a new StreamNotFoundError.
func NewStreamNotFoundError(streamID string) *StreamNotFoundError {
	return adapters.NewStreamNotFoundError(streamID)
}

// SerializationError provides detailed information about a serialization failure.
type SerializationError struct {
	EventType string
	Operation string // "serialize" or "deserialize"
	Cause     error
}

// Error returns the error message.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("kestrel: failed to %s event type %q: %v",
		e.Operation, e.EventType, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerializationFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// NewSerializationError creates a new SerializationError.
func NewSerializationError(eventType, operation string, cause error) *SerializationError {
	return &SerializationError{
		EventType: eventType,
		Operation: operation,
		Cause:     cause,
	}
}

// PublishError reports committed events that could not be handed to a publisher.
// The events are already durable when this error is returned.
type PublishError struct {
	StreamID string
	Cause    error
}

// Error returns the error message.
func (e *PublishError) Error() string {
	return fmt.Sprintf("kestrel: failed to publish events of stream %q: %v", e.StreamID, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *PublishError) Is(target error) bool {
	return target == ErrPublishFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *PublishError) Unwrap() error {
	return e.Cause
}
