package kestrel

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// EventSource is implemented by every event-sourced aggregate.
// AggregateRoot implements it, and so does any struct embedding it.
type EventSource interface {
	// ID returns the globally unique identifier of the aggregate.
	ID() uuid.UUID

	// AggregateType returns the type/category of the aggregate (e.g., "Account").
	AggregateType() string

	// Version returns InitialVersion plus the number of uncommitted events.
	Version() int64

	// InitialVersion returns the version last known to be durably stored.
	InitialVersion() int64

	// AssignID fixes the identity of an aggregate that has no history yet.
	AssignID(id uuid.UUID) error

	// InitializeFromHistory replays stored events to rebuild state.
	InitializeFromHistory(history []DomainEvent) error

	// UncommittedEvents returns pending events, oldest first.
	UncommittedEvents() []DomainEvent

	// AcceptChanges folds pending events into the initial version.
	AcceptChanges()
}

var _ EventSource = (*AggregateRoot)(nil)

// AggregateRoot holds identity, version, pending events and event handlers.
// Embed it in your aggregate types and register one handler per event variant:
//
//	type Account struct {
//	    kestrel.AggregateRoot
//	    balance int64
//	}
//
//	func NewAccount() *Account {
//	    a := &Account{AggregateRoot: kestrel.NewAggregateRoot("Account", nil)}
//	    kestrel.On(&a.AggregateRoot, func(e *Deposited) { a.balance += e.Amount })
//	    return a
//	}
//
//	func (a *Account) Deposit(uow kestrel.UnitOfWork, amount int64) error {
//	    return a.ApplyEvent(uow, &Deposited{Amount: amount})
//	}
//
// AggregateRoot is not safe for concurrent use; confine an instance to one
// unit of work at a time.
type AggregateRoot struct {
	id             uuid.UUID
	aggregateType  string
	initialVersion int64
	uncommitted    []DomainEvent
	handlers       handlerRegistry
}

// NewAggregateRoot creates a fresh aggregate at version 0 whose identifier is
// obtained from gen. A nil gen uses DefaultIDGenerator.
func NewAggregateRoot(aggregateType string, gen IDGenerator) AggregateRoot {
	if gen == nil {
		gen = DefaultIDGenerator
	}
	return AggregateRoot{
		id:            gen.NewID(),
		aggregateType: aggregateType,
	}
}

// ID returns the aggregate's unique identifier.
func (r *AggregateRoot) ID() uuid.UUID {
	return r.id
}

// AggregateType returns the aggregate type.
func (r *AggregateRoot) AggregateType() string {
	return r.aggregateType
}

// StreamID returns the stream the aggregate's events are stored in.
func (r *AggregateRoot) StreamID() string {
	return BuildStreamID(r.aggregateType, r.id.String())
}

// Version returns the current version of the aggregate.
func (r *AggregateRoot) Version() int64 {
	return r.initialVersion + int64(len(r.uncommitted))
}

// InitialVersion returns the version as last persisted or reconstructed.
// It does not change until AcceptChanges is called.
func (r *AggregateRoot) InitialVersion() int64 {
	return r.initialVersion
}

// AssignID sets the aggregate's identity. It fails once the aggregate has
// any history, persisted or pending.
func (r *AggregateRoot) AssignID(id uuid.UUID) error {
	if id == uuid.Nil {
		return NewArgumentError("id", "cannot be empty")
	}
	if r.Version() != 0 || len(r.uncommitted) != 0 {
		return NewStateError("assign id", fmt.Sprintf("aggregate %s is already at version %d", r.id, r.Version()))
	}
	r.id = id
	return nil
}

// RegisterHandler appends h to the handlers tried for every event.
// Handlers run in registration order; duplicates are not removed.
func (r *AggregateRoot) RegisterHandler(h EventHandler) error {
	if isNilHandler(h) {
		return NewArgumentError("handler", "cannot be nil")
	}
	r.handlers.add(h)
	return nil
}

// HandlerCount returns the number of registered handlers.
func (r *AggregateRoot) HandlerCount() int {
	return r.handlers.len()
}

// ApplyEvent applies a new event produced by a business operation.
//
// The event must not be owned yet: an event already stamped by any aggregate,
// this one included, is rejected with an *OwnershipError. The checks run in
// this order before any handler sees the event: nil event, missing unit of
// work, ownership.
//
// Every registered handler is offered the event. When at least one handles it,
// the event is stamped with this aggregate's ID and the next sequence number,
// appended to the uncommitted events, and the aggregate registers itself as
// dirty with uow. Any failure leaves the version and pending events untouched.
func (r *AggregateRoot) ApplyEvent(uow UnitOfWork, event DomainEvent) error {
	if isNilEvent(event) {
		return NewArgumentError("event", "cannot be nil")
	}
	if IsNilUnitOfWork(uow) {
		return ErrNoActiveUnitOfWork
	}

	eb := event.base()
	if owner := eb.sourceID; owner != uuid.Nil {
		return &OwnershipError{
			EventType:     EventType(event),
			AggregateType: r.aggregateType,
			AggregateID:   r.id,
			OwnerID:       owner,
		}
	}

	if err := r.handleEvent(event); err != nil {
		return err
	}

	eb.stamp(r.id, r.Version()+1, time.Now().UTC())
	r.uncommitted = append(r.uncommitted, event)

	uow.RegisterDirty(r)
	return nil
}

// applyHistorical replays a stored event. It never stamps or buffers.
func (r *AggregateRoot) applyHistorical(event DomainEvent) error {
	return r.handleEvent(event)
}

func (r *AggregateRoot) handleEvent(event DomainEvent) error {
	if !r.handlers.dispatch(event) {
		return NewEventNotHandledError(EventType(event), r.aggregateType)
	}
	return nil
}

// InitializeFromHistory rebuilds state by replaying history in order.
// The initial version advances once per replayed event; the uncommitted
// events stay empty. It fails on an aggregate that already has a version.
func (r *AggregateRoot) InitializeFromHistory(history []DomainEvent) error {
	if history == nil {
		return NewArgumentError("history", "cannot be nil")
	}
	if len(history) == 0 {
		return NewArgumentError("history", "does not contain any historical event")
	}
	if r.Version() != 0 || len(r.uncommitted) > 0 {
		return NewStateError("initialize from history", "event source is already loaded")
	}

	for i, event := range history {
		if isNilEvent(event) {
			return NewArgumentError(fmt.Sprintf("history[%d]", i), "cannot be nil")
		}
		if err := r.applyHistorical(event); err != nil {
			return fmt.Errorf("kestrel: failed to replay event %d: %w", i, err)
		}
		r.initialVersion++
	}

	return nil
}

// UncommittedEvents returns a copy of the pending events, oldest first.
// The result is never nil.
func (r *AggregateRoot) UncommittedEvents() []DomainEvent {
	events := make([]DomainEvent, len(r.uncommitted))
	copy(events, r.uncommitted)
	return events
}

// HasUncommittedEvents returns true if there are events waiting to be persisted.
func (r *AggregateRoot) HasUncommittedEvents() bool {
	return len(r.uncommitted) > 0
}

// LastUncommittedEvent returns the most recently applied pending event, or
// nil when nothing is pending.
func (r *AggregateRoot) LastUncommittedEvent() DomainEvent {
	if len(r.uncommitted) == 0 {
		return nil
	}
	return r.uncommitted[len(r.uncommitted)-1]
}

// LatestPendingEvent returns the newest uncommitted event of source, or nil.
// Sources exposing LastUncommittedEvent are read without copying their
// pending events.
func LatestPendingEvent(source EventSource) DomainEvent {
	if last, ok := source.(interface{ LastUncommittedEvent() DomainEvent }); ok {
		return last.LastUncommittedEvent()
	}
	pending := source.UncommittedEvents()
	if len(pending) == 0 {
		return nil
	}
	return pending[len(pending)-1]
}

// AcceptChanges marks all pending events as persisted. Call it only after
// every event returned by UncommittedEvents has been durably stored.
func (r *AggregateRoot) AcceptChanges() {
	r.initialVersion = r.Version()
	r.uncommitted = nil
}

func isNilEvent(event DomainEvent) bool {
	if event == nil {
		return true
	}
	v := reflect.ValueOf(event)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

func isNilHandler(h EventHandler) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Ptr, reflect.Func:
		return v.IsNil()
	}
	return false
}
