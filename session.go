package kestrel

import (
	"context"
	"errors"
	"fmt"
)

// Session is a UnitOfWork backed by an EventStore. It tracks every aggregate
// that applied a new event and saves them, in registration order, on Commit.
//
// A Session belongs to one logical operation and is not safe for concurrent use.
type Session struct {
	store    *EventStore
	dirty    []EventSource
	seen     map[EventSource]struct{}
	metadata Metadata
}

var _ UnitOfWork = (*Session)(nil)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionMetadata sets metadata attached to every event saved by the session.
func WithSessionMetadata(m Metadata) SessionOption {
	return func(s *Session) {
		s.metadata = m
	}
}

// NewSession starts a unit of work that saves through this store.
func (s *EventStore) NewSession(opts ...SessionOption) *Session {
	session := &Session{
		store: s,
		seen:  make(map[EventSource]struct{}),
	}
	for _, opt := range opts {
		opt(session)
	}
	return session
}

// RegisterDirty records that source has uncommitted events.
// Registering the same aggregate again is a no-op.
func (s *Session) RegisterDirty(source EventSource) {
	if isNilSource(source) {
		return
	}
	if _, ok := s.seen[source]; ok {
		return
	}
	s.seen[source] = struct{}{}
	s.dirty = append(s.dirty, source)
}

// Dirty returns the registered aggregates in registration order.
func (s *Session) Dirty() []EventSource {
	dirty := make([]EventSource, len(s.dirty))
	copy(dirty, s.dirty)
	return dirty
}

// IsDirty reports whether any aggregate is waiting to be saved.
func (s *Session) IsDirty() bool {
	return len(s.dirty) > 0
}

// Commit saves every dirty aggregate and accepts its changes.
//
// Commit stops at the first aggregate that fails to save; it and the
// aggregates after it stay registered so the caller can inspect or retry
// them. Publish failures do not stop the commit since the events are
// already stored; they are joined into the returned error.
func (s *Session) Commit(ctx context.Context) error {
	var publishErrs []error
	saved := 0

	for len(s.dirty) > 0 {
		source := s.dirty[0]

		err := s.store.SaveAggregate(ctx, source, WithSaveMetadata(s.metadata))
		var pubErr *PublishError
		switch {
		case err == nil:
		case errors.As(err, &pubErr):
			publishErrs = append(publishErrs, err)
		default:
			return fmt.Errorf("kestrel: failed to commit aggregate %s: %w",
				BuildStreamID(source.AggregateType(), source.ID().String()), err)
		}

		delete(s.seen, source)
		s.dirty = s.dirty[1:]
		saved++
	}

	s.store.logger.Debug("session committed", "aggregates", saved)
	return errors.Join(publishErrs...)
}

// Discard forgets all registered aggregates without saving them.
// Their uncommitted events remain on the aggregates.
func (s *Session) Discard() {
	s.dirty = nil
	s.seen = make(map[EventSource]struct{})
}
