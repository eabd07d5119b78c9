package kestrel

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Repository loads and saves aggregates of one type through an EventStore.
// T is usually a pointer to a struct embedding AggregateRoot.
type Repository[T EventSource] struct {
	store   *EventStore
	factory func() T
}

// NewRepository creates a repository. factory must return a fresh aggregate
// with all its event handlers registered.
func NewRepository[T EventSource](store *EventStore, factory func() T) *Repository[T] {
	return &Repository[T]{
		store:   store,
		factory: factory,
	}
}

// New returns a fresh aggregate with a newly generated ID.
func (r *Repository[T]) New() T {
	return r.factory()
}

// Get rebuilds the aggregate with the given ID from its stored history.
// Returns ErrStreamNotFound if the aggregate has no events.
func (r *Repository[T]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	agg := r.factory()
	if isNilSource(agg) {
		var zero T
		return zero, ErrNilAggregate
	}
	if err := agg.AssignID(id); err != nil {
		var zero T
		return zero, err
	}
	if err := r.store.LoadAggregate(ctx, agg); err != nil {
		var zero T
		return zero, err
	}
	return agg, nil
}

// Save persists the aggregate's uncommitted events and accepts them.
func (r *Repository[T]) Save(ctx context.Context, agg T, opts ...SaveOption) error {
	return r.store.SaveAggregate(ctx, agg, opts...)
}

// Exists reports whether any events are stored for the aggregate ID.
func (r *Repository[T]) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	probe := r.factory()
	if isNilSource(probe) {
		return false, ErrNilAggregate
	}
	streamID := BuildStreamID(probe.AggregateType(), id.String())

	_, err := r.store.GetStreamInfo(ctx, streamID)
	if errors.Is(err, ErrStreamNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
