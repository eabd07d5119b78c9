package kestrel

import (
	"context"
	"reflect"
)

// UnitOfWork accumulates the aggregates that have pending changes within one
// logical operation. An aggregate calls RegisterDirty once for every new
// event it applies; implementations decide how to de-duplicate.
type UnitOfWork interface {
	RegisterDirty(source EventSource)
}

// UnitOfWorkFunc adapts a function to the UnitOfWork interface.
type UnitOfWorkFunc func(source EventSource)

// RegisterDirty calls f(source).
func (f UnitOfWorkFunc) RegisterDirty(source EventSource) {
	f(source)
}

type unitOfWorkKey struct{}

// WithUnitOfWork returns a context carrying uow, for call chains that already
// thread a context through to the code applying events.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork) context.Context {
	return context.WithValue(ctx, unitOfWorkKey{}, uow)
}

// UnitOfWorkFromContext returns the unit of work carried by ctx, if any.
func UnitOfWorkFromContext(ctx context.Context) (UnitOfWork, bool) {
	if ctx == nil {
		return nil, false
	}
	uow, ok := ctx.Value(unitOfWorkKey{}).(UnitOfWork)
	return uow, ok && !IsNilUnitOfWork(uow)
}

// IsNilUnitOfWork reports whether uow is nil or wraps a nil pointer, map,
// channel or func. ApplyEvent treats such a value as no unit of work.
func IsNilUnitOfWork(uow UnitOfWork) bool {
	if uow == nil {
		return true
	}
	v := reflect.ValueOf(uow)
	switch v.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Chan:
		return v.IsNil()
	}
	return false
}
