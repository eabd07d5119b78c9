package kestrel

// EventHandler mutates aggregate state in response to an event.
// HandleEvent reports whether the handler recognized the event.
type EventHandler interface {
	HandleEvent(event DomainEvent) bool
}

// EventHandlerFunc adapts an ordinary function to the EventHandler interface.
type EventHandlerFunc func(event DomainEvent) bool

// HandleEvent calls f(event).
func (f EventHandlerFunc) HandleEvent(event DomainEvent) bool {
	return f(event)
}

// TypedEventHandler handles exactly one event variant.
type TypedEventHandler[E DomainEvent] struct {
	apply func(E)
}

// NewTypedEventHandler creates a handler that recognizes events of type E.
func NewTypedEventHandler[E DomainEvent](apply func(E)) *TypedEventHandler[E] {
	return &TypedEventHandler[E]{apply: apply}
}

// HandleEvent applies the event when it is an E and reports whether it was.
func (h *TypedEventHandler[E]) HandleEvent(event DomainEvent) bool {
	e, ok := event.(E)
	if !ok {
		return false
	}
	h.apply(e)
	return true
}

// On registers fn as the state transition for event variant E.
//
//	kestrel.On(&a.AggregateRoot, func(e *AccountOpened) { a.owner = e.Owner })
func On[E DomainEvent](root *AggregateRoot, fn func(E)) error {
	if fn == nil {
		return NewArgumentError("handler", "cannot be nil")
	}
	return root.RegisterHandler(NewTypedEventHandler(fn))
}

// handlerRegistry keeps handlers in registration order.
type handlerRegistry struct {
	handlers []EventHandler
}

func (r *handlerRegistry) add(h EventHandler) {
	r.handlers = append(r.handlers, h)
}

func (r *handlerRegistry) len() int {
	return len(r.handlers)
}

// dispatch offers the event to every handler and reports whether any of
// them recognized it. All handlers run, not just the first match.
func (r *handlerRegistry) dispatch(event DomainEvent) bool {
	handled := false
	for _, h := range r.handlers {
		if h.HandleEvent(event) {
			handled = true
		}
	}
	return handled
}
