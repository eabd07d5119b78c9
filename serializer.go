package kestrel

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Serializer handles event payload serialization and deserialization.
type Serializer interface {
	// Serialize converts an event to bytes.
	Serialize(event interface{}) ([]byte, error)

	// Deserialize converts bytes back to an event.
	// The eventType is used to determine the target type.
	// Registered types are returned as pointers.
	Deserialize(data []byte, eventType string) (interface{}, error)
}

// TypeRegistrar is implemented by serializers that keep an event type registry.
type TypeRegistrar interface {
	RegisterAll(examples ...interface{})
}

// EventRegistry maps event type names to Go types.
type EventRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewEventRegistry creates a new empty EventRegistry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{
		types: make(map[string]reflect.Type),
	}
}

// Register adds a mapping from eventType to the Go type of the example.
// Pointers and values register the same struct type.
func (r *EventRegistry) Register(eventType string, example interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.types[eventType] = structType(example)
}

// RegisterAll registers multiple events using their struct names as type names.
func (r *EventRegistry) RegisterAll(examples ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, example := range examples {
		t := structType(example)
		r.types[t.Name()] = t
	}
}

// Lookup returns the Go type for the given event type name.
// Returns nil and false if the type is not registered.
func (r *EventRegistry) Lookup(eventType string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[eventType]
	return t, ok
}

// RegisteredTypes returns a slice of all registered event type names.
func (r *EventRegistry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for t := range r.types {
		types = append(types, t)
	}
	return types
}

// Count returns the number of registered event types.
func (r *EventRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

func structType(example interface{}) reflect.Type {
	t := reflect.TypeOf(example)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// JSONSerializer is the default Serializer implementation using JSON encoding.
type JSONSerializer struct {
	registry *EventRegistry
}

var (
	_ Serializer    = (*JSONSerializer)(nil)
	_ TypeRegistrar = (*JSONSerializer)(nil)
)

// NewJSONSerializer creates a new JSONSerializer with an empty registry.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{
		registry: NewEventRegistry(),
	}
}

// NewJSONSerializerWithRegistry creates a new JSONSerializer with the given registry.
func NewJSONSerializerWithRegistry(registry *EventRegistry) *JSONSerializer {
	if registry == nil {
		registry = NewEventRegistry()
	}
	return &JSONSerializer{
		registry: registry,
	}
}

// Register adds an event type to the serializer's registry.
func (s *JSONSerializer) Register(eventType string, example interface{}) {
	s.registry.Register(eventType, example)
}

// RegisterAll registers multiple events using their struct names as type names.
func (s *JSONSerializer) RegisterAll(examples ...interface{}) {
	s.registry.RegisterAll(examples...)
}

// Registry returns the underlying EventRegistry.
func (s *JSONSerializer) Registry() *EventRegistry {
	return s.registry
}

// Serialize converts an event to JSON bytes.
func (s *JSONSerializer) Serialize(event interface{}) ([]byte, error) {
	if event == nil {
		return nil, NewSerializationError("nil", "serialize", fmt.Errorf("event cannot be nil"))
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, NewSerializationError(EventType(event), "serialize", err)
	}

	return data, nil
}

// Deserialize converts JSON bytes back to an event.
// If the event type is registered, returns a pointer to a value of that type.
// Otherwise, returns a map[string]interface{}.
func (s *JSONSerializer) Deserialize(data []byte, eventType string) (interface{}, error) {
	if len(data) == 0 {
		return nil, NewSerializationError(eventType, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	t, ok := s.registry.Lookup(eventType)
	if !ok {
		var result map[string]interface{}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, NewSerializationError(eventType, "deserialize", err)
		}
		return result, nil
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, NewSerializationError(eventType, "deserialize", err)
	}

	return ptr.Interface(), nil
}

// SerializeEvent serializes a domain event's payload and returns its type name and bytes.
func SerializeEvent(serializer Serializer, event DomainEvent) (string, []byte, error) {
	eventType := EventType(event)
	if eventType == "" {
		return "", nil, NewSerializationError("", "serialize", fmt.Errorf("cannot determine event type"))
	}

	data, err := serializer.Serialize(event)
	if err != nil {
		return "", nil, err
	}

	return eventType, data, nil
}

// DeserializeEvent converts a stored event back into a domain event.
// The event type must be registered with the serializer.
func DeserializeEvent(serializer Serializer, stored StoredEvent) (DomainEvent, error) {
	data, err := serializer.Deserialize(stored.Data, stored.Type)
	if err != nil {
		return nil, err
	}

	event, ok := data.(DomainEvent)
	if !ok {
		return nil, NewSerializationError(stored.Type, "deserialize",
			fmt.Errorf("type is not registered as a domain event (got %T)", data))
	}

	return event, nil
}
