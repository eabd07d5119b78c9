// Package msgpack provides a MessagePack serializer for kestrel events.
//
// MessagePack is a binary format that produces smaller payloads than JSON.
// It is useful for high-throughput stores where payloads are rarely read by hand.
//
//	serializer := msgpack.NewSerializer()
//	serializer.RegisterAll(AccountOpened{}, Deposited{})
//	store := kestrel.New(adapter, kestrel.WithSerializer(serializer))
package msgpack

import (
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kestrel-es/kestrel"
)

// Serializer is a MessagePack implementation of kestrel.Serializer.
type Serializer struct {
	registry *kestrel.EventRegistry
}

var (
	_ kestrel.Serializer    = (*Serializer)(nil)
	_ kestrel.TypeRegistrar = (*Serializer)(nil)
)

// SerializerOption configures a Serializer.
type SerializerOption func(*Serializer)

// WithRegistry shares an existing type registry, for example the one of a
// JSON serializer used by the same application.
func WithRegistry(registry *kestrel.EventRegistry) SerializerOption {
	return func(s *Serializer) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// NewSerializer creates a new MessagePack Serializer.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{registry: kestrel.NewEventRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a mapping from eventType to the Go type of the example.
func (s *Serializer) Register(eventType string, example interface{}) {
	s.registry.Register(eventType, example)
}

// RegisterAll registers multiple events using their struct names as type names.
func (s *Serializer) RegisterAll(examples ...interface{}) {
	s.registry.RegisterAll(examples...)
}

// Registry returns the underlying type registry.
func (s *Serializer) Registry() *kestrel.EventRegistry {
	return s.registry
}

// Serialize converts an event to MessagePack bytes.
func (s *Serializer) Serialize(event interface{}) ([]byte, error) {
	if event == nil {
		return nil, kestrel.NewSerializationError("nil", "serialize", fmt.Errorf("event cannot be nil"))
	}

	data, err := msgpack.Marshal(event)
	if err != nil {
		return nil, kestrel.NewSerializationError(kestrel.EventType(event), "serialize", err)
	}

	return data, nil
}

// Deserialize converts MessagePack bytes back to an event.
// Registered types are returned as pointers; anything else decodes to a
// map[string]interface{}.
func (s *Serializer) Deserialize(data []byte, eventType string) (interface{}, error) {
	if len(data) == 0 {
		return nil, kestrel.NewSerializationError(eventType, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	t, ok := s.registry.Lookup(eventType)
	if !ok {
		var result map[string]interface{}
		if err := msgpack.Unmarshal(data, &result); err != nil {
			return nil, kestrel.NewSerializationError(eventType, "deserialize", err)
		}
		return result, nil
	}

	ptr := reflect.New(t)
	if err := msgpack.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, kestrel.NewSerializationError(eventType, "deserialize", err)
	}

	return ptr.Interface(), nil
}
