package kestrel

import "github.com/google/uuid"

// IDGenerator produces identifiers for fresh aggregates.
// Uniqueness across live aggregates is the generator's responsibility.
type IDGenerator interface {
	NewID() uuid.UUID
}

// IDGeneratorFunc adapts a function to the IDGenerator interface.
type IDGeneratorFunc func() uuid.UUID

// NewID calls f().
func (f IDGeneratorFunc) NewID() uuid.UUID {
	return f()
}

// UUIDGenerator generates random (version 4) UUIDs.
type UUIDGenerator struct{}

// NewID returns a new random UUID.
func (UUIDGenerator) NewID() uuid.UUID {
	return uuid.New()
}

// UUIDv7Generator generates time-ordered (version 7) UUIDs, which keep
// primary key indexes compact in relational stores.
type UUIDv7Generator struct{}

// NewID returns a new time-ordered UUID.
func (UUIDv7Generator) NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// DefaultIDGenerator is used when no generator is supplied.
var DefaultIDGenerator IDGenerator = UUIDGenerator{}
