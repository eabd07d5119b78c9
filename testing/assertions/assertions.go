// Package assertions provides event assertion utilities for testing
// event-sourced aggregates.
//
// Events are compared by payload: the identity, owner, sequence and timestamp
// carried by kestrel.EventBase are ignored so expectations can be written as
// plain literals.
package assertions

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/kestrel-es/kestrel"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

var eventBaseType = reflect.TypeOf(kestrel.EventBase{})

// Payload returns the event's struct value with any embedded
// kestrel.EventBase zeroed. Non-struct values are returned unchanged.
func Payload(event interface{}) interface{} {
	if event == nil {
		return nil
	}
	v := reflect.ValueOf(event)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return v.Interface()
	}

	cp := reflect.New(v.Type()).Elem()
	cp.Set(v)
	for i := 0; i < cp.NumField(); i++ {
		f := cp.Type().Field(i)
		if f.Anonymous && f.Type == eventBaseType {
			cp.Field(i).Set(reflect.Zero(eventBaseType))
		}
	}
	return cp.Interface()
}

// PayloadEqual reports whether two events carry the same payload.
func PayloadEqual(expected, actual interface{}) bool {
	return reflect.DeepEqual(Payload(expected), Payload(actual))
}

// AssertEventTypes checks that the events have the expected types in order.
func AssertEventTypes(t TB, events []kestrel.DomainEvent, types ...string) {
	t.Helper()

	if len(events) != len(types) {
		t.Fatalf("Expected %d events, got %d", len(types), len(events))
	}

	for i, expectedType := range types {
		actualType := kestrel.EventType(events[i])
		if actualType != expectedType {
			t.Errorf("Event %d: expected type %s, got %s", i, expectedType, actualType)
		}
	}
}

// AssertEventData checks that a specific event has the expected payload.
func AssertEventData(t TB, event kestrel.DomainEvent, expected kestrel.DomainEvent) {
	t.Helper()

	if reflect.TypeOf(event) != reflect.TypeOf(expected) {
		t.Fatalf("Event is not of expected type %T, got %T", expected, event)
	}

	if !PayloadEqual(expected, event) {
		t.Errorf("Event data mismatch:\nExpected: %+v\nActual: %+v", Payload(expected), Payload(event))
	}
}

// AssertEventCount checks the number of events.
func AssertEventCount(t TB, events []kestrel.DomainEvent, expected int) {
	t.Helper()

	if len(events) != expected {
		t.Errorf("Expected %d events, got %d", expected, len(events))
	}
}

// AssertNoEvents checks that no events were produced.
func AssertNoEvents(t TB, events []kestrel.DomainEvent) {
	t.Helper()

	if len(events) > 0 {
		t.Errorf("Expected no events, got %d: %s", len(events), describe(events))
	}
}

// AssertLastEvent checks the last event has the expected payload.
func AssertLastEvent(t TB, events []kestrel.DomainEvent, expected kestrel.DomainEvent) {
	t.Helper()

	if len(events) == 0 {
		t.Fatal("Expected at least one event, got none")
	}

	AssertEventData(t, events[len(events)-1], expected)
}

// AssertOwnedBy checks that every event is stamped with the given aggregate ID.
func AssertOwnedBy(t TB, events []kestrel.DomainEvent, owner uuid.UUID) {
	t.Helper()

	for i, event := range events {
		if event.EventSourceID() != owner {
			t.Errorf("Event %d (%s): expected owner %s, got %s", i, kestrel.EventType(event), owner, event.EventSourceID())
		}
	}
}

// AssertSequences checks that event sequences are contiguous starting at first.
func AssertSequences(t TB, events []kestrel.DomainEvent, first int64) {
	t.Helper()

	for i, event := range events {
		if want := first + int64(i); event.EventSequence() != want {
			t.Errorf("Event %d (%s): expected sequence %d, got %d", i, kestrel.EventType(event), want, event.EventSequence())
		}
	}
}

// EventDiff represents a difference between expected and actual events.
type EventDiff struct {
	Index    int
	Expected kestrel.DomainEvent
	Actual   kestrel.DomainEvent
	Type     DiffType
}

// DiffType represents the type of difference.
type DiffType int

const (
	// DiffMissing indicates an expected event was not present.
	DiffMissing DiffType = iota
	// DiffExtra indicates an unexpected event was present.
	DiffExtra
	// DiffMismatch indicates event data did not match.
	DiffMismatch
)

// String returns a human-readable representation of the diff type.
func (d DiffType) String() string {
	switch d {
	case DiffMissing:
		return "missing"
	case DiffExtra:
		return "extra"
	case DiffMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// DiffEvents compares two event slices by type and payload.
func DiffEvents(expected, actual []kestrel.DomainEvent) []EventDiff {
	var diffs []EventDiff

	maxLen := len(expected)
	if len(actual) > maxLen {
		maxLen = len(actual)
	}

	for i := 0; i < maxLen; i++ {
		switch {
		case i >= len(expected):
			diffs = append(diffs, EventDiff{Index: i, Actual: actual[i], Type: DiffExtra})
		case i >= len(actual):
			diffs = append(diffs, EventDiff{Index: i, Expected: expected[i], Type: DiffMissing})
		case reflect.TypeOf(expected[i]) != reflect.TypeOf(actual[i]) || !PayloadEqual(expected[i], actual[i]):
			diffs = append(diffs, EventDiff{Index: i, Expected: expected[i], Actual: actual[i], Type: DiffMismatch})
		}
	}

	return diffs
}

// FormatDiffs formats event diffs as a human-readable string.
func FormatDiffs(diffs []EventDiff) string {
	if len(diffs) == 0 {
		return "no differences"
	}

	var buf strings.Builder
	buf.WriteString("Event differences:\n")

	for _, diff := range diffs {
		buf.WriteString(formatDiff(diff))
	}

	return buf.String()
}

func formatDiff(diff EventDiff) string {
	var buf strings.Builder
	buf.WriteString(fmt.Sprintf("  Event %d (%s):\n", diff.Index, diff.Type))

	switch diff.Type {
	case DiffExtra:
		buf.WriteString(fmt.Sprintf("    + %T %+v (unexpected)\n", diff.Actual, Payload(diff.Actual)))
	case DiffMissing:
		buf.WriteString(fmt.Sprintf("    - %T %+v (missing)\n", diff.Expected, Payload(diff.Expected)))
	case DiffMismatch:
		buf.WriteString(fmt.Sprintf("    - %T %+v\n", diff.Expected, Payload(diff.Expected)))
		buf.WriteString(fmt.Sprintf("    + %T %+v\n", diff.Actual, Payload(diff.Actual)))
	}

	return buf.String()
}

// AssertEventsEqual compares two event slices and fails if they differ.
func AssertEventsEqual(t TB, expected, actual []kestrel.DomainEvent) {
	t.Helper()

	diffs := DiffEvents(expected, actual)
	if len(diffs) > 0 {
		t.Error(FormatDiffs(diffs))
	}
}

// EventMatcher is a function that checks if an event matches certain criteria.
type EventMatcher func(event kestrel.DomainEvent) bool

// MatchEventType returns a matcher that checks for a specific event type.
func MatchEventType(typeName string) EventMatcher {
	return func(event kestrel.DomainEvent) bool {
		return kestrel.EventType(event) == typeName
	}
}

// MatchPayload returns a matcher that checks for an equal payload.
func MatchPayload(expected kestrel.DomainEvent) EventMatcher {
	return func(event kestrel.DomainEvent) bool {
		return reflect.TypeOf(event) == reflect.TypeOf(expected) && PayloadEqual(expected, event)
	}
}

// AssertAnyMatch checks that at least one event matches the matcher.
func AssertAnyMatch(t TB, events []kestrel.DomainEvent, matcher EventMatcher) {
	t.Helper()

	for _, event := range events {
		if matcher(event) {
			return
		}
	}

	t.Error("No event matched the criteria")
}

// AssertNoneMatch checks that no events match the matcher.
func AssertNoneMatch(t TB, events []kestrel.DomainEvent, matcher EventMatcher) {
	t.Helper()

	for i, event := range events {
		if matcher(event) {
			t.Errorf("Event %d unexpectedly matched: %+v", i, Payload(event))
		}
	}
}

// CountMatches returns the number of events that match the matcher.
func CountMatches(events []kestrel.DomainEvent, matcher EventMatcher) int {
	count := 0
	for _, event := range events {
		if matcher(event) {
			count++
		}
	}
	return count
}

// FilterEvents returns events that match the matcher.
func FilterEvents(events []kestrel.DomainEvent, matcher EventMatcher) []kestrel.DomainEvent {
	var result []kestrel.DomainEvent
	for _, event := range events {
		if matcher(event) {
			result = append(result, event)
		}
	}
	return result
}

func describe(events []kestrel.DomainEvent) string {
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = fmt.Sprintf("%s%+v", kestrel.EventType(e), Payload(e))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
