// Package bdd provides Given-When-Then test fixtures for event-sourced
// aggregates.
//
//	bdd.Given(t, testutil.NewAccount(), &testutil.AccountOpened{Owner: "alice"}).
//	    When(func(uow kestrel.UnitOfWork) error { return account.Deposit(uow, 10) }).
//	    Then(&testutil.Deposited{Amount: 10})
package bdd

import (
	"errors"
	"strings"
	"testing"

	"github.com/kestrel-es/kestrel"
	"github.com/kestrel-es/kestrel/testing/assertions"
	"github.com/kestrel-es/kestrel/testing/testutil"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// TestFixture drives one command against an aggregate rebuilt from history.
type TestFixture struct {
	t         TB
	aggregate kestrel.EventSource
	history   []kestrel.DomainEvent
	uow       *testutil.RecordingUnitOfWork
	result    error
	executed  bool
}

// Given sets up the aggregate with optional historical events. The history
// is replayed when When is called.
func Given(t TB, aggregate kestrel.EventSource, history ...kestrel.DomainEvent) *TestFixture {
	t.Helper()
	return &TestFixture{
		t:         t,
		aggregate: aggregate,
		history:   history,
		uow:       testutil.NewRecordingUnitOfWork(),
	}
}

// When replays the history and runs the command with a recording unit of work.
func (f *TestFixture) When(command func(uow kestrel.UnitOfWork) error) *TestFixture {
	f.t.Helper()

	if len(f.history) > 0 {
		if err := f.aggregate.InitializeFromHistory(f.history); err != nil {
			f.t.Fatalf("bdd: failed to replay history: %v", err)
		}
	}

	f.result = command(f.uow)
	f.executed = true

	return f
}

// Then asserts the command succeeded and produced exactly the expected events.
// It also checks the events are owned by the aggregate, numbered right after
// the history, and that the aggregate registered itself with the unit of work.
func (f *TestFixture) Then(expected ...kestrel.DomainEvent) *TestFixture {
	f.t.Helper()
	f.requireSuccess("Then")

	actual := f.aggregate.UncommittedEvents()
	if diffs := assertions.DiffEvents(expected, actual); len(diffs) > 0 {
		f.t.Errorf("bdd: unexpected events\n%s", assertions.FormatDiffs(diffs))
		return f
	}

	assertions.AssertOwnedBy(f.t, actual, f.aggregate.ID())
	assertions.AssertSequences(f.t, actual, int64(len(f.history))+1)

	if len(actual) > 0 && f.uow.CallCount() != len(actual) {
		f.t.Errorf("bdd: expected %d dirty registrations, got %d", len(actual), f.uow.CallCount())
	}

	return f
}

// ThenNoEvents asserts the command succeeded without producing events.
func (f *TestFixture) ThenNoEvents() *TestFixture {
	f.t.Helper()
	f.requireSuccess("ThenNoEvents")

	assertions.AssertNoEvents(f.t, f.aggregate.UncommittedEvents())
	if f.uow.CallCount() != 0 {
		f.t.Errorf("bdd: expected no dirty registrations, got %d", f.uow.CallCount())
	}
	return f
}

// ThenError asserts the command failed with expectedErr and left no events.
func (f *TestFixture) ThenError(expectedErr error) {
	f.t.Helper()
	f.requireFailure("ThenError")

	if !errors.Is(f.result, expectedErr) {
		f.t.Errorf("Expected error %v, got %v", expectedErr, f.result)
	}
	f.assertUnchanged()
}

// ThenErrorContains asserts the error message contains a substring.
func (f *TestFixture) ThenErrorContains(substring string) {
	f.t.Helper()
	f.requireFailure("ThenErrorContains")

	if !strings.Contains(f.result.Error(), substring) {
		f.t.Errorf("Expected error containing %q, got %q", substring, f.result.Error())
	}
	f.assertUnchanged()
}

// ThenVersion asserts the aggregate's current version.
func (f *TestFixture) ThenVersion(expected int64) *TestFixture {
	f.t.Helper()

	if !f.executed {
		f.t.Fatal("bdd: ThenVersion() must be called after When() - no command was executed")
	}
	if v := f.aggregate.Version(); v != expected {
		f.t.Errorf("Expected version %d, got %d", expected, v)
	}
	return f
}

// ThenState runs check against the aggregate, for assertions on its fields.
func (f *TestFixture) ThenState(check func(t TB)) *TestFixture {
	f.t.Helper()

	if !f.executed {
		f.t.Fatal("bdd: ThenState() must be called after When() - no command was executed")
	}
	check(f.t)
	return f
}

func (f *TestFixture) requireSuccess(step string) {
	f.t.Helper()

	if !f.executed {
		f.t.Fatalf("bdd: %s() must be called after When() - no command was executed", step)
	}
	if f.result != nil {
		f.t.Fatalf("Expected success but got error: %v", f.result)
	}
}

func (f *TestFixture) requireFailure(step string) {
	f.t.Helper()

	if !f.executed {
		f.t.Fatalf("bdd: %s() must be called after When() - no command was executed", step)
	}
	if f.result == nil {
		f.t.Fatal("Expected error but got success")
	}
}

// assertUnchanged checks a failed command applied nothing.
func (f *TestFixture) assertUnchanged() {
	f.t.Helper()

	if n := len(f.aggregate.UncommittedEvents()); n > 0 {
		f.t.Errorf("bdd: failed command left %d uncommitted events", n)
	}
	if v, want := f.aggregate.Version(), int64(len(f.history)); v != want {
		f.t.Errorf("bdd: failed command moved version from %d to %d", want, v)
	}
}
