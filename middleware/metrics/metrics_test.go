package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-es/kestrel"
	"github.com/kestrel-es/kestrel/adapters"
	"github.com/kestrel-es/kestrel/adapters/memory"
	kestreltest "github.com/kestrel-es/kestrel/testing/testutil"
)

func TestNew(t *testing.T) {
	t.Run("creates metrics with defaults", func(t *testing.T) {
		m := New()

		assert.Equal(t, "kestrel", m.namespace)
		assert.Equal(t, "unknown", m.serviceName)
		assert.Len(t, m.Collectors(), 8)
	})

	t.Run("with custom options", func(t *testing.T) {
		m := New(
			WithNamespace("custom"),
			WithSubsystem("events"),
			WithMetricsServiceName("accounts"),
		)

		assert.Equal(t, "custom", m.namespace)
		assert.Equal(t, "events", m.subsystem)
		assert.Equal(t, "accounts", m.serviceName)
	})
}

func TestMetrics_Register(t *testing.T) {
	t.Run("registers with custom registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		m := New()

		require.NoError(t, m.Register(registry))
	})

	t.Run("fails on duplicate registration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		m := New()
		require.NoError(t, m.Register(registry))

		assert.Error(t, m.Register(registry))
	})
}

func TestEventStoreMiddleware_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("records success", func(t *testing.T) {
		m := New(WithMetricsServiceName("svc"))
		wrapped := m.WrapEventStore(memory.NewAdapter())

		_, err := wrapped.Append(ctx, "Account-1", []adapters.EventRecord{
			{Type: "Deposited"}, {Type: "Deposited"}, {Type: "Withdrawn"},
		}, adapters.NoStream)
		require.NoError(t, err)

		assert.Equal(t, float64(1), testutil.ToFloat64(m.EventStoreOperationsTotal().WithLabelValues("svc", OperationAppend, StatusSuccess)))
		assert.Equal(t, float64(2), testutil.ToFloat64(m.EventsAppendedTotal().WithLabelValues("svc", "Deposited")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsAppendedTotal().WithLabelValues("svc", "Withdrawn")))
	})

	t.Run("records conflict by error type", func(t *testing.T) {
		m := New(WithMetricsServiceName("svc"))
		wrapped := m.WrapEventStore(memory.NewAdapter())

		_, err := wrapped.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "A"}}, adapters.NoStream)
		require.NoError(t, err)
		_, err = wrapped.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "A"}}, adapters.NoStream)
		require.ErrorIs(t, err, adapters.ErrConcurrencyConflict)

		assert.Equal(t, float64(1), testutil.ToFloat64(m.EventStoreOperationsTotal().WithLabelValues("svc", OperationAppend, StatusError)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsTotal().WithLabelValues("svc", "concurrency_conflict")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsAppendedTotal().WithLabelValues("svc", "A")))
	})
}

func TestEventStoreMiddleware_Reads(t *testing.T) {
	ctx := context.Background()
	m := New(WithMetricsServiceName("svc"))
	wrapped := m.WrapEventStore(memory.NewAdapter())

	_, err := wrapped.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "A"}, {Type: "B"}}, adapters.NoStream)
	require.NoError(t, err)

	events, err := wrapped.Load(ctx, "Account-1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.EventsLoadedTotal().WithLabelValues("svc")))

	_, err = wrapped.GetStreamInfo(ctx, "Account-404")
	assert.ErrorIs(t, err, adapters.ErrStreamNotFound)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventStoreOperationsTotal().WithLabelValues("svc", OperationGetStreamInfo, StatusError)))

	pos, err := wrapped.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), pos)

	streams, err := wrapped.ListStreams(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, streams, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventStoreOperationsTotal().WithLabelValues("svc", OperationListStreams, StatusSuccess)))

	assert.NoError(t, wrapped.Ping(ctx))
	assert.NoError(t, wrapped.Initialize(ctx))
	assert.NoError(t, wrapped.Close())
	assert.ErrorIs(t, wrapped.Ping(ctx), adapters.ErrAdapterClosed)
}

func TestEventStoreMiddleware_WithoutOptionalCapabilities(t *testing.T) {
	ctx := context.Background()
	m := New()
	wrapped := m.WrapEventStore(&kestreltest.MockAdapter{})

	_, err := wrapped.ListStreams(ctx, "", 10)
	assert.ErrorIs(t, err, adapters.ErrNotSupported)
	assert.NoError(t, wrapped.Ping(ctx))
}

func TestMetrics_WrapUnitOfWork(t *testing.T) {
	m := New(WithMetricsServiceName("svc"))
	store := kestrel.New(memory.NewAdapter())
	session := store.NewSession()
	uow := m.WrapUnitOfWork(session)

	acc := kestreltest.NewAccount()
	require.NoError(t, acc.OpenAccount(uow, "ada"))
	require.NoError(t, acc.Deposit(uow, 10))
	require.NoError(t, acc.Deposit(uow, 5))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsAppliedTotal().WithLabelValues("svc", "Account", "AccountOpened")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.EventsAppliedTotal().WithLabelValues("svc", "Account", "Deposited")))
	assert.Len(t, session.Dirty(), 1)
}

func TestMetrics_WrapUnitOfWork_Nil(t *testing.T) {
	m := New(WithMetricsServiceName("svc"))

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, m.WrapUnitOfWork(nil))
		assert.Nil(t, m.WrapUnitOfWork((*kestrel.Session)(nil)))
	})

	t.Run("apply reports no unit of work", func(t *testing.T) {
		acc := kestreltest.NewAccount()

		err := acc.OpenAccount(m.WrapUnitOfWork(nil), "ada")

		assert.ErrorIs(t, err, kestrel.ErrNoActiveUnitOfWork)
		assert.Equal(t, int64(0), acc.Version())
		assert.Empty(t, acc.UncommittedEvents())
		assert.Equal(t, float64(0), testutil.ToFloat64(m.EventsAppliedTotal().WithLabelValues("svc", "Account", "AccountOpened")))
	})
}

func TestMetrics_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		m := New(WithMetricsServiceName("svc"))
		store := kestrel.New(memory.NewAdapter())
		kestreltest.RegisterTestEvents(store)
		session := store.NewSession()

		acc := kestreltest.NewAccount()
		require.NoError(t, acc.OpenAccount(session, "ada"))

		require.NoError(t, m.Commit(ctx, session))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.CommitsTotal().WithLabelValues("svc", StatusSuccess)))
		assert.Equal(t, 1, testutil.CollectAndCount(m.CommitDuration()))
	})

	t.Run("failure", func(t *testing.T) {
		m := New(WithMetricsServiceName("svc"))
		store := kestrel.New(&kestreltest.MockAdapter{AppendErr: adapters.NewConcurrencyError("Account-1", 0, 1)})
		session := store.NewSession()

		acc := kestreltest.NewAccount()
		require.NoError(t, acc.OpenAccount(session, "ada"))

		err := m.Commit(ctx, session)
		assert.ErrorIs(t, err, kestrel.ErrConcurrencyConflict)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.CommitsTotal().WithLabelValues("svc", StatusError)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsTotal().WithLabelValues("svc", "concurrency_conflict")))
	})
}

func TestErrorTypeName(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{adapters.NewConcurrencyError("s", 1, 2), "concurrency_conflict"},
		{adapters.NewStreamNotFoundError("s"), "stream_not_found"},
		{kestrel.NewEventNotHandledError("Deposited", "Account"), "event_not_handled"},
		{kestrel.ErrNoActiveUnitOfWork, "no_active_unit_of_work"},
		{kestrel.NewArgumentError("event", "cannot be nil"), "invalid_argument"},
		{kestrel.NewStateError("assign id", "loaded"), "invalid_state"},
		{kestrel.NewSerializationError("A", "serialize", errors.New("x")), "serialization_failed"},
		{&kestrel.PublishError{StreamID: "s", Cause: errors.New("x")}, "publish_failed"},
		{kestrel.ErrNilAggregate, "nil_aggregate"},
		{adapters.ErrEmptyStreamID, "empty_stream_id"},
		{adapters.ErrNoEvents, "no_events"},
		{adapters.ErrInvalidVersion, "invalid_version"},
		{adapters.ErrAdapterClosed, "adapter_closed"},
		{adapters.ErrNotSupported, "not_supported"},
		{context.Canceled, "context"},
		{fmt.Errorf("wrapped: %w", adapters.ErrNoEvents), "no_events"},
		{errors.New("other"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, errorTypeName(tt.err))
		})
	}
}

func TestMetrics_RecordError(t *testing.T) {
	m := New(WithMetricsServiceName("svc"))

	m.RecordError(nil)
	m.RecordError(kestrel.ErrNoActiveUnitOfWork)

	assert.Equal(t, 1, testutil.CollectAndCount(m.ErrorsTotal()))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsTotal().WithLabelValues("svc", "no_active_unit_of_work")))
}
