// Package metrics provides Prometheus metrics for kestrel.
//
//	m := metrics.New(metrics.WithMetricsServiceName("accounts"))
//	prometheus.MustRegister(m.Collectors()...)
//
//	store := kestrel.New(m.WrapEventStore(adapter))
//	session := store.NewSession()
//	uow := m.WrapUnitOfWork(session)
//	// ... apply events through uow ...
//	err := m.Commit(ctx, session)
//
// The metrics collected include:
//   - Event store operations (append, load, stream info) with durations
//   - Events appended, loaded and applied, by type
//   - Unit of work commits
//   - Error counts by type
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kestrel-es/kestrel"
	"github.com/kestrel-es/kestrel/adapters"
)

// Default metric labels.
const (
	LabelAggregateType = "aggregate_type"
	LabelEventType     = "event_type"
	LabelOperation     = "operation"
	LabelStatus        = "status"
	LabelErrorType     = "error_type"
	LabelService       = "service"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation values.
const (
	OperationAppend          = "append"
	OperationLoad            = "load"
	OperationGetStreamInfo   = "get_stream_info"
	OperationGetLastPosition = "get_last_position"
	OperationListStreams     = "list_streams"
)

// Metrics holds all Prometheus metrics for kestrel.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	// Event store metrics
	eventStoreOperationsTotal   *prometheus.CounterVec
	eventStoreOperationDuration *prometheus.HistogramVec
	eventsAppendedTotal         *prometheus.CounterVec
	eventsLoadedTotal           *prometheus.CounterVec

	// Aggregate metrics
	eventsAppliedTotal *prometheus.CounterVec
	commitsTotal       *prometheus.CounterVec
	commitDuration     *prometheus.HistogramVec

	errorsTotal *prometheus.CounterVec
}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithSubsystem sets the Prometheus subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(m *Metrics) {
		m.subsystem = subsystem
	}
}

// WithMetricsServiceName sets the service name label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a new Metrics instance with default settings.
func New(opts ...MetricsOption) *Metrics {
	m := &Metrics{
		namespace:   "kestrel",
		serviceName: "unknown",
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()
	return m
}

func (m *Metrics) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) initMetrics() {
	m.eventStoreOperationsTotal = m.counter("eventstore_operations_total",
		"Total number of event store operations.", LabelOperation, LabelStatus)
	m.eventStoreOperationDuration = m.histogram("eventstore_operation_duration_seconds",
		"Duration of event store operations in seconds.", LabelOperation)
	m.eventsAppendedTotal = m.counter("events_appended_total",
		"Total number of events appended to streams.", LabelEventType)
	m.eventsLoadedTotal = m.counter("events_loaded_total",
		"Total number of events loaded from streams.")

	m.eventsAppliedTotal = m.counter("events_applied_total",
		"Total number of new events applied to aggregates.", LabelAggregateType, LabelEventType)
	m.commitsTotal = m.counter("commits_total",
		"Total number of unit of work commits.", LabelStatus)
	m.commitDuration = m.histogram("commit_duration_seconds",
		"Duration of unit of work commits in seconds.")

	m.errorsTotal = m.counter("errors_total",
		"Total number of errors by type.", LabelErrorType)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.eventStoreOperationsTotal,
		m.eventStoreOperationDuration,
		m.eventsAppendedTotal,
		m.eventsLoadedTotal,
		m.eventsAppliedTotal,
		m.commitsTotal,
		m.commitDuration,
		m.errorsTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// RecordError records an error under the label derived from its sentinel.
func (m *Metrics) RecordError(err error) {
	if err == nil {
		return
	}
	m.errorsTotal.WithLabelValues(m.serviceName, errorTypeName(err)).Inc()
}

// errorTypeName extracts the error type name based on sentinel errors.
func errorTypeName(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, kestrel.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, kestrel.ErrStreamNotFound):
		return "stream_not_found"
	case errors.Is(err, kestrel.ErrEventNotHandled):
		return "event_not_handled"
	case errors.Is(err, kestrel.ErrNoActiveUnitOfWork):
		return "no_active_unit_of_work"
	case errors.Is(err, kestrel.ErrArgumentInvalid):
		return "invalid_argument"
	case errors.Is(err, kestrel.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, kestrel.ErrSerializationFailed):
		return "serialization_failed"
	case errors.Is(err, kestrel.ErrPublishFailed):
		return "publish_failed"
	case errors.Is(err, kestrel.ErrNilAggregate):
		return "nil_aggregate"
	case errors.Is(err, adapters.ErrEmptyStreamID):
		return "empty_stream_id"
	case errors.Is(err, adapters.ErrNoEvents):
		return "no_events"
	case errors.Is(err, adapters.ErrInvalidVersion):
		return "invalid_version"
	case errors.Is(err, adapters.ErrAdapterClosed):
		return "adapter_closed"
	case errors.Is(err, adapters.ErrNotSupported):
		return "not_supported"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "unknown"
	}
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// =============================================================================
// Unit of work
// =============================================================================

// WrapUnitOfWork returns a UnitOfWork that counts every applied event before
// delegating to uow. A nil uow stays nil so ApplyEvent reports
// ErrNoActiveUnitOfWork.
func (m *Metrics) WrapUnitOfWork(uow kestrel.UnitOfWork) kestrel.UnitOfWork {
	if kestrel.IsNilUnitOfWork(uow) {
		return nil
	}
	return kestrel.UnitOfWorkFunc(func(source kestrel.EventSource) {
		eventType := "unknown"
		if last := kestrel.LatestPendingEvent(source); last != nil {
			eventType = kestrel.EventType(last)
		}
		m.eventsAppliedTotal.WithLabelValues(m.serviceName, source.AggregateType(), eventType).Inc()
		uow.RegisterDirty(source)
	})
}

// Committer is implemented by units of work that persist their changes,
// such as *kestrel.Session.
type Committer interface {
	Commit(ctx context.Context) error
}

// Commit commits c and records its outcome and duration.
func (m *Metrics) Commit(ctx context.Context, c Committer) error {
	start := time.Now()
	err := c.Commit(ctx)
	m.commitDuration.WithLabelValues(m.serviceName).Observe(time.Since(start).Seconds())
	m.commitsTotal.WithLabelValues(m.serviceName, status(err)).Inc()
	m.RecordError(err)
	return err
}

// =============================================================================
// Event Store Middleware
// =============================================================================

// EventStoreMiddleware wraps an EventStoreAdapter with metrics.
type EventStoreMiddleware struct {
	adapter adapters.EventStoreAdapter
	metrics *Metrics
}

var (
	_ adapters.EventStoreAdapter  = (*EventStoreMiddleware)(nil)
	_ adapters.HealthChecker      = (*EventStoreMiddleware)(nil)
	_ adapters.StreamQueryAdapter = (*EventStoreMiddleware)(nil)
)

// WrapEventStore wraps an adapter with metrics collection.
func (m *Metrics) WrapEventStore(adapter adapters.EventStoreAdapter) *EventStoreMiddleware {
	return &EventStoreMiddleware{
		adapter: adapter,
		metrics: m,
	}
}

// observe records the duration and outcome of one adapter operation.
func (em *EventStoreMiddleware) observe(operation string, start time.Time, err error) {
	m := em.metrics
	m.eventStoreOperationDuration.WithLabelValues(m.serviceName, operation).Observe(time.Since(start).Seconds())
	m.eventStoreOperationsTotal.WithLabelValues(m.serviceName, operation, status(err)).Inc()
	m.RecordError(err)
}

// Append stores events with metrics.
func (em *EventStoreMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	stored, err := em.adapter.Append(ctx, streamID, events, expectedVersion)
	em.observe(OperationAppend, start, err)

	if err == nil {
		for _, e := range events {
			em.metrics.eventsAppendedTotal.WithLabelValues(em.metrics.serviceName, e.Type).Inc()
		}
	}

	return stored, err
}

// Load retrieves events with metrics.
func (em *EventStoreMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := em.adapter.Load(ctx, streamID, fromVersion)
	em.observe(OperationLoad, start, err)

	if err == nil {
		em.metrics.eventsLoadedTotal.WithLabelValues(em.metrics.serviceName).Add(float64(len(events)))
	}

	return events, err
}

// GetStreamInfo returns stream metadata with metrics.
func (em *EventStoreMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	start := time.Now()
	info, err := em.adapter.GetStreamInfo(ctx, streamID)
	em.observe(OperationGetStreamInfo, start, err)
	return info, err
}

// GetLastPosition returns the last global position with metrics.
func (em *EventStoreMiddleware) GetLastPosition(ctx context.Context) (uint64, error) {
	start := time.Now()
	pos, err := em.adapter.GetLastPosition(ctx)
	em.observe(OperationGetLastPosition, start, err)
	return pos, err
}

// ListStreams lists streams with metrics.
// Returns adapters.ErrNotSupported if the wrapped adapter cannot list streams.
func (em *EventStoreMiddleware) ListStreams(ctx context.Context, prefix string, limit int) ([]adapters.StreamSummary, error) {
	q, ok := em.adapter.(adapters.StreamQueryAdapter)
	if !ok {
		return nil, adapters.ErrNotSupported
	}

	start := time.Now()
	streams, err := q.ListStreams(ctx, prefix, limit)
	em.observe(OperationListStreams, start, err)
	return streams, err
}

// Ping checks the wrapped adapter when it supports health checks.
func (em *EventStoreMiddleware) Ping(ctx context.Context) error {
	if hc, ok := em.adapter.(adapters.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// Initialize initializes the wrapped adapter.
func (em *EventStoreMiddleware) Initialize(ctx context.Context) error {
	return em.adapter.Initialize(ctx)
}

// Close closes the wrapped adapter.
func (em *EventStoreMiddleware) Close() error {
	return em.adapter.Close()
}

// =============================================================================
// Getters for testing
// =============================================================================

// EventStoreOperationsTotal returns the event store operations counter.
func (m *Metrics) EventStoreOperationsTotal() *prometheus.CounterVec {
	return m.eventStoreOperationsTotal
}

// EventStoreOperationDuration returns the event store duration histogram.
func (m *Metrics) EventStoreOperationDuration() *prometheus.HistogramVec {
	return m.eventStoreOperationDuration
}

// EventsAppendedTotal returns the events appended counter.
func (m *Metrics) EventsAppendedTotal() *prometheus.CounterVec {
	return m.eventsAppendedTotal
}

// EventsLoadedTotal returns the events loaded counter.
func (m *Metrics) EventsLoadedTotal() *prometheus.CounterVec {
	return m.eventsLoadedTotal
}

// EventsAppliedTotal returns the events applied counter.
func (m *Metrics) EventsAppliedTotal() *prometheus.CounterVec {
	return m.eventsAppliedTotal
}

// CommitsTotal returns the commits counter.
func (m *Metrics) CommitsTotal() *prometheus.CounterVec {
	return m.commitsTotal
}

// CommitDuration returns the commit duration histogram.
func (m *Metrics) CommitDuration() *prometheus.HistogramVec {
	return m.commitDuration
}

// ErrorsTotal returns the errors counter.
func (m *Metrics) ErrorsTotal() *prometheus.CounterVec {
	return m.errorsTotal
}
