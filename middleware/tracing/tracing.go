// Package tracing provides OpenTelemetry integration for kestrel.
//
//	tp := sdktrace.NewTracerProvider(...)
//	otel.SetTracerProvider(tp)
//
//	tracer := tracing.NewTracer(tracing.WithServiceName("accounts"))
//	store := kestrel.New(tracing.NewEventStoreMiddleware(adapter, tracer),
//	    kestrel.WithPublisher(tracing.NewPublisherMiddleware(publisher, tracer)))
//
//	session := store.NewSession()
//	uow := tracing.WrapUnitOfWork(ctx, session)
//	// ... apply events through uow ...
//	err := tracing.TraceCommit(ctx, tracer, session)
//
// Spans carry the stream, versions and event types involved; failures are
// recorded on the span with an error status.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrel-es/kestrel"
	"github.com/kestrel-es/kestrel/adapters"
)

const (
	// TracerName is the name of the kestrel tracer.
	TracerName = "github.com/kestrel-es/kestrel"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "kestrel"
)

// Tracer wraps OpenTelemetry tracer for kestrel operations.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		t.tracer = tp.Tracer(TracerName)
	}
}

// WithServiceName sets the service name for spans.
func WithServiceName(name string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// NewTracer creates a new Tracer with the global TracerProvider.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(TracerName),
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

func (t *Tracer) startClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.StartSpan(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("kestrel.service", t.serviceName))
	span.SetAttributes(attrs...)
	return ctx, span
}

// finish records the outcome of an operation on span.
func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// =============================================================================
// Event Store Middleware
// =============================================================================

// EventStoreMiddleware wraps an EventStoreAdapter with tracing.
type EventStoreMiddleware struct {
	adapter adapters.EventStoreAdapter
	tracer  *Tracer
}

var (
	_ adapters.EventStoreAdapter  = (*EventStoreMiddleware)(nil)
	_ adapters.HealthChecker      = (*EventStoreMiddleware)(nil)
	_ adapters.StreamQueryAdapter = (*EventStoreMiddleware)(nil)
)

// NewEventStoreMiddleware wraps an adapter with tracing.
func NewEventStoreMiddleware(adapter adapters.EventStoreAdapter, tracer *Tracer) *EventStoreMiddleware {
	return &EventStoreMiddleware{
		adapter: adapter,
		tracer:  tracer,
	}
}

// Append stores events with tracing.
func (m *EventStoreMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := m.tracer.startClientSpan(ctx, "eventstore.append",
		attribute.String("kestrel.stream_id", streamID),
		attribute.Int64("kestrel.expected_version", expectedVersion),
		attribute.Int("kestrel.events.count", len(events)),
	)
	defer span.End()

	if len(events) > 0 {
		eventTypes := make([]string, len(events))
		for i, e := range events {
			eventTypes[i] = e.Type
		}
		span.SetAttributes(attribute.StringSlice("kestrel.events.types", eventTypes))
	}

	stored, err := m.adapter.Append(ctx, streamID, events, expectedVersion)
	finish(span, err)

	if err == nil && len(stored) > 0 {
		last := stored[len(stored)-1]
		span.SetAttributes(
			attribute.Int64("kestrel.stored.version", last.Version),
			attribute.Int64("kestrel.stored.global_position", int64(last.GlobalPosition)),
		)
	}

	return stored, err
}

// Load retrieves events with tracing.
func (m *EventStoreMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := m.tracer.startClientSpan(ctx, "eventstore.load",
		attribute.String("kestrel.stream_id", streamID),
		attribute.Int64("kestrel.from_version", fromVersion),
	)
	defer span.End()

	events, err := m.adapter.Load(ctx, streamID, fromVersion)
	finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("kestrel.events.loaded", len(events)))
	}

	return events, err
}

// GetStreamInfo returns stream metadata with tracing.
func (m *EventStoreMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	ctx, span := m.tracer.startClientSpan(ctx, "eventstore.get_stream_info",
		attribute.String("kestrel.stream_id", streamID),
	)
	defer span.End()

	info, err := m.adapter.GetStreamInfo(ctx, streamID)
	finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int64("kestrel.stream.version", info.Version))
	}

	return info, err
}

// GetLastPosition returns the last global position with tracing.
func (m *EventStoreMiddleware) GetLastPosition(ctx context.Context) (uint64, error) {
	ctx, span := m.tracer.startClientSpan(ctx, "eventstore.get_last_position")
	defer span.End()

	pos, err := m.adapter.GetLastPosition(ctx)
	finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int64("kestrel.last_position", int64(pos)))
	}

	return pos, err
}

// ListStreams lists streams with tracing.
// Returns adapters.ErrNotSupported if the wrapped adapter cannot list streams.
func (m *EventStoreMiddleware) ListStreams(ctx context.Context, prefix string, limit int) ([]adapters.StreamSummary, error) {
	q, ok := m.adapter.(adapters.StreamQueryAdapter)
	if !ok {
		return nil, adapters.ErrNotSupported
	}

	ctx, span := m.tracer.startClientSpan(ctx, "eventstore.list_streams",
		attribute.String("kestrel.prefix", prefix),
		attribute.Int("kestrel.limit", limit),
	)
	defer span.End()

	streams, err := q.ListStreams(ctx, prefix, limit)
	finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("kestrel.streams.count", len(streams)))
	}

	return streams, err
}

// Ping checks the wrapped adapter when it supports health checks.
func (m *EventStoreMiddleware) Ping(ctx context.Context) error {
	if hc, ok := m.adapter.(adapters.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// Initialize initializes the adapter with tracing.
func (m *EventStoreMiddleware) Initialize(ctx context.Context) error {
	ctx, span := m.tracer.startClientSpan(ctx, "eventstore.initialize")
	defer span.End()

	err := m.adapter.Initialize(ctx)
	finish(span, err)
	return err
}

// Close closes the adapter.
func (m *EventStoreMiddleware) Close() error {
	return m.adapter.Close()
}

// =============================================================================
// Publisher Middleware
// =============================================================================

// PublisherMiddleware wraps an EventPublisher with tracing.
type PublisherMiddleware struct {
	publisher kestrel.EventPublisher
	tracer    *Tracer
}

var _ kestrel.EventPublisher = (*PublisherMiddleware)(nil)

// NewPublisherMiddleware wraps a publisher with tracing.
func NewPublisherMiddleware(publisher kestrel.EventPublisher, tracer *Tracer) *PublisherMiddleware {
	return &PublisherMiddleware{
		publisher: publisher,
		tracer:    tracer,
	}
}

// Publish forwards events with a producer span around the call.
func (m *PublisherMiddleware) Publish(ctx context.Context, events []kestrel.PublishedEvent) error {
	ctx, span := m.tracer.StartSpan(ctx, "publisher.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	span.SetAttributes(
		attribute.String("kestrel.service", m.tracer.serviceName),
		attribute.Int("kestrel.events.count", len(events)),
	)
	if len(events) > 0 {
		span.SetAttributes(attribute.String("kestrel.stream_id", events[0].StreamID))
	}

	err := m.publisher.Publish(ctx, events)
	finish(span, err)
	return err
}

// =============================================================================
// Unit of Work
// =============================================================================

// WrapUnitOfWork returns a UnitOfWork that adds an "event.applied" span event
// to the span in ctx for every applied event before delegating to uow.
// A nil uow stays nil.
func WrapUnitOfWork(ctx context.Context, uow kestrel.UnitOfWork) kestrel.UnitOfWork {
	if kestrel.IsNilUnitOfWork(uow) {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	return kestrel.UnitOfWorkFunc(func(source kestrel.EventSource) {
		attrs := []attribute.KeyValue{
			attribute.String("kestrel.aggregate.type", source.AggregateType()),
			attribute.String("kestrel.aggregate.id", source.ID().String()),
			attribute.Int64("kestrel.aggregate.version", source.Version()),
		}
		if last := kestrel.LatestPendingEvent(source); last != nil {
			attrs = append(attrs, attribute.String("kestrel.event.type", kestrel.EventType(last)))
		}
		span.AddEvent("event.applied", trace.WithAttributes(attrs...))
		uow.RegisterDirty(source)
	})
}

// Committer is implemented by units of work that persist their changes,
// such as *kestrel.Session.
type Committer interface {
	Commit(ctx context.Context) error
}

// TraceCommit commits c inside a "unitofwork.commit" span.
// When c exposes its dirty aggregates, their count is recorded.
func TraceCommit(ctx context.Context, tracer *Tracer, c Committer) error {
	ctx, span := tracer.StartSpan(ctx, "unitofwork.commit", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	span.SetAttributes(attribute.String("kestrel.service", tracer.serviceName))
	if d, ok := c.(interface{ Dirty() []kestrel.EventSource }); ok {
		span.SetAttributes(attribute.Int("kestrel.aggregates.count", len(d.Dirty())))
	}

	err := c.Commit(ctx)
	finish(span, err)
	return err
}

// =============================================================================
// Span Helpers
// =============================================================================

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).AddEvent(name, opts...)
}

// SetError sets an error on the current span. A nil error is ignored.
func SetError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	finish(trace.SpanFromContext(ctx), err)
}
