// Package kafka provides a kestrel.EventPublisher that writes committed events
// to Kafka topics using github.com/segmentio/kafka-go.
//
// Messages are keyed by aggregate ID so every event of one aggregate lands on
// the same partition, in sequence order.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kestrel-es/kestrel"
)

// MessageWriter is the subset of *kafkago.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// TopicFunc selects the topic for an event. An empty result skips the event.
type TopicFunc func(event kestrel.PublishedEvent) string

// Publisher publishes committed events to Kafka.
type Publisher struct {
	brokers      []string
	balancer     kafkago.Balancer
	batchTimeout time.Duration
	transport    kafkago.RoundTripper
	topic        TopicFunc
	newWriter    func(topic string) MessageWriter

	mu      sync.RWMutex
	writers map[string]MessageWriter
}

var _ kestrel.EventPublisher = (*Publisher)(nil)

// Option configures a Kafka Publisher.
type Option func(*Publisher)

// WithBrokers sets the Kafka broker addresses.
func WithBrokers(brokers ...string) Option {
	return func(p *Publisher) {
		p.brokers = brokers
	}
}

// WithBalancer sets the message balancer (partitioner).
func WithBalancer(balancer kafkago.Balancer) Option {
	return func(p *Publisher) {
		p.balancer = balancer
	}
}

// WithBatchTimeout sets the batch timeout for the writer.
func WithBatchTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.batchTimeout = d
	}
}

// WithTransport sets the transport used by writers, e.g. for TLS or SASL.
func WithTransport(transport kafkago.RoundTripper) Option {
	return func(p *Publisher) {
		p.transport = transport
	}
}

// WithTopic publishes every event to a single topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		p.topic = func(kestrel.PublishedEvent) string { return topic }
	}
}

// WithTopicFunc routes events to topics.
func WithTopicFunc(fn TopicFunc) Option {
	return func(p *Publisher) {
		p.topic = fn
	}
}

// WithWriterFactory replaces the kafka-go writer constructor.
func WithWriterFactory(fn func(topic string) MessageWriter) Option {
	return func(p *Publisher) {
		p.newWriter = fn
	}
}

// CategoryTopic routes events to "<prefix><aggregate type>", lower-cased.
func CategoryTopic(prefix string) TopicFunc {
	return func(event kestrel.PublishedEvent) string {
		if event.AggregateType == "" {
			return ""
		}
		return prefix + strings.ToLower(event.AggregateType)
	}
}

// New creates a new Kafka Publisher. Events go to "kestrel.<aggregate type>"
// unless a topic option is given.
func New(opts ...Option) *Publisher {
	p := &Publisher{
		brokers:      []string{"localhost:9092"},
		balancer:     &kafkago.Hash{},
		batchTimeout: 10 * time.Millisecond,
		topic:        CategoryTopic("kestrel."),
		writers:      make(map[string]MessageWriter),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.newWriter == nil {
		p.newWriter = p.kafkaWriter
	}

	return p
}

// Publish writes the events, grouped by topic. All topics are attempted even
// if some fail; errors are collected and returned as a joined error.
func (p *Publisher) Publish(ctx context.Context, events []kestrel.PublishedEvent) error {
	grouped := make(map[string][]kafkago.Message)
	var order []string
	var errs []error

	for _, event := range events {
		topic := p.topic(event)
		if topic == "" {
			errs = append(errs, fmt.Errorf("kafka: no topic for event %s of stream %s", event.Type, event.StreamID))
			continue
		}
		if _, ok := grouped[topic]; !ok {
			order = append(order, topic)
		}
		grouped[topic] = append(grouped[topic], toMessage(event))
	}

	for _, topic := range order {
		if err := p.getWriter(topic).WriteMessages(ctx, grouped[topic]...); err != nil {
			errs = append(errs, fmt.Errorf("kafka: failed to write to topic %s: %w", topic, err))
		}
	}

	return errors.Join(errs...)
}

// toMessage converts a committed event to a Kafka message.
func toMessage(event kestrel.PublishedEvent) kafkago.Message {
	msg := kafkago.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Data,
		Time:  event.Timestamp,
	}
	for k, v := range event.Headers() {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return msg
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}

// getWriter returns or creates a writer for the given topic.
func (p *Publisher) getWriter(topic string) MessageWriter {
	p.mu.RLock()
	if w, ok := p.writers[topic]; ok {
		p.mu.RUnlock()
		return w
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := p.newWriter(topic)
	p.writers[topic] = w
	return w
}

func (p *Publisher) kafkaWriter(topic string) MessageWriter {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               p.balancer,
		BatchTimeout:           p.batchTimeout,
		Transport:              p.transport,
		AllowAutoTopicCreation: true,
	}
}
