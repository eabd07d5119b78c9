// Package sns provides a kestrel.EventPublisher that sends committed events
// to AWS SNS topics.
package sns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/kestrel-es/kestrel"
)

// maxAttributes is the SNS limit on message attributes per message.
const maxAttributes = 10

// SNSClient defines the subset of the SNS API used by the publisher.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicFunc selects the topic ARN for an event. An empty result is an error.
type TopicFunc func(event kestrel.PublishedEvent) string

// Publisher publishes committed events to AWS SNS topics.
type Publisher struct {
	client         SNSClient
	topic          TopicFunc
	messageGroupID string
}

var _ kestrel.EventPublisher = (*Publisher)(nil)

// Option configures an SNS Publisher.
type Option func(*Publisher)

// WithSNSClient sets the SNS client.
func WithSNSClient(client SNSClient) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// WithTopicARN publishes every event to one topic.
func WithTopicARN(arn string) Option {
	return func(p *Publisher) {
		p.topic = func(kestrel.PublishedEvent) string { return arn }
	}
}

// WithTopicFunc routes events to topics.
func WithTopicFunc(fn TopicFunc) Option {
	return func(p *Publisher) {
		p.topic = fn
	}
}

// WithMessageGroupID fixes the message group ID used for FIFO topics.
// By default the stream ID is used so each aggregate stays ordered.
func WithMessageGroupID(groupID string) Option {
	return func(p *Publisher) {
		p.messageGroupID = groupID
	}
}

// New creates a new SNS Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Publish sends each event as one SNS message.
// All events are attempted even if some fail; errors are collected and returned as a joined error.
func (p *Publisher) Publish(ctx context.Context, events []kestrel.PublishedEvent) error {
	if p.client == nil {
		return fmt.Errorf("sns: client not configured")
	}
	if p.topic == nil {
		return fmt.Errorf("sns: topic not configured")
	}

	var errs []error
	for _, event := range events {
		topicARN := p.topic(event)
		if topicARN == "" {
			errs = append(errs, fmt.Errorf("sns: no topic for event %s of stream %s", event.Type, event.StreamID))
			continue
		}

		input := p.buildInput(topicARN, event)
		if _, err := p.client.Publish(ctx, input); err != nil {
			errs = append(errs, fmt.Errorf("sns: failed to publish %s to %s: %w", event.EventID, topicARN, err))
		}
	}

	return errors.Join(errs...)
}

func (p *Publisher) buildInput(topicARN string, event kestrel.PublishedEvent) *sns.PublishInput {
	input := &sns.PublishInput{
		TopicArn:          stringPtr(topicARN),
		Message:           stringPtr(string(event.Data)),
		MessageAttributes: attributes(event),
	}

	if isFIFO(topicARN) {
		groupID := p.messageGroupID
		if groupID == "" {
			groupID = event.StreamID
		}
		input.MessageGroupId = stringPtr(groupID)
		input.MessageDeduplicationId = stringPtr(event.EventID)
	}

	return input
}

// attributes converts event headers to SNS message attributes. Standard
// headers come first; custom metadata fills the remaining slots in key order.
func attributes(event kestrel.PublishedEvent) map[string]types.MessageAttributeValue {
	headers := event.Headers()

	standard := []string{
		kestrel.HeaderEventID,
		kestrel.HeaderEventType,
		kestrel.HeaderStreamID,
		kestrel.HeaderAggregateType,
		kestrel.HeaderAggregateID,
		kestrel.HeaderSequence,
		kestrel.HeaderCorrelationID,
		kestrel.HeaderCausationID,
		kestrel.HeaderUserID,
		kestrel.HeaderTenantID,
	}

	attrs := make(map[string]types.MessageAttributeValue, maxAttributes)
	add := func(k string) {
		v, ok := headers[k]
		if !ok || len(attrs) >= maxAttributes {
			return
		}
		attrs[k] = types.MessageAttributeValue{
			DataType:    stringPtr("String"),
			StringValue: stringPtr(v),
		}
		delete(headers, k)
	}

	for _, k := range standard {
		add(k)
	}

	custom := make([]string, 0, len(headers))
	for k := range headers {
		custom = append(custom, k)
	}
	sort.Strings(custom)
	for _, k := range custom {
		add(k)
	}

	return attrs
}

func isFIFO(topicARN string) bool {
	return strings.HasSuffix(topicARN, ".fifo")
}

func stringPtr(s string) *string {
	return &s
}
