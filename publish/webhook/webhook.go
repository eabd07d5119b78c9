// Package webhook provides a kestrel.EventPublisher that POSTs committed
// events to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kestrel-es/kestrel"
)

// HeaderPrefix is prepended to event headers on outgoing requests.
const HeaderPrefix = "X-Kestrel-"

// Publisher publishes each committed event as an HTTP POST request.
type Publisher struct {
	url            string
	client         *http.Client
	defaultHeaders map[string]string
}

var _ kestrel.EventPublisher = (*Publisher)(nil)

// Option configures a webhook Publisher.
type Option func(*Publisher)

// WithURL sets the endpoint events are posted to.
func WithURL(url string) Option {
	return func(p *Publisher) {
		p.url = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.client.Timeout = d
	}
}

// WithDefaultHeaders sets headers added to all requests.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(p *Publisher) {
		for k, v := range headers {
			p.defaultHeaders[k] = v
		}
	}
}

// New creates a new webhook Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		defaultHeaders: map[string]string{
			"Content-Type": "application/json",
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Publish posts the events one by one, stopping at the first failure.
// Any response status of 400 or above is a failure.
func (p *Publisher) Publish(ctx context.Context, events []kestrel.PublishedEvent) error {
	if p.url == "" {
		return fmt.Errorf("webhook: url not configured")
	}

	for _, event := range events {
		if err := p.post(ctx, event); err != nil {
			return err
		}
	}

	return nil
}

func (p *Publisher) post(ctx context.Context, event kestrel.PublishedEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(event.Data))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	for k, v := range p.defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range event.Headers() {
		req.Header.Set(HeaderPrefix+headerName(k), v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed for %s: %w", p.url, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook: server error %d for event %s", resp.StatusCode, event.EventID)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: client error %d for event %s", resp.StatusCode, event.EventID)
	}

	return nil
}

// headerName turns "event-type" into "Event-Type".
func headerName(key string) string {
	parts := strings.Split(key, "-")
	for i, part := range parts {
		if part != "" {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "-")
}
