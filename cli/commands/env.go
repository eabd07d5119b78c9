package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kestrel-es/kestrel"
	"github.com/kestrel-es/kestrel/adapters"
	"github.com/kestrel-es/kestrel/adapters/memory"
	"github.com/kestrel-es/kestrel/adapters/postgres"
	"github.com/kestrel-es/kestrel/cli/config"
	"github.com/kestrel-es/kestrel/logging"
	"github.com/kestrel-es/kestrel/middleware/metrics"
	"github.com/kestrel-es/kestrel/middleware/tracing"
	"github.com/kestrel-es/kestrel/publish/kafka"
	snspub "github.com/kestrel-es/kestrel/publish/sns"
	"github.com/kestrel-es/kestrel/publish/webhook"
	"github.com/kestrel-es/kestrel/serializer/msgpack"
)

// connectTimeout bounds the initial database ping so bad URLs fail fast.
const connectTimeout = 5 * time.Second

// StoreAdapter is what the CLI needs from a storage backend.
type StoreAdapter interface {
	adapters.EventStoreAdapter
	adapters.StreamQueryAdapter
	adapters.HealthChecker
}

// Env is everything a command needs to talk to the configured event store.
type Env struct {
	Config   *config.Config
	Logger   *logging.Logger
	Adapter  StoreAdapter
	Store    *kestrel.EventStore
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Tracer   *tracing.Tracer

	closers []func() error
}

// Close releases the adapter and publishers, newest first.
func (e *Env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	e.Logger.Sync()
	return errors.Join(errs...)
}

// OpenEnv builds the adapter, serializer, publishers and middleware described
// by cfg. A nil tracer disables tracing.
func OpenEnv(ctx context.Context, cfg *config.Config, tracer *tracing.Tracer) (*Env, error) {
	logger, err := logging.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger = logger.With("service", cfg.Project.Name)

	env := &Env{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Tracer:   tracer,
	}

	raw, err := newAdapter(ctx, cfg)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	env.closers = append(env.closers, raw.Close)

	env.Metrics = metrics.New(metrics.WithMetricsServiceName(cfg.Project.Name))
	if err := env.Metrics.Register(env.Registry); err != nil {
		_ = env.Close()
		return nil, err
	}

	var adapter StoreAdapter = env.Metrics.WrapEventStore(raw)
	if tracer != nil {
		adapter = tracing.NewEventStoreMiddleware(adapter, tracer)
	}
	env.Adapter = adapter

	serializer, err := newSerializer(cfg.Serializer.Format)
	if err != nil {
		_ = env.Close()
		return nil, err
	}

	opts := []kestrel.Option{
		kestrel.WithSerializer(serializer),
		kestrel.WithLogger(logger),
	}
	for _, p := range env.publishers() {
		opts = append(opts, kestrel.WithPublisher(p))
	}

	env.Store = kestrel.New(adapter, opts...)
	return env, nil
}

// newAdapter opens the configured storage backend.
func newAdapter(ctx context.Context, cfg *config.Config) (StoreAdapter, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		return memory.NewAdapter(), nil

	case config.DriverPostgres, "postgresql":
		pg, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return pg, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

// openPostgres connects to PostgreSQL and checks the connection.
func openPostgres(ctx context.Context, cfg *config.Config) (*postgres.PostgresAdapter, error) {
	url := cfg.DatabaseURL()
	if url == "" {
		return nil, fmt.Errorf("database url is not set (check DATABASE_URL)")
	}

	opts := []postgres.Option{postgres.WithSchema(cfg.Database.Schema)}
	if cfg.Database.SQLDriver != "" {
		opts = append(opts, postgres.WithDriver(cfg.Database.SQLDriver))
	}

	adapter, err := postgres.NewAdapter(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres adapter: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ensureContext(ctx), connectTimeout)
	defer cancel()

	if err := adapter.Ping(pingCtx); err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return adapter, nil
}

func newSerializer(format string) (kestrel.Serializer, error) {
	switch format {
	case "", config.FormatJSON:
		return kestrel.NewJSONSerializer(), nil
	case config.FormatMsgpack:
		return msgpack.NewSerializer(), nil
	default:
		return nil, fmt.Errorf("unsupported serializer format: %s", format)
	}
}

// publishers builds the publishers enabled in the config, each wrapped for
// tracing when a tracer is set.
func (e *Env) publishers() []kestrel.EventPublisher {
	pc := e.Config.Publish
	var out []kestrel.EventPublisher

	if len(pc.Kafka.Brokers) > 0 {
		p := kafka.New(kafka.WithBrokers(pc.Kafka.Brokers...), kafka.WithTopic(pc.Kafka.Topic))
		e.closers = append(e.closers, p.Close)
		out = append(out, p)
	}
	if pc.SNS.TopicARN != "" {
		client := sns.New(sns.Options{
			Region:      pc.SNS.Region,
			Credentials: envCredentials(),
		})
		out = append(out, snspub.New(snspub.WithSNSClient(client), snspub.WithTopicARN(pc.SNS.TopicARN)))
	}
	if pc.Webhook.URL != "" {
		out = append(out, webhook.New(webhook.WithURL(pc.Webhook.URL)))
	}

	if e.Tracer != nil {
		for i, p := range out {
			out[i] = tracing.NewPublisherMiddleware(p, e.Tracer)
		}
	}
	return out
}

// envCredentials reads static AWS credentials from the standard environment variables.
func envCredentials() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		creds := aws.Credentials{
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}
		if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
			return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
		}
		return creds, nil
	})
}

// ensureContext returns the provided context or a background context if nil.
func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// loadConfig finds kestrel.yaml from path, or from the working directory
// upwards when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	_, cfg, err := config.FindConfig(cwd)
	if err != nil {
		return nil, fmt.Errorf("no %s found: %w", config.ConfigFileName, err)
	}
	return cfg, nil
}
