// Package postgres provides a PostgreSQL implementation of the event store adapter.
//
// The adapter talks to PostgreSQL through database/sql. The pgx stdlib driver is
// used by default; WithDriver("postgres") switches to lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/kestrel-es/kestrel/adapters"
)

// Supported database/sql driver names.
const (
	DriverPgx = "pgx"
	DriverPQ  = "postgres"
)

// DefaultSchema is the schema used when none is configured.
const DefaultSchema = "kestrel"

// Version constants for optimistic concurrency control.
const (
	AnyVersion   = adapters.AnyVersion
	NoStream     = adapters.NoStream
	StreamExists = adapters.StreamExists
)

// Sentinel errors for the postgres adapter.
// These are aliases to the adapters package errors for compatibility with errors.Is().
var (
	ErrAdapterClosed       = adapters.ErrAdapterClosed
	ErrEmptyStreamID       = adapters.ErrEmptyStreamID
	ErrNoEvents            = adapters.ErrNoEvents
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict
	ErrStreamNotFound      = adapters.ErrStreamNotFound
	ErrInvalidVersion      = adapters.ErrInvalidVersion

	// ErrInvalidSchema is returned when the schema name is not a plain identifier.
	ErrInvalidSchema = errors.New("kestrel/postgres: invalid schema name")
)

// Ensure PostgresAdapter implements required interfaces.
var (
	_ adapters.EventStoreAdapter  = (*PostgresAdapter)(nil)
	_ adapters.HealthChecker      = (*PostgresAdapter)(nil)
	_ adapters.Migrator           = (*PostgresAdapter)(nil)
	_ adapters.StreamQueryAdapter = (*PostgresAdapter)(nil)
)

// PostgresAdapter is a PostgreSQL implementation of EventStoreAdapter.
type PostgresAdapter struct {
	db     *sql.DB
	schema string
	closed bool
}

type settings struct {
	driver          string
	schema          string
	maxOpen         int
	maxIdle         int
	connMaxLifetime time.Duration
}

// Option configures a PostgresAdapter.
type Option func(*settings)

// WithSchema sets the database schema name.
func WithSchema(schema string) Option {
	return func(s *settings) {
		s.schema = schema
	}
}

// WithDriver selects the database/sql driver: DriverPgx (default) or DriverPQ.
// It is ignored by NewAdapterWithDB.
func WithDriver(driver string) Option {
	return func(s *settings) {
		s.driver = driver
	}
}

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) Option {
	return func(s *settings) {
		s.maxOpen = n
	}
}

// WithMaxIdleConnections sets the maximum number of idle connections.
func WithMaxIdleConnections(n int) Option {
	return func(s *settings) {
		s.maxIdle = n
	}
}

// WithConnectionMaxLifetime sets the maximum connection lifetime.
func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(s *settings) {
		s.connMaxLifetime = d
	}
}

func buildSettings(opts []Option) (*settings, error) {
	s := &settings{
		driver: DriverPgx,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := validateSchema(s.schema); err != nil {
		return nil, err
	}
	switch s.driver {
	case DriverPgx, DriverPQ:
	default:
		return nil, fmt.Errorf("kestrel/postgres: unsupported driver %q", s.driver)
	}
	return s, nil
}

func (s *settings) applyPool(db *sql.DB) {
	if s.maxOpen > 0 {
		db.SetMaxOpenConns(s.maxOpen)
	}
	if s.maxIdle > 0 {
		db.SetMaxIdleConns(s.maxIdle)
	}
	if s.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(s.connMaxLifetime)
	}
}

// NewAdapter creates a new PostgreSQL event store adapter.
func NewAdapter(connStr string, opts ...Option) (*PostgresAdapter, error) {
	s, err := buildSettings(opts)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(s.driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("kestrel/postgres: failed to open database: %w", err)
	}
	s.applyPool(db)

	return &PostgresAdapter{
		db:     db,
		schema: s.schema,
	}, nil
}

// NewAdapterWithDB creates a new adapter with an existing database connection.
func NewAdapterWithDB(db *sql.DB, opts ...Option) (*PostgresAdapter, error) {
	s, err := buildSettings(opts)
	if err != nil {
		return nil, err
	}
	s.applyPool(db)

	return &PostgresAdapter{
		db:     db,
		schema: s.schema,
	}, nil
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// validateSchema rejects names that would need quoting; the schema is
// interpolated into every statement.
func validateSchema(schema string) error {
	if !identifierPattern.MatchString(schema) {
		return fmt.Errorf("%w: %q", ErrInvalidSchema, schema)
	}
	return nil
}

// Initialize creates the required database schema and tables.
func (a *PostgresAdapter) Initialize(ctx context.Context) error {
	return a.Migrate(ctx)
}

// migration is one step of the schema history. Steps are applied in order
// and recorded in the schema_migrations table.
type migration struct {
	version    int
	statements []string
}

func migrations(schema string) []migration {
	return []migration{
		{
			version: 1,
			statements: []string{
				fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s.streams (
					id              BIGSERIAL PRIMARY KEY,
					stream_id       VARCHAR(500) NOT NULL UNIQUE,
					category        VARCHAR(250) NOT NULL,
					version         BIGINT NOT NULL DEFAULT 0,
					created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)`, schema),
				fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s.events (
					global_position BIGSERIAL PRIMARY KEY,
					stream_id       VARCHAR(500) NOT NULL,
					version         BIGINT NOT NULL,
					event_id        UUID NOT NULL UNIQUE,
					event_type      VARCHAR(500) NOT NULL,
					data            BYTEA NOT NULL,
					metadata        JSONB,
					timestamp       TIMESTAMPTZ NOT NULL,
					UNIQUE(stream_id, version)
				)`, schema),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_streams_category ON %s.streams(category)`, schema),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_type ON %s.events(event_type)`, schema),
			},
		},
		{
			version: 2,
			statements: []string{
				fmt.Sprintf(`ALTER TABLE %s.streams ADD COLUMN IF NOT EXISTS last_event_type VARCHAR(500)`, schema),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_streams_updated ON %s.streams(updated_at DESC)`, schema),
			},
		},
	}
}

// LatestMigrationVersion is the schema version Migrate brings the database to.
func LatestMigrationVersion() int {
	all := migrations(DefaultSchema)
	return all[len(all)-1].version
}

// Migrate brings the schema up to the latest version. It is idempotent.
func (a *PostgresAdapter) Migrate(ctx context.Context) error {
	if a.closed {
		return ErrAdapterClosed
	}

	if _, err := a.db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, a.schema)); err != nil {
		return fmt.Errorf("kestrel/postgres: failed to create schema: %w", err)
	}

	if _, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.schema_migrations (
			version    INT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, a.schema)); err != nil {
		return fmt.Errorf("kestrel/postgres: failed to create migrations table: %w", err)
	}

	current, err := a.MigrationVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations(a.schema) {
		if m.version <= current {
			continue
		}
		if err := a.applyMigration(ctx, m); err != nil {
			return err
		}
	}

	return nil
}

func (a *PostgresAdapter) applyMigration(ctx context.Context, m migration) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kestrel/postgres: failed to begin migration %d: %w", m.version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("kestrel/postgres: migration %d failed: %w", m.version, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.schema_migrations (version) VALUES ($1)`, a.schema), m.version); err != nil {
		return fmt.Errorf("kestrel/postgres: failed to record migration %d: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kestrel/postgres: failed to commit migration %d: %w", m.version, err)
	}
	return nil
}

// MigrationVersion returns the highest applied migration, or 0 for an empty schema.
func (a *PostgresAdapter) MigrationVersion(ctx context.Context) (int, error) {
	if a.closed {
		return 0, ErrAdapterClosed
	}

	var exists bool
	err := a.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = 'schema_migrations'
		)`, a.schema).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("kestrel/postgres: failed to check migrations table: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var version sql.NullInt64
	err = a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT MAX(version) FROM %s.schema_migrations`, a.schema)).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("kestrel/postgres: failed to read migration version: %w", err)
	}
	return int(version.Int64), nil
}

// Append stores events to the specified stream with optimistic concurrency control.
// Record IDs must be UUIDs; empty IDs and zero timestamps are generated.
func (a *PostgresAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed {
		return nil, ErrAdapterClosed
	}

	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("kestrel/postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentVersion int64
	streamExists := true

	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT version FROM %s.streams
		WHERE stream_id = $1
		FOR UPDATE`, a.schema), streamID).Scan(&currentVersion)
	if errors.Is(err, sql.ErrNoRows) {
		streamExists = false
		currentVersion = 0
	} else if err != nil {
		return nil, fmt.Errorf("kestrel/postgres: failed to get stream version: %w", err)
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, currentVersion, streamExists); err != nil {
		return nil, err
	}

	if !streamExists {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s.streams (stream_id, category, version)
			VALUES ($1, $2, 0)`, a.schema), streamID, adapters.ExtractCategory(streamID))
		if err != nil {
			return nil, fmt.Errorf("kestrel/postgres: failed to create stream: %w", err)
		}
	}

	now := time.Now().UTC()
	storedEvents := make([]adapters.StoredEvent, len(events))
	for i, event := range events {
		currentVersion++

		row, err := prepareRecord(event, now)
		if err != nil {
			return nil, err
		}

		var globalPosition int64
		err = tx.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO %s.events (stream_id, version, event_id, event_type, data, metadata, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING global_position`, a.schema),
			streamID, currentVersion, row.id, event.Type, row.data, row.metadata, row.timestamp,
		).Scan(&globalPosition)
		if err != nil {
			return nil, fmt.Errorf("kestrel/postgres: failed to insert event: %w", err)
		}

		storedEvents[i] = adapters.StoredEvent{
			ID:             row.id,
			StreamID:       streamID,
			Type:           event.Type,
			Data:           event.Data,
			Metadata:       event.Metadata,
			Version:        currentVersion,
			GlobalPosition: uint64(globalPosition),
			Timestamp:      row.timestamp,
		}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s.streams
		SET version = $1, last_event_type = $2, updated_at = NOW()
		WHERE stream_id = $3`, a.schema), currentVersion, events[len(events)-1].Type, streamID)
	if err != nil {
		return nil, fmt.Errorf("kestrel/postgres: failed to update stream version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("kestrel/postgres: failed to commit transaction: %w", err)
	}

	return storedEvents, nil
}

type recordRow struct {
	id        string
	data      []byte
	metadata  []byte
	timestamp time.Time
}

// prepareRecord fills in generated fields and encodes metadata for insertion.
func prepareRecord(event adapters.EventRecord, now time.Time) (recordRow, error) {
	row := recordRow{
		id:        event.ID,
		data:      event.Data,
		timestamp: event.Timestamp,
	}

	if row.id == "" {
		row.id = uuid.New().String()
	} else if _, err := uuid.Parse(row.id); err != nil {
		return recordRow{}, fmt.Errorf("kestrel/postgres: event id %q is not a UUID: %w", row.id, err)
	}

	if row.timestamp.IsZero() {
		row.timestamp = now
	}
	if row.data == nil {
		row.data = []byte{}
	}

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return recordRow{}, fmt.Errorf("kestrel/postgres: failed to marshal metadata: %w", err)
	}
	row.metadata = metadata

	return row, nil
}

// Load retrieves all events from a stream after the specified version.
func (a *PostgresAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed {
		return nil, ErrAdapterClosed
	}

	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT global_position, event_id, stream_id, version, event_type, data, metadata, timestamp
		FROM %s.events
		WHERE stream_id = $1 AND version > $2
		ORDER BY version`, a.schema), streamID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("kestrel/postgres: failed to load events: %w", err)
	}
	defer rows.Close()

	events := make([]adapters.StoredEvent, 0)
	for rows.Next() {
		var event adapters.StoredEvent
		var globalPosition int64
		var metadataJSON []byte

		err := rows.Scan(
			&globalPosition,
			&event.ID,
			&event.StreamID,
			&event.Version,
			&event.Type,
			&event.Data,
			&metadataJSON,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("kestrel/postgres: failed to scan event: %w", err)
		}
		event.GlobalPosition = uint64(globalPosition)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("kestrel/postgres: failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kestrel/postgres: error iterating events: %w", err)
	}

	return events, nil
}

// GetStreamInfo returns metadata about a stream.
func (a *PostgresAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if a.closed {
		return nil, ErrAdapterClosed
	}

	var info adapters.StreamInfo
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT stream_id, category, version, created_at, updated_at
		FROM %s.streams
		WHERE stream_id = $1`, a.schema), streamID).Scan(
		&info.StreamID,
		&info.Category,
		&info.Version,
		&info.CreatedAt,
		&info.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("kestrel/postgres: failed to get stream info: %w", err)
	}

	// Streams are append-only, so the version is also the event count.
	info.EventCount = info.Version
	return &info, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *PostgresAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if a.closed {
		return 0, ErrAdapterClosed
	}

	var pos sql.NullInt64
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT MAX(global_position) FROM %s.events`, a.schema)).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("kestrel/postgres: failed to get last position: %w", err)
	}

	if pos.Valid {
		return uint64(pos.Int64), nil
	}
	return 0, nil
}

// ListStreams returns streams whose ID starts with prefix, most recently updated first.
func (a *PostgresAdapter) ListStreams(ctx context.Context, prefix string, limit int) ([]adapters.StreamSummary, error) {
	if a.closed {
		return nil, ErrAdapterClosed
	}

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT stream_id, category, version, COALESCE(last_event_type, ''), updated_at
		FROM %s.streams
		WHERE stream_id LIKE $1 ESCAPE '\'
		ORDER BY updated_at DESC, stream_id
		LIMIT $2`, a.schema), escapeLike(prefix)+"%", adapters.DefaultLimit(limit, 100))
	if err != nil {
		return nil, fmt.Errorf("kestrel/postgres: failed to list streams: %w", err)
	}
	defer rows.Close()

	summaries := make([]adapters.StreamSummary, 0)
	for rows.Next() {
		var s adapters.StreamSummary
		if err := rows.Scan(&s.StreamID, &s.Category, &s.Version, &s.LastEventType, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("kestrel/postgres: failed to scan stream: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kestrel/postgres: error iterating streams: %w", err)
	}

	return summaries, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Ping checks database connectivity.
func (a *PostgresAdapter) Ping(ctx context.Context) error {
	if a.closed {
		return ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// Close releases the database connection.
func (a *PostgresAdapter) Close() error {
	a.closed = true
	return a.db.Close()
}

// DB returns the underlying database connection.
func (a *PostgresAdapter) DB() *sql.DB {
	return a.db
}

// Schema returns the schema name.
func (a *PostgresAdapter) Schema() string {
	return a.schema
}
