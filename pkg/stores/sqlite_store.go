package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Config holds SQLite store configuration
type Config struct {
	Path string
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Init opens the database connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// One process, one sequential writer. A single connection also keeps
	// :memory: databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// OpenSession creates the session row, or reopens it for a restarted process.
func (s *SQLiteStore) OpenSession(ctx context.Context, id string, restarted bool) (*Session, error) {
	now := s.now()

	existing, err := s.GetSession(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		query := `
			INSERT INTO sessions (id, status, processes, error_count, started_at, updated_at)
			VALUES (?, ?, 1, 0, ?, ?)
		`
		if _, err := s.db.ExecContext(ctx, query, id, SessionStatusRunning, now, now); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	case err != nil:
		return nil, err
	case !restarted:
		return nil, fmt.Errorf("session %s already exists", existing.ID)
	default:
		query := `
			UPDATE sessions
			SET status = ?, processes = processes + 1, completed_at = NULL, updated_at = ?
			WHERE id = ?
		`
		if _, err := s.db.ExecContext(ctx, query, SessionStatusRunning, now, id); err != nil {
			return nil, fmt.Errorf("failed to reopen session: %w", err)
		}
	}

	return s.GetSession(ctx, id)
}

// GetSession retrieves a session by ID
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, status, action, processes, error_count, started_at, completed_at, updated_at
		FROM sessions
		WHERE id = ?
	`

	session := &Session{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.Status,
		&session.Action,
		&session.Processes,
		&session.ErrorCount,
		&session.StartedAt,
		&session.CompletedAt,
		&session.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// FinishSession stores the final action of a process. Error counts from both
// processes of a relaunch add up.
func (s *SQLiteStore) FinishSession(ctx context.Context, id string, status SessionStatus, action string, errorCount int) error {
	now := s.now()
	query := `
		UPDATE sessions
		SET status = ?, action = ?, error_count = error_count + ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, action, errorCount, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	return nil
}

// ListSessions retrieves sessions with pagination, newest first
func (s *SQLiteStore) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	query := `
		SELECT id, status, action, processes, error_count, started_at, completed_at, updated_at
		FROM sessions
		ORDER BY started_at DESC, id
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		session := &Session{}
		err := rows.Scan(
			&session.ID,
			&session.Status,
			&session.Action,
			&session.Processes,
			&session.ErrorCount,
			&session.StartedAt,
			&session.CompletedAt,
			&session.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// RecordStep appends the outcome of one step.
func (s *SQLiteStore) RecordStep(ctx context.Context, step *StepRecord) error {
	if step.RecordedAt.IsZero() {
		step.RecordedAt = s.now()
	}

	query := `
		INSERT INTO steps (session_id, phase, name, status, exit_code, error, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		step.SessionID,
		step.Phase,
		step.Name,
		step.Status,
		step.ExitCode,
		step.Error,
		step.DurationMS,
		step.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get step ID: %w", err)
	}

	step.ID = id
	return nil
}

// ListSteps returns the steps of a session in execution order.
func (s *SQLiteStore) ListSteps(ctx context.Context, sessionID string) ([]*StepRecord, error) {
	query := `
		SELECT id, session_id, phase, name, status, exit_code, error, duration_ms, recorded_at
		FROM steps
		WHERE session_id = ?
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	steps := []*StepRecord{}
	for rows.Next() {
		step := &StepRecord{}
		err := rows.Scan(
			&step.ID,
			&step.SessionID,
			&step.Phase,
			&step.Name,
			&step.Status,
			&step.ExitCode,
			&step.Error,
			&step.DurationMS,
			&step.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

// AppendEvent appends a new event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	query := `
		INSERT INTO events (session_id, level, message, timestamp)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.SessionID,
		event.Level,
		event.Message,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves events with optional filters and pagination, in append
// order. A negative limit returns every matching event.
func (s *SQLiteStore) GetEvents(ctx context.Context, sessionID *string, level *EventLevel, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, session_id, level, message, timestamp
		FROM events
		WHERE (? IS NULL OR session_id = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY id
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID, sessionID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.Level,
			&event.Message,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// Open creates, initializes and migrates a store in one call.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
