package stores

import (
	"context"
	"time"
)

// SessionStatus represents the status of a provisioning session
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusHalted    SessionStatus = "halted"
	SessionStatusRelaunch  SessionStatus = "relaunching"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelInfo  EventLevel = "info"
	EventLevelError EventLevel = "error"
)

// Session is one logical provisioning session, possibly spanning a relaunch.
type Session struct {
	ID          string        `json:"id"`
	Status      SessionStatus `json:"status"`
	Action      *string       `json:"action,omitempty"`
	Processes   int           `json:"processes"`
	ErrorCount  int           `json:"error_count"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// StepRecord is the outcome of one step within a session.
type StepRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Phase      string    `json:"phase"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	Error      *string   `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Event is a line copied from the error log.
type Event struct {
	ID        int64      `json:"id"`
	SessionID *string    `json:"session_id,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the run-history layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Session operations
	OpenSession(ctx context.Context, id string, restarted bool) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	FinishSession(ctx context.Context, id string, status SessionStatus, action string, errorCount int) error
	ListSessions(ctx context.Context, limit, offset int) ([]*Session, error)

	// Step operations
	RecordStep(ctx context.Context, step *StepRecord) error
	ListSteps(ctx context.Context, sessionID string) ([]*StepRecord, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, sessionID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
