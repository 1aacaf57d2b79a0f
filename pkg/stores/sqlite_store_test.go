package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/errlog"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}

	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err == nil {
		t.Error("expected migrate to fail before init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	// Second migration is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("repeated migrate failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestSessionAcrossRelaunch tests that a restarted process reuses the session
func TestSessionAcrossRelaunch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	session, err := store.OpenSession(ctx, "s1", false)
	if err != nil {
		t.Fatalf("failed to open session: %v", err)
	}
	if session.Status != SessionStatusRunning || session.Processes != 1 {
		t.Errorf("unexpected new session: %+v", session)
	}

	if err := store.FinishSession(ctx, "s1", SessionStatusRelaunch, "relaunch", 2); err != nil {
		t.Fatalf("failed to finish session: %v", err)
	}

	if _, err := store.OpenSession(ctx, "s1", false); err == nil {
		t.Error("expected error reopening a session without the restart flag")
	}

	session, err = store.OpenSession(ctx, "s1", true)
	if err != nil {
		t.Fatalf("failed to reopen session: %v", err)
	}
	if session.Processes != 2 || session.Status != SessionStatusRunning || session.CompletedAt != nil {
		t.Errorf("unexpected reopened session: %+v", session)
	}

	if err := store.FinishSession(ctx, "s1", SessionStatusCompleted, "complete", 1); err != nil {
		t.Fatalf("failed to finish session: %v", err)
	}

	session, err = store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if session.ErrorCount != 3 {
		t.Errorf("expected error counts to add up to 3, got %d", session.ErrorCount)
	}
	if session.Action == nil || *session.Action != "complete" {
		t.Errorf("unexpected action: %v", session.Action)
	}
	if session.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
}

// TestSessionNotFound tests missing sessions
func TestSessionNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.FinishSession(ctx, "missing", SessionStatusCompleted, "complete", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestListSessions tests ordering and pagination
func TestListSessions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Hour)
		store.now = func() time.Time { return at }
		if _, err := store.OpenSession(ctx, id, false); err != nil {
			t.Fatalf("failed to open session %s: %v", id, err)
		}
	}

	sessions, err := store.ListSessions(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "c" || sessions[1].ID != "b" {
		t.Errorf("unexpected page: %+v", sessions)
	}

	sessions, err = store.ListSessions(ctx, 10, 2)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "a" {
		t.Errorf("unexpected second page: %+v", sessions)
	}
}

// TestEventsAndSteps tests the journal adapter
func TestEventsAndSteps(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	journal, err := NewJournal(ctx, store, "s1", false)
	if err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}

	log := errlog.New(filepath.Join(t.TempDir(), "output.txt"), errlog.WithSink(journal.Sink()))
	log.Record("Failed to uninstall torch")
	log.Note("Cuda Toolkit downloaded")

	outcome := engine.StepOutcome{Name: "uninstall-torch", Status: engine.StepStatusFailed, ExitCode: 1, Error: "exit status 1"}
	if err := journal.Step(engine.PhaseProvision, outcome, 1500*time.Millisecond); err != nil {
		t.Fatalf("failed to record step: %v", err)
	}
	if err := journal.Finish("complete", log.Count()); err != nil {
		t.Fatalf("failed to finish: %v", err)
	}

	id := "s1"
	events, err := store.GetEvents(ctx, &id, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Level != EventLevelError || events[0].Message != "Failed to uninstall torch" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Level != EventLevelInfo {
		t.Errorf("expected note to be info, got %s", events[1].Level)
	}

	level := EventLevelError
	errorsOnly, err := store.GetEvents(ctx, nil, &level, 10, 0)
	if err != nil {
		t.Fatalf("failed to filter events: %v", err)
	}
	if len(errorsOnly) != 1 {
		t.Errorf("expected 1 error event, got %d", len(errorsOnly))
	}

	steps, err := store.ListSteps(ctx, "s1")
	if err != nil {
		t.Fatalf("failed to list steps: %v", err)
	}
	if len(steps) != 1 || steps[0].DurationMS != 1500 || steps[0].Error == nil {
		t.Errorf("unexpected steps: %+v", steps)
	}

	session, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if session.Status != SessionStatusCompleted || session.ErrorCount != 1 {
		t.Errorf("unexpected session: %+v", session)
	}
}

// TestNilJournal tests that a disabled journal is a no-op
func TestNilJournal(t *testing.T) {
	var j *Journal
	if err := j.Sink()(errlog.LevelError, "x"); err != nil {
		t.Errorf("nil sink returned error: %v", err)
	}
	if err := j.Step(engine.PhaseProvision, engine.StepOutcome{}, 0); err != nil {
		t.Errorf("nil step returned error: %v", err)
	}
	if err := j.Finish("complete", 0); err != nil {
		t.Errorf("nil finish returned error: %v", err)
	}
	if j.SessionID() != "" {
		t.Error("expected empty session id")
	}
	if j.PriorErrors() != 0 {
		t.Error("expected no prior errors")
	}
}

// TestJournalPriorErrors tests that a successor sees the errors of the
// process it replaced
func TestJournalPriorErrors(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, err := NewJournal(ctx, store, "s1", false)
	if err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}
	if first.PriorErrors() != 0 {
		t.Errorf("fresh session has %d prior errors", first.PriorErrors())
	}
	if err := first.Finish("relaunch", 2); err != nil {
		t.Fatalf("failed to finish: %v", err)
	}

	second, err := NewJournal(ctx, store, "s1", true)
	if err != nil {
		t.Fatalf("failed to reopen journal: %v", err)
	}
	if second.PriorErrors() != 2 {
		t.Errorf("expected 2 prior errors, got %d", second.PriorErrors())
	}
	if err := second.Finish("complete", 1); err != nil {
		t.Fatalf("failed to finish: %v", err)
	}

	session, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if session.ErrorCount != 3 {
		t.Errorf("expected 3 errors across the session, got %d", session.ErrorCount)
	}
}

func TestStatusForAction(t *testing.T) {
	tests := map[string]SessionStatus{
		"complete": SessionStatusCompleted,
		"halt":     SessionStatusHalted,
		"relaunch": SessionStatusRelaunch,
	}
	for action, want := range tests {
		if got := StatusForAction(action); got != want {
			t.Errorf("StatusForAction(%s) = %s, want %s", action, got, want)
		}
	}
}
