package stores

import (
	"context"
	"time"

	"github.com/openfroyo/gpuprep/pkg/engine"
	"github.com/openfroyo/gpuprep/pkg/errlog"
)

// Journal writes one session's history. A nil Journal records nothing, so
// callers do not need to check whether history is enabled.
type Journal struct {
	store     Store
	sessionID string
	prior     int
	ctx       context.Context
}

// NewJournal opens (or reopens) the session and returns its journal.
func NewJournal(ctx context.Context, store Store, sessionID string, restarted bool) (*Journal, error) {
	session, err := store.OpenSession(ctx, sessionID, restarted)
	if err != nil {
		return nil, err
	}
	return &Journal{store: store, sessionID: sessionID, prior: session.ErrorCount, ctx: ctx}, nil
}

// PriorErrors returns the errors counted by earlier processes of the session.
func (j *Journal) PriorErrors() int {
	if j == nil {
		return 0
	}
	return j.prior
}

// SessionID returns the session this journal writes to.
func (j *Journal) SessionID() string {
	if j == nil {
		return ""
	}
	return j.sessionID
}

// Sink returns an error-log sink that copies every line into the store.
func (j *Journal) Sink() errlog.Sink {
	return func(level errlog.Level, message string) error {
		if j == nil {
			return nil
		}
		lvl := EventLevelInfo
		if level == errlog.LevelError {
			lvl = EventLevelError
		}
		id := j.sessionID
		return j.store.AppendEvent(j.ctx, &Event{SessionID: &id, Level: lvl, Message: message})
	}
}

// Step records a step outcome.
func (j *Journal) Step(phase engine.Phase, outcome engine.StepOutcome, duration time.Duration) error {
	if j == nil {
		return nil
	}
	rec := &StepRecord{
		SessionID:  j.sessionID,
		Phase:      string(phase),
		Name:       outcome.Name,
		Status:     string(outcome.Status),
		ExitCode:   outcome.ExitCode,
		DurationMS: duration.Milliseconds(),
	}
	if outcome.Error != "" {
		msg := outcome.Error
		rec.Error = &msg
	}
	return j.store.RecordStep(j.ctx, rec)
}

// Finish stores the final action of this process and the errors it counted.
func (j *Journal) Finish(action string, errorCount int) error {
	if j == nil {
		return nil
	}
	return j.store.FinishSession(j.ctx, j.sessionID, StatusForAction(action), action, errorCount)
}

// StatusForAction maps an orchestrator action to a session status.
func StatusForAction(action string) SessionStatus {
	switch action {
	case "halt":
		return SessionStatusHalted
	case "relaunch":
		return SessionStatusRelaunch
	default:
		return SessionStatusCompleted
	}
}
