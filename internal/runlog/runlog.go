// Package runlog writes the structured per-run agent log.
package runlog

import (
	"context"
	"log"
	"time"

	"go-openclaw-autoapply/internal/models"
)

// MaxReasonLen bounds every free-text field that reaches the log store.
const MaxReasonLen = 500

// Sink persists run log rows.
type Sink interface {
	InsertRunLog(ctx context.Context, entry models.RunLogEntry) error
}

// Logger mirrors run transitions to stdout and, when configured, to a Sink.
// A failing sink never fails the run.
type Logger struct {
	agent string
	sink  Sink
	now   func() time.Time
}

func New(agent string, sink Sink) *Logger {
	return &Logger{agent: agent, sink: sink, now: time.Now}
}

// Run tracks a single invocation.
type Run struct {
	l       *Logger
	id      string
	userID  string
	started time.Time
}

func (l *Logger) Start(ctx context.Context, runID, userID string) *Run {
	r := &Run{l: l, id: runID, userID: userID, started: l.now()}
	log.Printf("▶️ [%s] run %s started (user=%s)", l.agent, runID, userID)
	r.write(ctx, models.RunRunning, 0, "")
	return r
}

func (r *Run) ID() string { return r.id }

func (r *Run) Elapsed() time.Duration { return r.l.now().Sub(r.started) }

func (r *Run) End(ctx context.Context, processed int, message string) {
	log.Printf("🏁 [%s] run %s completed: processed=%d %s", r.l.agent, r.id, processed, Truncate(message, MaxReasonLen))
	r.write(ctx, models.RunCompleted, processed, message)
}

func (r *Run) Skip(ctx context.Context, reason string) {
	log.Printf("⏭️ [%s] run %s skipped: %s", r.l.agent, r.id, Truncate(reason, MaxReasonLen))
	r.write(ctx, models.RunSkipped, 0, reason)
}

func (r *Run) Fail(ctx context.Context, processed int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	log.Printf("❌ [%s] run %s failed: %s", r.l.agent, r.id, Truncate(msg, MaxReasonLen))
	r.write(ctx, models.RunFailed, processed, msg)
}

func (r *Run) write(ctx context.Context, status models.RunStatus, processed int, message string) {
	if r.l.sink == nil {
		return
	}
	entry := models.RunLogEntry{
		RunID:      r.id,
		Agent:      r.l.agent,
		UserID:     r.userID,
		Status:     status,
		Processed:  processed,
		DurationMS: r.Elapsed().Milliseconds(),
		Message:    Truncate(message, MaxReasonLen),
		At:         r.l.now(),
	}
	// the run's own context may already be cancelled when it fails
	if err := r.l.sink.InsertRunLog(context.WithoutCancel(ctx), entry); err != nil {
		log.Printf("⚠️ [%s] failed to persist run log %s: %v", r.l.agent, r.id, err)
	}
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
