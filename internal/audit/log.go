// Package audit keeps the append-only trace of every event the pipeline
// publishes. One row per publish attempt, successful or not: the audit log
// is the one place an operator can reconstruct the pipeline's behavior
// regardless of downstream failures.
package audit

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/parametric-claims/internal/domain"
)

// Recorder appends audit rows. Implemented by the ledger store.
type Recorder interface {
	AppendAudit(ctx context.Context, rec domain.AuditRecord) error
}

// Log writes audit records through a Recorder. A record is never silently
// dropped: if the recorder itself fails, the full record is logged at error
// level so the trace survives in the log stream.
type Log struct {
	recorder Recorder
	logger   *slog.Logger
}

// NewLog creates the audit log writer.
func NewLog(recorder Recorder, logger *slog.Logger) *Log {
	return &Log{recorder: recorder, logger: logger}
}

// Record appends one audit row for a publish attempt.
func (l *Log) Record(ctx context.Context, rec domain.AuditRecord) {
	if err := l.recorder.AppendAudit(ctx, rec); err != nil {
		l.logger.Error("audit append failed, record preserved in logs only",
			"event_id", rec.EventID,
			"event_type", rec.EventType,
			"subject", rec.Subject,
			"status", rec.Status,
			"publish_error", rec.Error,
			"error", err,
		)
	}
}

// Summarize truncates a payload for the audit row's summary column. Audit
// rows are for tracing, not replay; the full payload lives on the bus.
func Summarize(payload []byte, maxLen int) string {
	if len(payload) <= maxLen {
		return string(payload)
	}
	return string(payload[:maxLen]) + "..."
}
