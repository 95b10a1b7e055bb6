package audit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/parametric-claims/internal/audit"
	"github.com/couchcryptid/parametric-claims/internal/domain"
)

type fakeRecorder struct {
	records []domain.AuditRecord
	err     error
}

func (f *fakeRecorder) AppendAudit(_ context.Context, rec domain.AuditRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLog_Record(t *testing.T) {
	rec := &fakeRecorder{}
	l := audit.NewLog(rec, discardLogger())

	l.Record(context.Background(), domain.AuditRecord{
		EventID:   "evt-1",
		EventType: domain.EventClaimApproved,
		Subject:   "claim/CLM-abcd",
		EventTime: time.Now().UTC(),
		Status:    domain.AuditPublished,
	})

	assert.Len(t, rec.records, 1)
	assert.Equal(t, "evt-1", rec.records[0].EventID)
}

func TestLog_RecorderFailureDoesNotPanic(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("connection refused")}
	l := audit.NewLog(rec, discardLogger())

	// The record is preserved in the log stream instead; no error escapes.
	l.Record(context.Background(), domain.AuditRecord{EventID: "evt-1", Status: domain.AuditFailed})
	assert.Empty(t, rec.records)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "short", audit.Summarize([]byte("short"), 10))
	assert.Equal(t, "exactly-10", audit.Summarize([]byte("exactly-10"), 10))
	assert.Equal(t, "truncated-...", audit.Summarize([]byte("truncated-payload-body"), 10))
}
