package postgres

import (
	"context"
	"fmt"

	"github.com/couchcryptid/parametric-claims/internal/domain"
)

// AppendAudit records one event publish attempt. The table is append-only;
// sequence comes from the table's identity column.
func (s *Store) AppendAudit(ctx context.Context, rec domain.AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_id, event_type, subject, event_time, payload_summary, status, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.EventID, rec.EventType, rec.Subject, rec.EventTime,
		nullString(rec.PayloadSummary), string(rec.Status), nullString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("append audit record for %s: %w", rec.EventID, err)
	}
	return nil
}
