package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "cwtcli/internal/errors"
	"cwtcli/pkg/contracts/domain"
)

// StartAudit persists the in-progress audit record before any row work.
// A failure here aborts the run before anything is committed.
func (s *Store) StartAudit(ctx context.Context, audit *domain.LoadAudit) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_data_loads
			(load_id, source_file, load_status, started_at)
		VALUES ($1, $2, $3, $4)`,
		audit.RunID, audit.SourceFile, string(audit.Status), audit.StartedAt)
	if err != nil {
		return apperrors.NewAuditWriteFailure(audit.RunID, "start", err)
	}
	return nil
}

// FinalizeAudit records the run outcome exactly once. The guard on
// load_status makes a second finalize attempt an error rather than an
// overwrite.
func (s *Store) FinalizeAudit(ctx context.Context, audit *domain.LoadAudit) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE audit_data_loads SET
			records_processed = $2,
			records_inserted  = $3,
			records_updated   = $4,
			records_failed    = $5,
			load_status       = $6,
			error_message     = $7,
			finished_at       = $8,
			duration_seconds  = $9
		WHERE load_id = $1 AND load_status = $10`,
		audit.RunID,
		audit.Processed, audit.Inserted, audit.Updated, audit.Failed,
		string(audit.Status), audit.Error, audit.FinishedAt, audit.Duration,
		string(domain.LoadInProgress))
	if err != nil {
		return apperrors.NewAuditWriteFailure(audit.RunID, "finalize", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewAuditWriteFailure(audit.RunID, "finalize",
			fmt.Errorf("audit record missing or already finalized"))
	}
	return nil
}

// GetAudit fetches one audit record; a missing run returns nil, nil
func (s *Store) GetAudit(ctx context.Context, runID string) (*domain.LoadAudit, error) {
	var audit domain.LoadAudit
	err := s.query(ctx, "get_audit", func(ctx context.Context) error {
		var status string
		err := s.pool.QueryRow(ctx, `
			SELECT load_id, source_file, records_processed, records_inserted,
			       records_updated, records_failed, load_status, error_message,
			       started_at, finished_at, duration_seconds
			FROM audit_data_loads WHERE load_id = $1`,
			runID).Scan(
			&audit.RunID, &audit.SourceFile, &audit.Processed, &audit.Inserted,
			&audit.Updated, &audit.Failed, &status, &audit.Error,
			&audit.StartedAt, &audit.FinishedAt, &audit.Duration)
		if err != nil {
			return fmt.Errorf("query audit %s: %w", runID, err)
		}
		audit.Status = domain.LoadStatus(status)
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &audit, nil
}

// ListAudits returns the most recent audit records, newest first
func (s *Store) ListAudits(ctx context.Context, limit int) ([]domain.LoadAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	var audits []domain.LoadAudit
	err := s.query(ctx, "list_audits", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT load_id, source_file, records_processed, records_inserted,
			       records_updated, records_failed, load_status, error_message,
			       started_at, finished_at, duration_seconds
			FROM audit_data_loads
			ORDER BY started_at DESC
			LIMIT $1`, limit)
		if err != nil {
			return fmt.Errorf("query audits: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				a      domain.LoadAudit
				status string
			)
			if err := rows.Scan(&a.RunID, &a.SourceFile, &a.Processed, &a.Inserted,
				&a.Updated, &a.Failed, &status, &a.Error,
				&a.StartedAt, &a.FinishedAt, &a.Duration); err != nil {
				return fmt.Errorf("scan audit: %w", err)
			}
			a.Status = domain.LoadStatus(status)
			audits = append(audits, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return audits, nil
}
