// Package load is the coordinator that commits validated fact batches
// transactionally and maintains the load-audit lifecycle around each run.
package load

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "cwtcli/internal/errors"
	"cwtcli/internal/infrastructure"
	"cwtcli/internal/store"
	"cwtcli/pkg/contracts/domain"
)

// Coordinator applies fact batches to the store. One batch, one
// transaction, one audit record per invocation.
type Coordinator struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *infrastructure.Metrics
}

// NewCoordinator creates a load coordinator
func NewCoordinator(st *store.Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   st,
		logger:  logger.With("component", "load"),
		metrics: infrastructure.GetMetrics(),
	}
}

// Apply commits every valid candidate in one transaction with upsert
// semantics on the natural key. Invalid candidates count as failed but
// never abort the run: partial failure still finalizes as completed. A
// transaction failure rolls everything back and finalizes as failed.
func (c *Coordinator) Apply(ctx context.Context, sourceFile string, batch []domain.ObservationCandidate) (*domain.LoadAudit, error) {
	audit := &domain.LoadAudit{
		RunID:      uuid.NewString(),
		SourceFile: sourceFile,
		Status:     domain.LoadInProgress,
		StartedAt:  time.Now().UTC(),
	}
	ctx = infrastructure.WithRunID(ctx, audit.RunID)
	logger := c.logger.With("run_id", audit.RunID, "source_file", sourceFile)

	if err := c.store.StartAudit(ctx, audit); err != nil {
		// The audit mechanism itself is down; nothing was committed.
		logger.Error("audit start failed", "error", err)
		return nil, err
	}

	audit.Processed = len(batch)
	var failures []string
	for _, cand := range batch {
		if cand.Invalid {
			audit.Failed++
			failures = append(failures, cand.InvalidReason)
		}
	}

	if err := c.applyTx(ctx, batch, audit); err != nil {
		c.finalize(ctx, logger, audit, domain.LoadFailed, err.Error())
		return audit, err
	}

	if err := c.finalize(ctx, logger, audit, domain.LoadCompleted, failureSummary(failures)); err != nil {
		// Rows are committed but the outcome is unrecorded; surface loudly.
		return audit, err
	}

	logger.Info("load completed",
		"processed", audit.Processed,
		"inserted", audit.Inserted,
		"updated", audit.Updated,
		"failed", audit.Failed,
		"duration_seconds", audit.Duration,
	)
	return audit, nil
}

// applyTx runs the upserts and benchmark refresh in a single transaction
func (c *Coordinator) applyTx(ctx context.Context, batch []domain.ObservationCandidate, audit *domain.LoadAudit) error {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return apperrors.NewLoadTransactionError(audit.RunID, err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(ctx)
	}()

	for _, cand := range batch {
		if cand.Invalid {
			continue
		}
		inserted, err := c.upsert(ctx, tx, cand)
		if err != nil {
			return apperrors.NewLoadTransactionError(audit.RunID, err)
		}
		if inserted {
			audit.Inserted++
		} else {
			audit.Updated++
		}
	}

	if err := c.store.RecomputeBenchmarkMetTx(ctx, tx); err != nil {
		return apperrors.NewLoadTransactionError(audit.RunID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewLoadTransactionError(audit.RunID, err)
	}
	return nil
}

func (c *Coordinator) upsert(ctx context.Context, tx pgx.Tx, cand domain.ObservationCandidate) (bool, error) {
	return c.store.UpsertObservationTx(ctx, tx, cand)
}

// maxRecordedFailures caps how many row-local reasons the audit keeps;
// the full set is still logged per run.
const maxRecordedFailures = 20

// failureSummary condenses row-local rejection reasons into the audit's
// error text so excluded rows stay explainable after the run
func failureSummary(failures []string) string {
	if len(failures) == 0 {
		return ""
	}
	kept := failures
	if len(kept) > maxRecordedFailures {
		kept = kept[:maxRecordedFailures]
	}
	summary := fmt.Sprintf("%d rows excluded: %s", len(failures), strings.Join(kept, "; "))
	if len(failures) > maxRecordedFailures {
		summary += fmt.Sprintf(" (and %d more)", len(failures)-maxRecordedFailures)
	}
	return summary
}

// finalize records the run outcome exactly once and updates run counters
func (c *Coordinator) finalize(ctx context.Context, logger *slog.Logger, audit *domain.LoadAudit, status domain.LoadStatus, errText string) error {
	now := time.Now().UTC()
	audit.Status = status
	audit.Error = errText
	audit.FinishedAt = &now
	audit.Duration = now.Sub(audit.StartedAt).Seconds()

	// A rolled-back run inserted and updated nothing.
	if status == domain.LoadFailed {
		audit.Inserted = 0
		audit.Updated = 0
	}

	c.metrics.RecordRun(string(status), audit.Processed, audit.Inserted, audit.Updated, audit.Failed)

	if err := c.store.FinalizeAudit(ctx, audit); err != nil {
		logger.Error("audit finalize failed", "status", string(status), "error", err)
		return err
	}
	return nil
}
