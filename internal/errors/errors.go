package errors

import (
	"errors"
	"fmt"
	"time"
)

// ExtractionError indicates a structurally unreadable source. It is fatal:
// the run aborts before any row processing and nothing is committed.
type ExtractionError struct {
	Source string
	Reason string
	Cause  error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction failed for %s: %s: %v", e.Source, e.Reason, e.Cause)
	}
	return fmt.Sprintf("extraction failed for %s: %s", e.Source, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// NewExtractionError creates a fatal extraction error for a source file
func NewExtractionError(source, reason string, cause error) *ExtractionError {
	return &ExtractionError{Source: source, Reason: reason, Cause: cause}
}

// DimensionKind identifies which dimension a lookup targeted
type DimensionKind string

const (
	KindProvince  DimensionKind = "province"
	KindProcedure DimensionKind = "procedure"
	KindMetric    DimensionKind = "metric"
)

// DimensionNotFoundError indicates an unresolvable free-text label.
// Row-local and recovered: the row is excluded and counted, the run continues.
type DimensionNotFoundError struct {
	Label      string
	Kind       DimensionKind
	Candidates []string // non-empty when the lookup was ambiguous rather than empty
}

func (e *DimensionNotFoundError) Error() string {
	if len(e.Candidates) > 0 {
		return fmt.Sprintf("ambiguous %s label %q: candidates %v", e.Kind, e.Label, e.Candidates)
	}
	return fmt.Sprintf("unknown %s label %q", e.Kind, e.Label)
}

// NewDimensionNotFound creates a row-local dimension resolution error
func NewDimensionNotFound(kind DimensionKind, label string) *DimensionNotFoundError {
	return &DimensionNotFoundError{Label: label, Kind: kind}
}

// NewDimensionAmbiguous creates a resolution error for a label matching
// multiple canonical names
func NewDimensionAmbiguous(kind DimensionKind, label string, candidates []string) *DimensionNotFoundError {
	return &DimensionNotFoundError{Label: label, Kind: kind, Candidates: candidates}
}

// ValidationFailure indicates a business-rule or bound violation on a row.
// Row-local and recovered: the row is flagged, excluded from load, counted.
type ValidationFailure struct {
	Rule   string
	Detail string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed [%s]: %s", e.Rule, e.Detail)
}

// NewValidationFailure creates a row-local validation error
func NewValidationFailure(rule, detail string) *ValidationFailure {
	return &ValidationFailure{Rule: rule, Detail: detail}
}

// LoadTransactionError indicates a failed batch commit. Fatal: the whole
// batch rolls back, the audit is finalized as failed, and the error
// propagates to the caller.
type LoadTransactionError struct {
	RunID string
	Cause error
}

func (e *LoadTransactionError) Error() string {
	return fmt.Sprintf("load transaction failed for run %s: %v", e.RunID, e.Cause)
}

func (e *LoadTransactionError) Unwrap() error { return e.Cause }

// NewLoadTransactionError wraps a commit failure
func NewLoadTransactionError(runID string, cause error) *LoadTransactionError {
	return &LoadTransactionError{RunID: runID, Cause: cause}
}

// QueryTimeout indicates an analytics store round-trip exceeded the caller
// timeout. Retryable; never carries partial results.
type QueryTimeout struct {
	Operation string
	Timeout   time.Duration
}

func (e *QueryTimeout) Error() string {
	return fmt.Sprintf("query %s timed out after %s", e.Operation, e.Timeout)
}

// NewQueryTimeout creates a retryable query-timeout error
func NewQueryTimeout(operation string, timeout time.Duration) *QueryTimeout {
	return &QueryTimeout{Operation: operation, Timeout: timeout}
}

// AuditWriteFailure indicates the audit record itself could not be
// persisted. Fatal and distinct: it cannot rely on the audit mechanism to
// report itself, so callers must log it independently.
type AuditWriteFailure struct {
	RunID string
	Phase string // "start" or "finalize"
	Cause error
}

func (e *AuditWriteFailure) Error() string {
	return fmt.Sprintf("audit write failed for run %s during %s: %v", e.RunID, e.Phase, e.Cause)
}

func (e *AuditWriteFailure) Unwrap() error { return e.Cause }

// NewAuditWriteFailure wraps a failed audit persistence attempt
func NewAuditWriteFailure(runID, phase string, cause error) *AuditWriteFailure {
	return &AuditWriteFailure{RunID: runID, Phase: phase, Cause: cause}
}

// IsRowLocal reports whether err is a recoverable per-row error that must
// never abort a batch
func IsRowLocal(err error) bool {
	var dnf *DimensionNotFoundError
	var vf *ValidationFailure
	return errors.As(err, &dnf) || errors.As(err, &vf)
}

// IsRetryable reports whether the caller may retry the operation
func IsRetryable(err error) bool {
	var qt *QueryTimeout
	return errors.As(err, &qt)
}
