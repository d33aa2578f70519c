package domain

import "time"

// QualityFlag is the fixed data-quality enumeration carried on every
// committed observation
type QualityFlag string

const (
	QualityValid      QualityFlag = "valid"
	QualityEstimated  QualityFlag = "estimated"
	QualityMissing    QualityFlag = "missing"
	QualitySuppressed QualityFlag = "suppressed"
)

// IsValid reports whether the flag belongs to the enumeration
func (q QualityFlag) IsValid() bool {
	switch q {
	case QualityValid, QualityEstimated, QualityMissing, QualitySuppressed:
		return true
	}
	return false
}

// OutlierSeverity classifies a z-score against historical values for the
// same (province, procedure) group. Informational only; never blocks load.
type OutlierSeverity string

const (
	OutlierModerate    OutlierSeverity = "moderate"
	OutlierSignificant OutlierSeverity = "significant"
	OutlierExtreme     OutlierSeverity = "extreme"
)

// RawRow is one long-format row as read from the source spreadsheet,
// before dimension resolution
type RawRow struct {
	RowNumber      int
	ReportingLevel string
	Province       string
	Region         string
	Procedure      string
	Metric         string
	Year           int
	Unit           string
	Result         *float64
	Quality        QualityFlag
}

// ObservationCandidate is a fact candidate after reshape and resolution,
// before commit. Invalid rows carry Invalid=true with the reason and are
// excluded from the load transaction.
type ObservationCandidate struct {
	ProvinceID  int
	ProcedureID int
	MetricID    int
	LevelID     int
	FiscalYear  int

	ProvinceLabel  string
	ProcedureLabel string
	MetricLabel    string

	Result     *float64
	Volume     *float64
	Quality    QualityFlag
	Outlier    OutlierSeverity
	ZScore     *float64
	SourceFile string

	Invalid       bool
	InvalidReason string
}

// NaturalKey identifies one observation per the fixed dimensional model
type NaturalKey struct {
	ProvinceID  int
	ProcedureID int
	MetricID    int
	FiscalYear  int
}

// Key returns the candidate's natural key
func (c ObservationCandidate) Key() NaturalKey {
	return NaturalKey{
		ProvinceID:  c.ProvinceID,
		ProcedureID: c.ProcedureID,
		MetricID:    c.MetricID,
		FiscalYear:  c.FiscalYear,
	}
}

// WaitTimeObservation is one committed fact row
type WaitTimeObservation struct {
	ID             int64       `json:"id" db:"observation_id"`
	ProvinceID     int         `json:"province_id" db:"province_id"`
	ProvinceName   string      `json:"province_name" db:"province_name"`
	ProcedureID    int         `json:"procedure_id" db:"procedure_id"`
	ProcedureName  string      `json:"procedure_name" db:"procedure_name"`
	MetricID       int         `json:"metric_id" db:"metric_id"`
	MetricName     string      `json:"metric_name" db:"metric_name"`
	FiscalYear     int         `json:"fiscal_year" db:"fiscal_year"`
	Result         *float64    `json:"result" db:"result_value"`
	Volume         *float64    `json:"volume" db:"volume_cases"`
	BenchmarkMet   *bool       `json:"benchmark_met" db:"is_benchmark_met"`
	Quality        QualityFlag `json:"quality_flag" db:"data_quality_flag"`
	ReportingLevel string      `json:"reporting_level" db:"reporting_level"`
	SourceFile     string      `json:"source_file" db:"source_file"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// LoadStatus is the lifecycle status of one ETL run
type LoadStatus string

const (
	LoadInProgress LoadStatus = "in_progress"
	LoadCompleted  LoadStatus = "completed"
	LoadFailed     LoadStatus = "failed"
)

// LoadAudit is the append-only record of one ETL run. Created when the
// run starts, finalized exactly once at the end, never mutated afterward.
type LoadAudit struct {
	RunID      string     `json:"run_id" db:"load_id"`
	SourceFile string     `json:"source_file" db:"source_file"`
	Processed  int        `json:"records_processed" db:"records_processed"`
	Inserted   int        `json:"records_inserted" db:"records_inserted"`
	Updated    int        `json:"records_updated" db:"records_updated"`
	Failed     int        `json:"records_failed" db:"records_failed"`
	Status     LoadStatus `json:"status" db:"load_status"`
	Error      string     `json:"error_message,omitempty" db:"error_message"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Duration   float64    `json:"duration_seconds" db:"duration_seconds"`
}
