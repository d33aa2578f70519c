package dimension

import "time"

// Direction is the tri-state "higher is better" attribute of a metric,
// used for benchmark-compliance computation.
type Direction int

const (
	Neutral Direction = iota
	HigherIsBetter
	LowerIsBetter
)

// String returns the string representation of the direction
func (d Direction) String() string {
	switch d {
	case HigherIsBetter:
		return "higher"
	case LowerIsBetter:
		return "lower"
	default:
		return "neutral"
	}
}

// MetricKind classifies what a metric measures
type MetricKind string

const (
	KindPercentile MetricKind = "percentile"
	KindVolume     MetricKind = "volume"
	KindCompliance MetricKind = "benchmark_compliance"
)

// Province is a reference dimension row. Code is unique and stable;
// name lookups are case-insensitive.
type Province struct {
	ID         int
	Code       string
	Name       string
	Region     string
	Population int64
}

// NationalCode marks the national aggregate pseudo-province, excluded
// from provincial comparisons.
const NationalCode = "CA"

// IsNational reports whether this row is the national aggregate
func (p Province) IsNational() bool {
	return p.Code == NationalCode
}

// Procedure is a reference dimension row
type Procedure struct {
	ID          int
	Code        string
	Name        string
	Category    string
	IsSurgical  bool
	Description string
}

// Metric is a reference dimension row
type Metric struct {
	ID        int
	Code      string
	Name      string
	Kind      MetricKind
	Unit      string
	Direction Direction
}

// ReportingLevel distinguishes provincial/regional/national granularity
type ReportingLevel struct {
	ID   int
	Code string
	Name string
}

// Benchmark is a target value for a (procedure, metric) pair with an
// effective date range. At most one benchmark may be effective for a pair
// at any given date; To is nil for open-ended ranges.
type Benchmark struct {
	ID          int
	ProcedureID int
	MetricID    int
	Target      float64
	From        time.Time
	To          *time.Time
}

// Covers reports whether the benchmark is effective at the given date
func (b Benchmark) Covers(at time.Time) bool {
	if at.Before(b.From) {
		return false
	}
	if b.To != nil && at.After(*b.To) {
		return false
	}
	return true
}
