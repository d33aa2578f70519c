package quality

import (
	"fmt"
	"log/slog"
	"math"

	"cwtcli/internal/config"
	"cwtcli/internal/dimension"
	"cwtcli/pkg/contracts/domain"
)

// HistoryKey identifies the historical series a new value is judged
// against for outlier detection
type HistoryKey struct {
	ProvinceID  int
	ProcedureID int
	MetricID    int
}

// HistoryStats are precomputed statistics over a series' committed values
type HistoryStats struct {
	Count  int
	Mean   float64
	StdDev float64
}

// Report summarizes one validation pass over a batch. Completeness and
// consistency findings are advisory; they are surfaced, not enforced.
type Report struct {
	Total          int      `json:"total"`
	Valid          int      `json:"valid"`
	Invalid        int      `json:"invalid"`
	Flagged        int      `json:"flagged"`
	Completeness   float64  `json:"completeness"`
	CompletenessOK bool     `json:"completeness_ok"`
	Findings       []string `json:"findings,omitempty"`
}

// Validator runs completeness, referential, business-rule and
// statistical-outlier checks over candidate batches
type Validator struct {
	cfg    config.ETLConfig
	logger *slog.Logger
}

// NewValidator creates a validator with the given thresholds
func NewValidator(cfg config.ETLConfig, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{cfg: cfg, logger: logger.With("component", "quality")}
}

// Validate annotates a batch in place and returns it with a quality
// report. Rows failing referential or business-rule checks are marked
// invalid and excluded from load by the coordinator; outlier severity is
// informational and never blocks a row.
func (v *Validator) Validate(batch []domain.ObservationCandidate, history map[HistoryKey]HistoryStats, snap *dimension.Snapshot) ([]domain.ObservationCandidate, Report) {
	report := Report{Total: len(batch)}

	withValue := 0
	for i := range batch {
		c := &batch[i]

		if c.Result != nil {
			withValue++
		}

		if c.Invalid {
			report.Invalid++
			continue
		}

		if reason := v.referentialCheck(c); reason != "" {
			c.Invalid = true
			c.InvalidReason = reason
			report.Invalid++
			continue
		}

		if reason := v.businessRuleCheck(c, snap); reason != "" {
			c.Invalid = true
			c.InvalidReason = reason
			report.Invalid++
			continue
		}

		if c.Quality == "" {
			if c.Result == nil {
				c.Quality = domain.QualityMissing
			} else {
				c.Quality = domain.QualityValid
			}
		}

		v.outlierCheck(c, history)
		if c.Outlier == domain.OutlierSignificant || c.Outlier == domain.OutlierExtreme {
			report.Flagged++
		}
		report.Valid++
	}

	if report.Total > 0 {
		report.Completeness = float64(withValue) / float64(report.Total)
	}
	report.CompletenessOK = report.Completeness >= v.cfg.CompletenessThreshold
	if !report.CompletenessOK {
		report.Findings = append(report.Findings, fmt.Sprintf(
			"completeness %.1f%% below threshold %.1f%%",
			report.Completeness*100, v.cfg.CompletenessThreshold*100))
	}

	report.Findings = append(report.Findings, v.consistencyFindings(batch, snap)...)

	v.logger.Info("batch validated",
		"total", report.Total,
		"valid", report.Valid,
		"invalid", report.Invalid,
		"flagged", report.Flagged,
		"completeness", report.Completeness,
	)
	return batch, report
}

// referentialCheck verifies every dimension id resolved
func (v *Validator) referentialCheck(c *domain.ObservationCandidate) string {
	switch {
	case c.ProvinceID == 0:
		return fmt.Sprintf("unresolved province %q", c.ProvinceLabel)
	case c.ProcedureID == 0:
		return fmt.Sprintf("unresolved procedure %q", c.ProcedureLabel)
	case c.MetricID == 0:
		return fmt.Sprintf("unresolved metric %q", c.MetricLabel)
	}
	return ""
}

// businessRuleCheck enforces domain-plausible bounds per metric kind
func (v *Validator) businessRuleCheck(c *domain.ObservationCandidate, snap *dimension.Snapshot) string {
	if c.FiscalYear < v.cfg.MinYear || c.FiscalYear > v.cfg.MaxYear {
		return fmt.Sprintf("fiscal year %d outside [%d,%d]", c.FiscalYear, v.cfg.MinYear, v.cfg.MaxYear)
	}
	if c.Result == nil {
		return ""
	}
	val := *c.Result
	if val < 0 {
		return fmt.Sprintf("negative result %.2f", val)
	}

	metric, ok := snap.MetricByID(c.MetricID)
	if !ok {
		return ""
	}
	switch metric.Kind {
	case dimension.KindCompliance:
		if val > 100 {
			return fmt.Sprintf("percentage %.2f outside [0,100]", val)
		}
	case dimension.KindPercentile:
		if val > v.cfg.MaxWaitDays {
			return fmt.Sprintf("wait of %.0f days exceeds ceiling %.0f", val, v.cfg.MaxWaitDays)
		}
	case dimension.KindVolume:
		if val != math.Trunc(val) {
			return fmt.Sprintf("volume %.2f is not a whole number", val)
		}
	}
	return ""
}

// outlierCheck annotates the candidate with z-score severity against its
// historical series. Requires enough history and nonzero variance.
func (v *Validator) outlierCheck(c *domain.ObservationCandidate, history map[HistoryKey]HistoryStats) {
	if c.Result == nil {
		return
	}
	stats, ok := history[HistoryKey{c.ProvinceID, c.ProcedureID, c.MetricID}]
	if !ok || stats.Count < v.cfg.MinOutlierHistory || stats.StdDev == 0 {
		return
	}

	z := math.Abs(*c.Result-stats.Mean) / stats.StdDev
	c.ZScore = &z
	switch {
	case z >= v.cfg.OutlierExtremeZ:
		c.Outlier = domain.OutlierExtreme
	case z > v.cfg.OutlierSignificantZ:
		c.Outlier = domain.OutlierSignificant
	default:
		c.Outlier = domain.OutlierModerate
	}
}

// consistencyFindings reports advisory cross-row issues: duplicate
// natural keys within the batch and 90th percentiles below 50th for the
// same (province, procedure, year).
func (v *Validator) consistencyFindings(batch []domain.ObservationCandidate, snap *dimension.Snapshot) []string {
	var findings []string

	seen := make(map[domain.NaturalKey]int)
	type seriesKey struct {
		provinceID, procedureID, year int
	}
	p50 := make(map[seriesKey]float64)
	p90 := make(map[seriesKey]float64)

	for _, c := range batch {
		if c.Invalid {
			continue
		}
		seen[c.Key()]++

		if c.Result == nil {
			continue
		}
		metric, ok := snap.MetricByID(c.MetricID)
		if !ok || metric.Kind != dimension.KindPercentile {
			continue
		}
		sk := seriesKey{c.ProvinceID, c.ProcedureID, c.FiscalYear}
		switch metric.Code {
		case "PCT_50":
			p50[sk] = *c.Result
		case "PCT_90":
			p90[sk] = *c.Result
		}
	}

	dupes := 0
	for _, n := range seen {
		if n > 1 {
			dupes++
		}
	}
	if dupes > 0 {
		findings = append(findings, fmt.Sprintf("%d duplicate natural keys in batch", dupes))
	}

	inverted := 0
	for sk, lo := range p50 {
		if hi, ok := p90[sk]; ok && hi < lo {
			inverted++
		}
	}
	if inverted > 0 {
		findings = append(findings, fmt.Sprintf("%d series with 90th percentile below 50th", inverted))
	}

	return findings
}
