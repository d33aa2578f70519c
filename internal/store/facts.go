package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cwtcli/internal/quality"
	"cwtcli/pkg/contracts/domain"
)

// SeriesPoint is one year of a (province, procedure, metric) series
type SeriesPoint struct {
	FiscalYear int
	Value      *float64
	Volume     *float64
}

// SeriesRow is one observation carrying its series identity, for queries
// that span provinces or procedures
type SeriesRow struct {
	ProvinceID    int
	ProvinceName  string
	ProcedureID   int
	ProcedureName string
	FiscalYear    int
	Value         *float64
}

// ProvinceValue is one province's value for a (procedure, metric, year)
type ProvinceValue struct {
	ProvinceID   int
	ProvinceCode string
	ProvinceName string
	Value        float64
}

// GroupedValue is one observation within a (province, procedure) group,
// used for historical outlier scans
type GroupedValue struct {
	ProvinceID    int
	ProvinceName  string
	ProcedureID   int
	ProcedureName string
	FiscalYear    int
	Value         float64
}

// CompliancePoint is one (province, procedure) benchmark-compliance value
type CompliancePoint struct {
	ProvinceID    int
	ProvinceName  string
	ProcedureID   int
	ProcedureName string
	FiscalYear    int
	CompliancePct float64
}

// VolumeWaitPair is one (volume, median wait) observation for correlation
type VolumeWaitPair struct {
	ProvinceID int
	FiscalYear int
	Volume     float64
	MedianWait float64
}

// UpsertObservationTx writes one fact row inside a load transaction,
// keyed on the natural key. Returns whether the row was newly inserted.
func (s *Store) UpsertObservationTx(ctx context.Context, tx pgx.Tx, c domain.ObservationCandidate) (bool, error) {
	var inserted bool
	err := tx.QueryRow(ctx, `
		INSERT INTO fact_wait_times
			(province_id, procedure_id, metric_id, level_id, fiscal_year,
			 result_value, volume_cases, data_quality_flag, source_file)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT uq_fact_natural_key DO UPDATE SET
			level_id          = EXCLUDED.level_id,
			result_value      = EXCLUDED.result_value,
			volume_cases      = EXCLUDED.volume_cases,
			data_quality_flag = EXCLUDED.data_quality_flag,
			source_file       = EXCLUDED.source_file,
			updated_at        = now()
		RETURNING (xmax = 0)`,
		c.ProvinceID, c.ProcedureID, c.MetricID, c.LevelID, c.FiscalYear,
		c.Result, c.Volume, string(c.Quality), c.SourceFile,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert observation: %w", err)
	}
	return inserted, nil
}

// RecomputeBenchmarkMetTx refreshes is_benchmark_met from the benchmark
// reference table. A wait meets its benchmark when the value is on the
// favorable side of the target in force at the fiscal year start.
// Metrics with no directionality keep a null verdict.
func (s *Store) RecomputeBenchmarkMetTx(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		UPDATE fact_wait_times f
		SET is_benchmark_met = CASE
			WHEN f.result_value IS NULL THEN NULL
			WHEN m.higher_is_better IS NULL THEN NULL
			WHEN m.higher_is_better = 1 THEN f.result_value >= b.target_value
			ELSE f.result_value <= b.target_value
		END
		FROM ref_benchmarks b
		JOIN dim_metrics m ON m.metric_id = b.metric_id
		WHERE f.procedure_id = b.procedure_id
		  AND f.metric_id = b.metric_id
		  AND make_date(f.fiscal_year, 4, 1) >= b.effective_from
		  AND (b.effective_to IS NULL OR make_date(f.fiscal_year, 4, 1) <= b.effective_to)`)
	if err != nil {
		return fmt.Errorf("recompute benchmark met: %w", err)
	}
	return nil
}

// HistoryStats computes per-series mean and population stddev over all
// committed non-null values, for outlier scoring of incoming rows
func (s *Store) HistoryStats(ctx context.Context) (map[quality.HistoryKey]quality.HistoryStats, error) {
	stats := make(map[quality.HistoryKey]quality.HistoryStats)
	err := s.query(ctx, "history_stats", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT province_id, procedure_id, metric_id,
			       COUNT(result_value),
			       COALESCE(AVG(result_value), 0),
			       COALESCE(STDDEV_POP(result_value), 0)
			FROM fact_wait_times
			WHERE result_value IS NOT NULL
			GROUP BY province_id, procedure_id, metric_id`)
		if err != nil {
			return fmt.Errorf("query history stats: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				key quality.HistoryKey
				st  quality.HistoryStats
			)
			if err := rows.Scan(&key.ProvinceID, &key.ProcedureID, &key.MetricID,
				&st.Count, &st.Mean, &st.StdDev); err != nil {
				return fmt.Errorf("scan history stats: %w", err)
			}
			stats[key] = st
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// SeriesValues returns one series ordered by fiscal year, null years included
func (s *Store) SeriesValues(ctx context.Context, provinceID, procedureID, metricID int) ([]SeriesPoint, error) {
	var points []SeriesPoint
	err := s.query(ctx, "series_values", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT fiscal_year, result_value, volume_cases
			FROM fact_wait_times
			WHERE province_id = $1 AND procedure_id = $2 AND metric_id = $3
			ORDER BY fiscal_year`,
			provinceID, procedureID, metricID)
		if err != nil {
			return fmt.Errorf("query series: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var p SeriesPoint
			if err := rows.Scan(&p.FiscalYear, &p.Value, &p.Volume); err != nil {
				return fmt.Errorf("scan series point: %w", err)
			}
			points = append(points, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// SeriesRows returns every observation for one metric across series,
// null years included. provinceID or procedureID <= 0 means all.
func (s *Store) SeriesRows(ctx context.Context, provinceID, procedureID, metricID int) ([]SeriesRow, error) {
	var out []SeriesRow
	err := s.query(ctx, "series_rows", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT f.province_id, p.province_name, f.procedure_id, pr.procedure_name,
			       f.fiscal_year, f.result_value
			FROM fact_wait_times f
			JOIN dim_provinces p ON p.province_id = f.province_id
			JOIN dim_procedures pr ON pr.procedure_id = f.procedure_id
			WHERE f.metric_id = $1
			  AND ($2 <= 0 OR f.province_id = $2)
			  AND ($3 <= 0 OR f.procedure_id = $3)
			ORDER BY p.province_name, pr.procedure_name, f.fiscal_year`,
			metricID, provinceID, procedureID)
		if err != nil {
			return fmt.Errorf("query series rows: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r SeriesRow
			if err := rows.Scan(&r.ProvinceID, &r.ProvinceName, &r.ProcedureID,
				&r.ProcedureName, &r.FiscalYear, &r.Value); err != nil {
				return fmt.Errorf("scan series row: %w", err)
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// YearValues returns every province's non-null value for one
// (procedure, metric, year), national aggregate included
func (s *Store) YearValues(ctx context.Context, procedureID, metricID, fiscalYear int) ([]ProvinceValue, error) {
	var values []ProvinceValue
	err := s.query(ctx, "year_values", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT f.province_id, p.province_code, p.province_name, f.result_value
			FROM fact_wait_times f
			JOIN dim_provinces p ON p.province_id = f.province_id
			WHERE f.procedure_id = $1 AND f.metric_id = $2 AND f.fiscal_year = $3
			  AND f.result_value IS NOT NULL
			ORDER BY p.province_name`,
			procedureID, metricID, fiscalYear)
		if err != nil {
			return fmt.Errorf("query year values: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var v ProvinceValue
			if err := rows.Scan(&v.ProvinceID, &v.ProvinceCode, &v.ProvinceName, &v.Value); err != nil {
				return fmt.Errorf("scan province value: %w", err)
			}
			values = append(values, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// GroupedValues returns every non-null observation for one metric,
// grouped implicitly by (province, procedure), for outlier scans.
// procedureID <= 0 means all procedures.
func (s *Store) GroupedValues(ctx context.Context, procedureID, metricID int) ([]GroupedValue, error) {
	var values []GroupedValue
	err := s.query(ctx, "grouped_values", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT f.province_id, p.province_name, f.procedure_id, pr.procedure_name,
			       f.fiscal_year, f.result_value
			FROM fact_wait_times f
			JOIN dim_provinces p ON p.province_id = f.province_id
			JOIN dim_procedures pr ON pr.procedure_id = f.procedure_id
			WHERE f.metric_id = $1
			  AND ($2 <= 0 OR f.procedure_id = $2)
			  AND f.result_value IS NOT NULL
			ORDER BY f.province_id, f.procedure_id, f.fiscal_year`,
			metricID, procedureID)
		if err != nil {
			return fmt.Errorf("query grouped values: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var v GroupedValue
			if err := rows.Scan(&v.ProvinceID, &v.ProvinceName, &v.ProcedureID,
				&v.ProcedureName, &v.FiscalYear, &v.Value); err != nil {
				return fmt.Errorf("scan grouped value: %w", err)
			}
			values = append(values, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// ComplianceValues returns benchmark-compliance percentages for one fiscal
// year, optionally filtered to a province. provinceID <= 0 means all.
func (s *Store) ComplianceValues(ctx context.Context, metricID, fiscalYear, provinceID int) ([]CompliancePoint, error) {
	var points []CompliancePoint
	err := s.query(ctx, "compliance_values", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT f.province_id, p.province_name, f.procedure_id, pr.procedure_name,
			       f.fiscal_year, f.result_value
			FROM fact_wait_times f
			JOIN dim_provinces p ON p.province_id = f.province_id
			JOIN dim_procedures pr ON pr.procedure_id = f.procedure_id
			WHERE f.metric_id = $1 AND f.fiscal_year = $2
			  AND f.result_value IS NOT NULL
			  AND ($3 <= 0 OR f.province_id = $3)
			ORDER BY p.province_name, pr.procedure_name`,
			metricID, fiscalYear, provinceID)
		if err != nil {
			return fmt.Errorf("query compliance values: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c CompliancePoint
			if err := rows.Scan(&c.ProvinceID, &c.ProvinceName, &c.ProcedureID, &c.ProcedureName,
				&c.FiscalYear, &c.CompliancePct); err != nil {
				return fmt.Errorf("scan compliance point: %w", err)
			}
			points = append(points, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// VolumeWaitPairs joins case volume against median wait for one procedure
// across all (province, year) observations where both are present
func (s *Store) VolumeWaitPairs(ctx context.Context, procedureID, volumeMetricID, medianMetricID int) ([]VolumeWaitPair, error) {
	var pairs []VolumeWaitPair
	err := s.query(ctx, "volume_wait_pairs", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT v.province_id, v.fiscal_year, v.result_value, w.result_value
			FROM fact_wait_times v
			JOIN fact_wait_times w
			  ON w.province_id = v.province_id
			 AND w.procedure_id = v.procedure_id
			 AND w.fiscal_year = v.fiscal_year
			WHERE v.procedure_id = $1
			  AND v.metric_id = $2 AND w.metric_id = $3
			  AND v.result_value IS NOT NULL AND w.result_value IS NOT NULL
			ORDER BY v.province_id, v.fiscal_year`,
			procedureID, volumeMetricID, medianMetricID)
		if err != nil {
			return fmt.Errorf("query volume wait pairs: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var p VolumeWaitPair
			if err := rows.Scan(&p.ProvinceID, &p.FiscalYear, &p.Volume, &p.MedianWait); err != nil {
				return fmt.Errorf("scan volume wait pair: %w", err)
			}
			pairs = append(pairs, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

// LatestFiscalYear reports the most recent year with any committed fact.
// Zero with ok=false when the fact table is empty.
func (s *Store) LatestFiscalYear(ctx context.Context) (int, bool, error) {
	var year *int
	err := s.query(ctx, "latest_fiscal_year", func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, `SELECT MAX(fiscal_year) FROM fact_wait_times`).Scan(&year)
	})
	if err != nil {
		return 0, false, err
	}
	if year == nil {
		return 0, false, nil
	}
	return *year, true, nil
}
