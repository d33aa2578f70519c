package store

import (
	"context"
	"fmt"
	"time"

	"cwtcli/internal/dimension"
)

// LoadSnapshot reads every dimension table into an in-memory snapshot for
// resolution and benchmark lookups. Call once per ETL run or analytics
// session; the snapshot is immutable afterward.
func (s *Store) LoadSnapshot(ctx context.Context) (*dimension.Snapshot, error) {
	var (
		provinces  []dimension.Province
		procedures []dimension.Procedure
		metrics    []dimension.Metric
		levels     []dimension.ReportingLevel
		benchmarks []dimension.Benchmark
	)

	err := s.query(ctx, "load_snapshot", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx,
			`SELECT province_id, province_code, province_name, region, COALESCE(population, 0)
			 FROM dim_provinces ORDER BY province_id`)
		if err != nil {
			return fmt.Errorf("query provinces: %w", err)
		}
		for rows.Next() {
			var p dimension.Province
			if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Region, &p.Population); err != nil {
				rows.Close()
				return fmt.Errorf("scan province: %w", err)
			}
			provinces = append(provinces, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("read provinces: %w", err)
		}

		rows, err = s.pool.Query(ctx,
			`SELECT procedure_id, procedure_code, procedure_name, category, is_surgical, description
			 FROM dim_procedures ORDER BY procedure_id`)
		if err != nil {
			return fmt.Errorf("query procedures: %w", err)
		}
		for rows.Next() {
			var p dimension.Procedure
			if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.IsSurgical, &p.Description); err != nil {
				rows.Close()
				return fmt.Errorf("scan procedure: %w", err)
			}
			procedures = append(procedures, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("read procedures: %w", err)
		}

		rows, err = s.pool.Query(ctx,
			`SELECT metric_id, metric_code, metric_name, metric_kind, unit, higher_is_better
			 FROM dim_metrics ORDER BY metric_id`)
		if err != nil {
			return fmt.Errorf("query metrics: %w", err)
		}
		for rows.Next() {
			var (
				m      dimension.Metric
				kind   string
				higher *int16
			)
			if err := rows.Scan(&m.ID, &m.Code, &m.Name, &kind, &m.Unit, &higher); err != nil {
				rows.Close()
				return fmt.Errorf("scan metric: %w", err)
			}
			m.Kind = dimension.MetricKind(kind)
			m.Direction = directionOf(higher)
			metrics = append(metrics, m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("read metrics: %w", err)
		}

		rows, err = s.pool.Query(ctx,
			`SELECT level_id, level_code, level_name FROM dim_reporting_levels ORDER BY level_id`)
		if err != nil {
			return fmt.Errorf("query levels: %w", err)
		}
		for rows.Next() {
			var l dimension.ReportingLevel
			if err := rows.Scan(&l.ID, &l.Code, &l.Name); err != nil {
				rows.Close()
				return fmt.Errorf("scan level: %w", err)
			}
			levels = append(levels, l)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("read levels: %w", err)
		}

		rows, err = s.pool.Query(ctx,
			`SELECT benchmark_id, procedure_id, metric_id, target_value, effective_from, effective_to
			 FROM ref_benchmarks ORDER BY benchmark_id`)
		if err != nil {
			return fmt.Errorf("query benchmarks: %w", err)
		}
		for rows.Next() {
			var (
				b  dimension.Benchmark
				to *time.Time
			)
			if err := rows.Scan(&b.ID, &b.ProcedureID, &b.MetricID, &b.Target, &b.From, &to); err != nil {
				rows.Close()
				return fmt.Errorf("scan benchmark: %w", err)
			}
			b.To = to
			benchmarks = append(benchmarks, b)
		}
		rows.Close()
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if err := dimension.ValidateBenchmarks(benchmarks); err != nil {
		return nil, err
	}

	s.logger.Debug("dimension snapshot loaded",
		"provinces", len(provinces),
		"procedures", len(procedures),
		"metrics", len(metrics),
		"benchmarks", len(benchmarks),
	)
	return dimension.NewSnapshot(provinces, procedures, metrics, levels, benchmarks), nil
}

// directionOf maps the nullable higher_is_better column to a direction
func directionOf(higher *int16) dimension.Direction {
	switch {
	case higher == nil:
		return dimension.Neutral
	case *higher > 0:
		return dimension.HigherIsBetter
	default:
		return dimension.LowerIsBetter
	}
}
