package dimension

import (
	"fmt"
	"sort"
	"time"
)

// ValidateBenchmarks enforces the effective-date-range invariant: at most
// one benchmark may be effective for a (procedure, metric) pair at any
// date. Overlapping ranges are a data-integrity error; no winner is picked.
func ValidateBenchmarks(benchmarks []Benchmark) error {
	type pair struct{ procedureID, metricID int }
	grouped := make(map[pair][]Benchmark)
	for _, b := range benchmarks {
		key := pair{b.ProcedureID, b.MetricID}
		grouped[key] = append(grouped[key], b)
	}

	for key, group := range grouped {
		sort.Slice(group, func(i, j int) bool {
			return group[i].From.Before(group[j].From)
		})
		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1], group[i]
			// prev is open-ended or ends on/after cur starts
			if prev.To == nil || !prev.To.Before(cur.From) {
				return fmt.Errorf(
					"overlapping benchmarks for procedure %d metric %d: range starting %s overlaps range starting %s",
					key.procedureID, key.metricID,
					prev.From.Format("2006-01-02"), cur.From.Format("2006-01-02"))
			}
		}
	}
	return nil
}

// EffectiveBenchmark returns the benchmark in force for a (procedure,
// metric) pair at the given date, if any
func (s *Snapshot) EffectiveBenchmark(procedureID, metricID int, at time.Time) (Benchmark, bool) {
	for _, b := range s.Benchmarks {
		if b.ProcedureID == procedureID && b.MetricID == metricID && b.Covers(at) {
			return b, true
		}
	}
	return Benchmark{}, false
}
