package dimension

import (
	"sort"
	"strings"

	apperrors "cwtcli/internal/errors"
)

// MatchKind describes how a label resolved
type MatchKind int

const (
	// MatchExact means the label equalled a canonical name case-insensitively
	MatchExact MatchKind = iota
	// MatchFuzzy means the label resolved through the substring fallback
	MatchFuzzy
	// MatchAmbiguous means the substring fallback found several equally
	// short candidates; no identifier is returned
	MatchAmbiguous
	// MatchNotFound means no canonical name matched at all
	MatchNotFound
)

// Match is the typed result of a two-stage dimension lookup
type Match struct {
	Kind       MatchKind
	ID         int
	Name       string
	Candidates []string
}

// index maps normalized canonical names to identifiers and display names
// for one dimension kind
type index struct {
	ids   map[string]int
	names map[string]string
}

func newIndex() index {
	return index{ids: make(map[string]int), names: make(map[string]string)}
}

func (ix index) put(name string, id int) {
	norm := normalize(name)
	ix.ids[norm] = id
	ix.names[norm] = name
}

// Snapshot is a read-only in-memory view of the dimension tables, built
// once per ETL run or analytics session. Safe for concurrent use.
type Snapshot struct {
	Provinces  []Province
	Procedures []Procedure
	Metrics    []Metric
	Levels     []ReportingLevel
	Benchmarks []Benchmark

	byKind        map[apperrors.DimensionKind]index
	provincesByID map[int]Province
	metricsByID   map[int]Metric
	levelsByName  map[string]ReportingLevel
}

// metricAliases folds known spelling variants of metric names onto their
// canonical form before lookup, matching how source spreadsheets vary.
var metricAliases = map[string]string{
	"50th percentile":     "50th Percentile",
	"90th percentile":     "90th Percentile",
	"% meeting benchmark": "% Meeting Benchmark",
	"volume":              "Volume",
}

// NewSnapshot indexes dimension rows for name lookup
func NewSnapshot(provinces []Province, procedures []Procedure, metrics []Metric, levels []ReportingLevel, benchmarks []Benchmark) *Snapshot {
	s := &Snapshot{
		Provinces:     provinces,
		Procedures:    procedures,
		Metrics:       metrics,
		Levels:        levels,
		Benchmarks:    benchmarks,
		byKind:        make(map[apperrors.DimensionKind]index, 3),
		provincesByID: make(map[int]Province, len(provinces)),
		metricsByID:   make(map[int]Metric, len(metrics)),
		levelsByName:  make(map[string]ReportingLevel, len(levels)),
	}

	provIx, procIx, metricIx := newIndex(), newIndex(), newIndex()
	for _, p := range provinces {
		provIx.put(p.Name, p.ID)
		s.provincesByID[p.ID] = p
	}
	for _, p := range procedures {
		procIx.put(p.Name, p.ID)
	}
	for _, m := range metrics {
		metricIx.put(m.Name, m.ID)
		s.metricsByID[m.ID] = m
	}
	for _, l := range levels {
		s.levelsByName[normalize(l.Name)] = l
	}

	s.byKind[apperrors.KindProvince] = provIx
	s.byKind[apperrors.KindProcedure] = procIx
	s.byKind[apperrors.KindMetric] = metricIx
	return s
}

// normalize lowercases and collapses interior whitespace so that lookups
// tolerate inconsistent casing and spacing in source labels
func normalize(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// Resolve maps a free-text label to a dimension identifier: exact
// case-insensitive match first, then substring fallback with a
// deterministic shortest-then-alphabetical tie-break. Ambiguous and
// unmatched labels return an error alongside the typed Match.
func (s *Snapshot) Resolve(kind apperrors.DimensionKind, label string) (Match, error) {
	ix, ok := s.byKind[kind]
	if !ok {
		return Match{Kind: MatchNotFound}, apperrors.NewDimensionNotFound(kind, label)
	}

	key := normalize(label)
	if kind == apperrors.KindMetric {
		if canon, ok := metricAliases[key]; ok {
			key = normalize(canon)
		}
	}

	if id, ok := ix.ids[key]; ok {
		return Match{Kind: MatchExact, ID: id, Name: ix.names[key]}, nil
	}

	// Substring fallback: label contained in a canonical name or vice versa.
	var candidates []string
	for norm := range ix.ids {
		if strings.Contains(norm, key) || strings.Contains(key, norm) {
			candidates = append(candidates, norm)
		}
	}

	switch len(candidates) {
	case 0:
		return Match{Kind: MatchNotFound}, apperrors.NewDimensionNotFound(kind, label)
	case 1:
		norm := candidates[0]
		return Match{Kind: MatchFuzzy, ID: ix.ids[norm], Name: ix.names[norm]}, nil
	}

	// Tie-break: shortest canonical name wins; equal lengths sort
	// alphabetically so behavior is reproducible.
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) < len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})

	if len(candidates[0]) < len(candidates[1]) {
		norm := candidates[0]
		return Match{Kind: MatchFuzzy, ID: ix.ids[norm], Name: ix.names[norm]}, nil
	}

	display := make([]string, len(candidates))
	for i, norm := range candidates {
		display[i] = ix.names[norm]
	}
	return Match{Kind: MatchAmbiguous, Candidates: display},
		apperrors.NewDimensionAmbiguous(kind, label, display)
}

// ResolveLevel resolves a reporting-level name; levels are few and
// well-formed so only the exact stage applies
func (s *Snapshot) ResolveLevel(label string) (ReportingLevel, bool) {
	l, ok := s.levelsByName[normalize(label)]
	return l, ok
}

// ProvinceByID returns the province row for an identifier
func (s *Snapshot) ProvinceByID(id int) (Province, bool) {
	p, ok := s.provincesByID[id]
	return p, ok
}

// MetricByID returns the metric row for an identifier
func (s *Snapshot) MetricByID(id int) (Metric, bool) {
	m, ok := s.metricsByID[id]
	return m, ok
}

// MetricByName resolves an exact metric name, alias-folded
func (s *Snapshot) MetricByName(name string) (Metric, bool) {
	key := normalize(name)
	if canon, ok := metricAliases[key]; ok {
		key = normalize(canon)
	}
	id, ok := s.byKind[apperrors.KindMetric].ids[key]
	if !ok {
		return Metric{}, false
	}
	return s.metricsByID[id], true
}
