package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cwtcli/internal/analytics"
	"cwtcli/internal/config"
	apperrors "cwtcli/internal/errors"
	"cwtcli/pkg/contracts/domain"
)

type fakeAnalytics struct {
	trend       []domain.TrendSeries
	comparison  *domain.ComparisonResult
	benchmarks  []domain.BenchmarkRow
	outliers    []domain.OutlierRow
	correlation *domain.CorrelationResult
	longTerm    *domain.LongTermResult
	err         error

	lastTrendQuery analytics.TrendQuery
}

func (f *fakeAnalytics) Trend(ctx context.Context, q analytics.TrendQuery) ([]domain.TrendSeries, error) {
	f.lastTrendQuery = q
	return f.trend, f.err
}

func (f *fakeAnalytics) Comparison(ctx context.Context, procedure, metric string, year int) (*domain.ComparisonResult, error) {
	return f.comparison, f.err
}

func (f *fakeAnalytics) Benchmarks(ctx context.Context, province string, year int) ([]domain.BenchmarkRow, error) {
	return f.benchmarks, f.err
}

func (f *fakeAnalytics) Outliers(ctx context.Context, procedure, metric string) ([]domain.OutlierRow, error) {
	return f.outliers, f.err
}

func (f *fakeAnalytics) Correlation(ctx context.Context, procedure string) (*domain.CorrelationResult, error) {
	return f.correlation, f.err
}

func (f *fakeAnalytics) LongTerm(ctx context.Context, procedure, province string, fromYear, toYear int) (*domain.LongTermResult, error) {
	return f.longTerm, f.err
}

type fakeAudits struct {
	audits []domain.LoadAudit
	byID   map[string]*domain.LoadAudit
}

func (f *fakeAudits) GetAudit(ctx context.Context, runID string) (*domain.LoadAudit, error) {
	return f.byID[runID], nil
}

func (f *fakeAudits) ListAudits(ctx context.Context, limit int) ([]domain.LoadAudit, error) {
	return f.audits, nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func testRouter(svc AnalyticsService, audits AuditReader, db Pinger) http.Handler {
	return NewRouter(
		config.ServerConfig{RateLimitRPS: 1000, RateLimitBurst: 1000},
		RouterDeps{
			Analytics: svc,
			Audits:    audits,
			DB:        db,
			Version:   "test",
			Logger:    slog.Default(),
		})
}

func doGet(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTrendsEndpoint(t *testing.T) {
	svc := &fakeAnalytics{
		trend: []domain.TrendSeries{{Province: "Ontario", Procedure: "Hip Replacement"}},
	}
	router := testRouter(svc, &fakeAudits{}, &fakePinger{})

	rec := doGet(t, router, "/api/trends?province=Ontario&procedure=Hip+Replacement&from_year=2019&to_year=2023")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Series []domain.TrendSeries `json:"series"`
		Count  int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Ontario", body.Series[0].Province)
	assert.Equal(t, 2019, svc.lastTrendQuery.FromYear)
	assert.Equal(t, 2023, svc.lastTrendQuery.ToYear)
}

func TestTrendsWithoutFilters(t *testing.T) {
	svc := &fakeAnalytics{
		trend: []domain.TrendSeries{
			{Province: "Alberta", Procedure: "Hip Replacement"},
			{Province: "Ontario", Procedure: "Hip Replacement"},
		},
	}
	router := testRouter(svc, &fakeAudits{}, &fakePinger{})

	rec := doGet(t, router, "/api/trends")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Series []domain.TrendSeries `json:"series"`
		Count  int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Empty(t, svc.lastTrendQuery.Province)
	assert.Empty(t, svc.lastTrendQuery.Procedure)
}

func TestTrendsBadYear(t *testing.T) {
	router := testRouter(&fakeAnalytics{}, &fakeAudits{}, &fakePinger{})
	rec := doGet(t, router, "/api/trends?province=ON&procedure=Hip&from_year=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrendsUnknownDimension(t *testing.T) {
	svc := &fakeAnalytics{err: apperrors.NewDimensionNotFound(apperrors.KindProvince, "Atlantis")}
	router := testRouter(svc, &fakeAudits{}, &fakePinger{})

	rec := doGet(t, router, "/api/trends?province=Atlantis&procedure=Hip")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var problem apperrors.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "dimension-not-found", problem.Type)
}

func TestTrendsAmbiguousDimension(t *testing.T) {
	svc := &fakeAnalytics{err: apperrors.NewDimensionAmbiguous(
		apperrors.KindProcedure, "cancer", []string{"Bladder Cancer Surgery", "Breast Cancer Surgery"})}
	router := testRouter(svc, &fakeAudits{}, &fakePinger{})

	rec := doGet(t, router, "/api/trends?province=ON&procedure=cancer")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var problem apperrors.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "ambiguous-label", problem.Type)
	assert.Len(t, problem.Candidates, 2)
}

func TestComparisonEndpoint(t *testing.T) {
	svc := &fakeAnalytics{
		comparison: &domain.ComparisonResult{Procedure: "Hip Replacement", Year: 2023, Mean: 110},
	}
	router := testRouter(svc, &fakeAudits{}, &fakePinger{})

	rec := doGet(t, router, "/api/comparison?procedure=Hip+Replacement")
	require.Equal(t, http.StatusOK, rec.Code)

	var body domain.ComparisonResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2023, body.Year)
}

func TestComparisonRequiresProcedure(t *testing.T) {
	router := testRouter(&fakeAnalytics{}, &fakeAudits{}, &fakePinger{})
	rec := doGet(t, router, "/api/comparison")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOutliersWithoutProcedure(t *testing.T) {
	svc := &fakeAnalytics{
		outliers: []domain.OutlierRow{
			{Province: "Ontario", Procedure: "Hip Replacement", FiscalYear: 2022},
			{Province: "Ontario", Procedure: "CT Scan", FiscalYear: 2022},
		},
	}
	router := testRouter(svc, &fakeAudits{}, &fakePinger{})

	rec := doGet(t, router, "/api/outliers")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rows  []domain.OutlierRow `json:"rows"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}

func TestQueryTimeoutMapsToGatewayTimeout(t *testing.T) {
	svc := &fakeAnalytics{err: apperrors.NewQueryTimeout("series_values", 0)}
	router := testRouter(svc, &fakeAudits{}, &fakePinger{})

	rec := doGet(t, router, "/api/trends?province=ON&procedure=Hip")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var problem apperrors.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.True(t, problem.Retryable)
}

func TestCorrelationEndpoint(t *testing.T) {
	svc := &fakeAnalytics{
		correlation: &domain.CorrelationResult{Procedure: "Hip Replacement", SampleSize: 10, MinSample: 15},
	}
	router := testRouter(svc, &fakeAudits{}, &fakePinger{})

	rec := doGet(t, router, "/api/correlation?procedure=Hip")
	require.Equal(t, http.StatusOK, rec.Code)

	var body domain.CorrelationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Sufficient)
}

func TestLongTermInsufficientWindow(t *testing.T) {
	svc := &fakeAnalytics{err: analytics.ErrInsufficientData}
	router := testRouter(svc, &fakeAudits{}, &fakePinger{})

	rec := doGet(t, router, "/api/longterm?procedure=Hip")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditEndpoints(t *testing.T) {
	runID := "7a1f9a33-8f0d-4a58-b2d3-6e1f6aafc001"
	audits := &fakeAudits{
		audits: []domain.LoadAudit{{RunID: runID, Status: domain.LoadCompleted}},
		byID:   map[string]*domain.LoadAudit{runID: {RunID: runID, Status: domain.LoadCompleted}},
	}
	router := testRouter(&fakeAnalytics{}, audits, &fakePinger{})

	rec := doGet(t, router, "/api/audits?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doGet(t, router, "/api/audits/"+runID)
	require.Equal(t, http.StatusOK, rec.Code)
	var audit domain.LoadAudit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &audit))
	assert.Equal(t, runID, audit.RunID)

	rec = doGet(t, router, "/api/audits/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doGet(t, router, "/api/audits/7a1f9a33-8f0d-4a58-b2d3-6e1f6aafc002")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(&fakeAnalytics{}, &fakeAudits{}, &fakePinger{})
	rec := doGet(t, router, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	router = testRouter(&fakeAnalytics{}, &fakeAudits{}, &fakePinger{err: context.DeadlineExceeded})
	rec = doGet(t, router, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimiting(t *testing.T) {
	router := NewRouter(
		config.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1},
		RouterDeps{
			Analytics: &fakeAnalytics{},
			Audits:    &fakeAudits{},
			DB:        &fakePinger{},
			Logger:    slog.Default(),
		})

	first := doGet(t, router, "/api/health")
	assert.Equal(t, http.StatusOK, first.Code)

	second := doGet(t, router, "/api/health")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
