package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"cwtcli/internal/analytics"
	apperrors "cwtcli/internal/errors"
	"cwtcli/pkg/contracts/domain"
)

// AnalyticsService is the read-side surface the handlers need from the
// analytics engine
type AnalyticsService interface {
	Trend(ctx context.Context, q analytics.TrendQuery) ([]domain.TrendSeries, error)
	Comparison(ctx context.Context, procedure, metric string, year int) (*domain.ComparisonResult, error)
	Benchmarks(ctx context.Context, province string, year int) ([]domain.BenchmarkRow, error)
	Outliers(ctx context.Context, procedure, metric string) ([]domain.OutlierRow, error)
	Correlation(ctx context.Context, procedure string) (*domain.CorrelationResult, error)
	LongTerm(ctx context.Context, procedure, province string, fromYear, toYear int) (*domain.LongTermResult, error)
}

// AnalyticsHandler serves the analytics query endpoints
type AnalyticsHandler struct {
	service      AnalyticsService
	validate     *validator.Validate
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewAnalyticsHandler creates the analytics handler
func NewAnalyticsHandler(service AnalyticsService, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *AnalyticsHandler {
	return &AnalyticsHandler{
		service:      service,
		validate:     validator.New(),
		logger:       logger.With(slog.String("component", "analytics_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the analytics routes
func (h *AnalyticsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/trends", h.GetTrends)
	r.Get("/comparison", h.GetComparison)
	r.Get("/benchmarks", h.GetBenchmarks)
	r.Get("/outliers", h.GetOutliers)
	r.Get("/correlation", h.GetCorrelation)
	r.Get("/longterm", h.GetLongTerm)

	return r
}

type trendParams struct {
	Province  string `validate:"omitempty,max=100"`
	Procedure string `validate:"omitempty,max=100"`
	Metric    string `validate:"omitempty,max=100"`
	FromYear  int    `validate:"omitempty,gte=1900,lte=2100"`
	ToYear    int    `validate:"omitempty,gte=1900,lte=2100,gtefield=FromYear"`
}

// GetTrends returns year-over-year series. Province and procedure
// narrow the scan; omitting either returns every matching series.
func (h *AnalyticsHandler) GetTrends(w http.ResponseWriter, r *http.Request) {
	params := trendParams{
		Province:  r.URL.Query().Get("province"),
		Procedure: r.URL.Query().Get("procedure"),
		Metric:    r.URL.Query().Get("metric"),
	}
	var err error
	if params.FromYear, err = yearParam(r, "from_year"); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if params.ToYear, err = yearParam(r, "to_year"); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if err := h.validate.Struct(params); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationFailure("query_params", err.Error()))
		return
	}

	result, err := h.service.Trend(r.Context(), analytics.TrendQuery{
		Province:  params.Province,
		Procedure: params.Procedure,
		Metric:    params.Metric,
		FromYear:  params.FromYear,
		ToYear:    params.ToYear,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"series": result, "count": len(result)})
}

// GetComparison ranks provinces for one procedure and year
func (h *AnalyticsHandler) GetComparison(w http.ResponseWriter, r *http.Request) {
	procedure := r.URL.Query().Get("procedure")
	if procedure == "" {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationFailure("procedure", "procedure is required"))
		return
	}
	year, err := yearParam(r, "year")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.service.Comparison(r.Context(), procedure, r.URL.Query().Get("metric"), year)
	if err != nil {
		if errors.Is(err, analytics.ErrInsufficientData) {
			h.errorHandler.HandleError(w, r, apperrors.NewValidationFailure("data", err.Error()))
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// GetBenchmarks returns compliance classifications, optionally filtered
// to one province
func (h *AnalyticsHandler) GetBenchmarks(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(r, "year")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	rows, err := h.service.Benchmarks(r.Context(), r.URL.Query().Get("province"), year)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"rows": rows, "count": len(rows)})
}

// GetOutliers returns records beyond the z-score bound. An absent
// procedure scans every procedure.
func (h *AnalyticsHandler) GetOutliers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Outliers(r.Context(), r.URL.Query().Get("procedure"), r.URL.Query().Get("metric"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"rows": rows, "count": len(rows)})
}

// GetCorrelation returns the volume/wait correlation for one procedure
func (h *AnalyticsHandler) GetCorrelation(w http.ResponseWriter, r *http.Request) {
	procedure := r.URL.Query().Get("procedure")
	if procedure == "" {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationFailure("procedure", "procedure is required"))
		return
	}

	result, err := h.service.Correlation(r.Context(), procedure)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// GetLongTerm compares early and recent halves of a multi-year window
func (h *AnalyticsHandler) GetLongTerm(w http.ResponseWriter, r *http.Request) {
	procedure := r.URL.Query().Get("procedure")
	if procedure == "" {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationFailure("procedure", "procedure is required"))
		return
	}
	fromYear, err := yearParam(r, "from_year")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	toYear, err := yearParam(r, "to_year")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.service.LongTerm(r.Context(), procedure, r.URL.Query().Get("province"), fromYear, toYear)
	if err != nil {
		if errors.Is(err, analytics.ErrInsufficientData) {
			h.errorHandler.HandleError(w, r, apperrors.NewValidationFailure("window", err.Error()))
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// yearParam parses an optional integer year query parameter; absent means
// zero
func yearParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationFailure(name, "must be an integer year")
	}
	return year, nil
}
