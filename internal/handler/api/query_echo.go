package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"EMSpark/internal/domain/models"
	"EMSpark/internal/services/query"
	"EMSpark/internal/usecase"
	xhttp "EMSpark/pkg/http"
	"EMSpark/pkg/http/middleware"
	xlogger "EMSpark/pkg/logger"
)

// Example questions returned with 422 responses.
var exampleQueries = []string{
	"DAM today",
	"RTM 6-8 hrs for 14 Nov 2025",
	"GDAM 20-50 slots on 12 Oct 2024",
	"Compare Nov 2022, 2023, 2024",
	"DAM for this week excluding Sunday",
}

// SpecResolver resolves free text, optionally for a forced market.
type SpecResolver interface {
	Resolve(ctx context.Context, text string) ([]models.QuerySpec, query.Source)
	Parser() *query.Parser
}

// ReportAnswerer builds and renders reports.
type ReportAnswerer interface {
	Answer(ctx context.Context, req models.ReportRequest) (models.ReportResponse, error)
}

// JobQueue accepts report requests for asynchronous processing.
type JobQueue interface {
	Enqueue(ctx context.Context, req models.ReportRequest) error
}

// JobResults looks up the response of a finished asynchronous report.
type JobResults interface {
	Result(ctx context.Context, id string) (models.ReportResponse, bool, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// QueryEchoHandler serves the query API.
type QueryEchoHandler struct {
	logger   *xlogger.Logger
	resolver SpecResolver
	reports  ReportAnswerer
	jobs     JobQueue
	results  JobResults
	checks   map[string]HealthCheck
}

// NewQueryEchoHandler wires the handler. jobs and results may be nil, which
// disables asynchronous reports.
func NewQueryEchoHandler(logger *xlogger.Logger, resolver SpecResolver, reports ReportAnswerer, jobs JobQueue, results JobResults, checks map[string]HealthCheck) *QueryEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &QueryEchoHandler{logger: logger, resolver: resolver, reports: reports, jobs: jobs, results: results, checks: checks}
}

func (h *QueryEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/query/parse", h.Parse)
	g.POST("/query/report", h.Report)
	g.GET("/query/report/:id", h.ReportResult)
	g.GET("/health", h.Health)
}

// Parse returns the specs a question resolves to without touching data.
func (h *QueryEchoHandler) Parse(c echo.Context) error {
	req := &models.ParseRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var (
		specs []models.QuerySpec
		src   query.Source
	)
	if m, ok := models.ParseMarket(req.Market); ok {
		specs, src = h.resolver.Parser().ParseForMarket(req.Query, m), query.SourceRules
	}
	if len(specs) == 0 {
		specs, src = h.resolver.Resolve(c.Request().Context(), req.Query)
	}
	if len(specs) == 0 {
		return xhttp.AppErrorResponse(c, unresolvedError())
	}
	return xhttp.SuccessResponse(c, models.ParseResponse{
		Query:  req.Query,
		Source: string(src),
		Count:  len(specs),
		Specs:  specs,
	})
}

// Report answers a question. With ?async=true the request is queued and
// the id is returned immediately.
func (h *QueryEchoHandler) Report(c echo.Context) error {
	req := &models.ReportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.ID == "" {
		req.ID = middleware.RequestIDFrom(c)
	}

	if c.QueryParam("async") == "true" {
		if h.jobs == nil {
			return xhttp.AppErrorResponse(c, xhttp.UnavailableError("asynchronous reports are disabled"))
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		if err := h.jobs.Enqueue(c.Request().Context(), *req); err != nil {
			h.logger.Error("Report job not queued", xlogger.String("id", req.ID), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.UnavailableError("report queue unavailable").WithError(err))
		}
		return xhttp.AcceptedResponse(c, map[string]string{"id": req.ID})
	}

	resp, err := h.reports.Answer(c.Request().Context(), *req)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.mapError(err))
	}
	return xhttp.SuccessResponse(c, resp)
}

// ReportResult returns a finished asynchronous report, or 404 while it is
// still pending or has expired.
func (h *QueryEchoHandler) ReportResult(c echo.Context) error {
	if h.results == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("asynchronous reports are disabled"))
	}
	id := c.Param("id")
	resp, found, err := h.results.Result(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("Report result lookup failed", xlogger.String("id", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("report results unavailable").WithError(err))
	}
	if !found {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("report "+id+" is not ready").WithParam("id", id))
	}
	return xhttp.SuccessResponse(c, resp)
}

// Health probes every registered dependency.
func (h *QueryEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := xhttp.HealthStatus{Status: "ok", Components: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status.Status = "degraded"
			status.Components[name] = err.Error()
			continue
		}
		status.Components[name] = "ok"
	}
	if status.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}

func (h *QueryEchoHandler) mapError(err error) error {
	switch {
	case errors.Is(err, usecase.ErrUnresolvedQuery):
		return unresolvedError()
	case errors.Is(err, usecase.ErrSpanTooLarge):
		return xhttp.UnprocessableError("ERR_SPAN_TOO_LARGE", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.UnavailableError("report timed out").WithError(err)
	default:
		h.logger.Error("Report failed", xlogger.Error(err))
		return xhttp.InternalError("report failed").WithError(err)
	}
}

func unresolvedError() *xhttp.AppError {
	return xhttp.UnprocessableError("ERR_UNRESOLVED_QUERY",
		"Could not work out the market, dates or hours in this question. Try one of the examples.").
		WithParam("examples", exampleQueries)
}
