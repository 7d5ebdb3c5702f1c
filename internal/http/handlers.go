package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"spendwise/internal/middleware/identity"
	applog "spendwise/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "backend unavailable").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

type parseRequest struct {
	Message string `json:"message"`
}

// handleParseMessage never fails on a well-formed body: a missing message is
// parsed as empty text.
func (s *Server) handleParseMessage(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		requestErrorResponse(err).Write(w)
		return
	}

	parsed := s.deps.Parser.Parse(req.Message)
	applog.FromContext(r.Context()).WithComponent(applog.ComponentParser).DebugContext(r.Context(), "Message parsed",
		applog.FieldAmount, parsed.Amount.StringFixed(2),
		applog.FieldCategory, parsed.Category)

	NewJSONResponse().Body(parsed).Write(w)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserID(r.Context())
	st, err := s.deps.Stats.Dashboard(r.Context(), userID)
	if err != nil {
		s.logError(r, "Failed to compute dashboard stats", err)
		InternalServerError("failed to load stats").Write(w)
		return
	}
	NewJSONResponse().Body(st).Write(w)
}

func (s *Server) logError(r *http.Request, msg string, err error) {
	logger := applog.FromContext(r.Context()).WithComponent(applog.ComponentHTTP)
	logger.ErrorContext(r.Context(), msg,
		applog.FieldError, err,
		applog.FieldUserID, identity.UserID(r.Context()),
		"path", r.URL.Path)
}

func requestErrorResponse(err error) *JSONResponseBuilder {
	var rerr *RequestError
	if errors.As(err, &rerr) {
		return rerr.Response()
	}
	return BadRequestError(err.Error())
}

// handleMetrics writes request, security and cache counters in the
// Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	traceMetrics, rateLimitMetrics, securityMetrics := s.Metrics()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	writeMetric(w, "http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	writeMetric(w, "http_server_errors_total", "counter", "HTTP responses with a 5xx status", traceMetrics.ServerErrors)
	writeMetric(w, "http_last_response_microseconds", "gauge", "Duration of the most recent request", traceMetrics.AverageResponseTime)
	writeMetric(w, "rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	writeMetric(w, "active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	writeMetric(w, "suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)

	if s.deps.Cache != nil {
		cm := s.deps.Cache.Metrics()
		writeMetric(w, "stats_cache_hits_total", "counter", "Dashboard stats served from cache", cm.Hits)
		writeMetric(w, "stats_cache_misses_total", "counter", "Dashboard stats computed from the ledger", cm.Misses)
		writeMetric(w, "stats_cache_entries", "gauge", "Users with cached dashboard stats", int64(cm.Size))
	}

	writeMetric(w, "uptime_seconds", "gauge", "Server uptime in seconds", int64(time.Since(s.started).Seconds()))
}

func writeMetric(w io.Writer, name, kind, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, kind, name, value)
}
