package handler

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"

	"techblog/internal/domain"
	"techblog/internal/middleware"
	"techblog/internal/service"
	"techblog/pkg/errors"
	"techblog/pkg/logger"
)

// defaultHistoryDays is the window returned when from is omitted
const defaultHistoryDays = 30

const maxBodyBytes = 1 << 12

var validate = validator.New()

// VisitorHandler serves the visit beacon, the visitor stats read API and
// on-demand reconciliation
type VisitorHandler struct {
	visitors service.VisitorService
	stats    service.StatsService
	sync     service.SyncService
	logger   *logger.Logger
}

// NewVisitorHandler creates a new visitor handler
func NewVisitorHandler(visitors service.VisitorService, stats service.StatsService, sync service.SyncService, logger *logger.Logger) *VisitorHandler {
	return &VisitorHandler{
		visitors: visitors,
		stats:    stats,
		sync:     sync,
		logger:   logger,
	}
}

// VisitRequest is the body of POST /api/visitors/visit. Path is the page
// being viewed; when omitted the Referer header names it.
type VisitRequest struct {
	Path string `json:"path" validate:"omitempty,startswith=/,max=2048"`
}

// VisitResponse reports whether the page view was counted. Excluded views
// (bots, private networks, excluded paths) are not an error.
type VisitResponse struct {
	Success bool   `json:"success"`
	Counted bool   `json:"counted"`
	Path    string `json:"path"`
}

// SyncRequest is the body of POST /api/visitors/sync. An empty body
// reconciles yesterday; days reconciles a window ending at date (or yesterday).
type SyncRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Days int    `json:"days" validate:"omitempty,min=1,max=366"`
}

// RecordVisit handles POST /api/visitors/visit, the beacon site pages send on
// load. The reported page path is classified, not the beacon's own path.
func (h *VisitorHandler) RecordVisit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.sendError(w, r, errors.NewValidationError("Unreadable request body", nil))
		return
	}

	// navigator.sendBeacon posts text/plain, so the body is parsed regardless
	// of Content-Type
	var req VisitRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.sendError(w, r, errors.NewValidationError("Invalid JSON body", nil))
			return
		}
	}

	if err := validate.Struct(req); err != nil {
		h.sendError(w, r, errors.NewValidationError("Invalid visit request", validationDetails(err)))
		return
	}

	path := pagePath(req.Path, r.Referer())
	if path == "" {
		h.sendError(w, r, errors.NewValidationError("A page path or Referer header is required", nil))
		return
	}

	visit := domain.VisitRequest{
		IPAddress: middleware.ClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For")),
		UserAgent: r.UserAgent(),
		Path:      path,
	}
	// A client hanging up must not abort the write half way
	counted := h.visitors.RecordVisit(context.WithoutCancel(r.Context()), visit)

	h.respondJSON(w, http.StatusOK, VisitResponse{
		Success: true,
		Counted: counted,
		Path:    path,
	})
}

// GetStats handles GET /api/visitors/stats
func (h *VisitorHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.stats.Summary(r.Context())
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, summary)
}

// GetDetail handles GET /api/visitors/detail?date=YYYY-MM-DD.
// Without a date it reports today.
func (h *VisitorHandler) GetDetail(w http.ResponseWriter, r *http.Request) {
	date, err := h.dateParam(r, "date", h.stats.Today())
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	stats, err := h.stats.HistoricalCount(r.Context(), date)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// GetHistory handles GET /api/visitors/history?from=&to=. Both bounds are
// inclusive; to defaults to today and from to the 30 days ending at to.
func (h *VisitorHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	to, err := h.dateParam(r, "to", h.stats.Today())
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	from, err := h.dateParam(r, "from", to.AddDate(0, 0, -(defaultHistoryDays-1)))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	history, err := h.stats.History(r.Context(), from, to)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"from":    domain.FormatDate(from),
		"to":      domain.FormatDate(to),
		"history": history,
	})
}

// Sync handles POST /api/visitors/sync. The response is 200 when every date
// reconciled and 207 when some failed; the report lists each date.
func (h *VisitorHandler) Sync(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.sendError(w, r, errors.NewValidationError("Unreadable request body", nil))
		return
	}

	var req SyncRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.sendError(w, r, errors.NewValidationError("Invalid JSON body", nil))
			return
		}
	}

	if err := validate.Struct(req); err != nil {
		h.sendError(w, r, errors.NewValidationError("Invalid sync request", validationDetails(err)))
		return
	}

	report, err := h.runSync(r, req)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	fields := map[string]interface{}{
		"requested": report.Requested,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	}
	if claims, err := middleware.GetAdminClaims(r.Context()); err == nil {
		fields["subject"] = claims.Subject
	}
	h.logger.WithFields(fields).Info("On-demand visitor stats sync finished")

	status := http.StatusOK
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	h.respondJSON(w, status, report)
}

func (h *VisitorHandler) runSync(r *http.Request, req SyncRequest) (*domain.SyncReport, error) {
	ctx := r.Context()

	var end time.Time
	if req.Date != "" {
		date, err := domain.ParseDate(req.Date)
		if err != nil {
			return nil, err
		}
		end = date
	} else {
		end = h.stats.Today().AddDate(0, 0, -1)
	}

	if req.Days > 0 {
		return h.sync.SyncRange(ctx, end, req.Days)
	}

	result, err := h.sync.SyncDate(ctx, end)
	if err != nil {
		return nil, err
	}
	report := &domain.SyncReport{Requested: 1, Results: []domain.SyncResult{*result}}
	if result.Success {
		report.Succeeded = 1
	} else {
		report.Failed = 1
	}
	return report, nil
}

// pagePath picks the viewed page from the beacon body, falling back to the
// path of an absolute Referer. Query strings and fragments are dropped.
func pagePath(reported, referer string) string {
	if reported != "" {
		u, err := url.Parse(reported)
		if err != nil || u.Path == "" {
			return "/"
		}
		return u.Path
	}

	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// dateParam parses an optional YYYY-MM-DD query parameter
func (h *VisitorHandler) dateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback, nil
	}
	return domain.ParseDate(value)
}

// sendError maps invalid input to 400 and everything else to 500
func (h *VisitorHandler) sendError(w http.ResponseWriter, r *http.Request, err error) {
	if stderrors.Is(err, domain.ErrInvalidDate) {
		err = errors.NewValidationError(err.Error(), nil)
	}

	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) || appErr.StatusCode >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("Visitor stats request failed")
	}

	errors.Write(w, err, middleware.GetRequestID(r.Context()))
}

func (h *VisitorHandler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

// validationDetails lists the failing fields of a validator error
func validationDetails(err error) map[string]interface{} {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return nil
	}

	details := make(map[string]interface{}, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

// Guards are per-route middleware chains supplied by the caller
type Guards struct {
	Beacon []func(http.Handler) http.Handler // visit beacon, e.g. a rate limiter
	Admin  []func(http.Handler) http.Handler // on-demand sync
}

// RegisterRoutes registers visitor handler routes with the router
func (h *VisitorHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Route("/visitors", func(r chi.Router) {
		// Public endpoints
		r.With(guards.Beacon...).Post("/visit", h.RecordVisit)
		r.Get("/stats", h.GetStats)
		r.Get("/detail", h.GetDetail)
		r.Get("/history", h.GetHistory)

		// Operator endpoints
		r.With(guards.Admin...).Post("/sync", h.Sync)
	})
}
