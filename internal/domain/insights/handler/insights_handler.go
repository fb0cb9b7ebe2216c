// Package handler exposes session analytics over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/insights"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	"github.com/FACorreiaa/mpesa-insights/pkg/httpx"
	applog "github.com/FACorreiaa/mpesa-insights/pkg/logger"
)

// Analytics runs named analytics operations.
type Analytics interface {
	Run(ctx context.Context, id uuid.UUID, name, param string) (insights.Result, error)
	Operations() []insights.Operation
}

// InsightsHandler serves analytics for a session.
type InsightsHandler struct {
	svc    Analytics
	logger *slog.Logger
}

// NewInsightsHandler constructs a new handler.
func NewInsightsHandler(svc Analytics, logger *slog.Logger) *InsightsHandler {
	return &InsightsHandler{svc: svc, logger: logger}
}

// Routes mounts the handler on r, which must be scoped to
// /sessions/{sessionID}.
func (h *InsightsHandler) Routes(r chi.Router) {
	r.Get("/insights", h.ListOperations)
	r.Get("/insights/{name}", h.GetInsight)
}

// ListOperations lists the available analytics.
func (h *InsightsHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"operations": h.svc.Operations()})
}

// GetInsight runs one operation. Data problems are reported in the result
// body with status 200; only unknown operations and bad parameters fail the
// request.
func (h *InsightsHandler) GetInsight(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, statement.KindInvalidInput, "session id is not a valid UUID")
		return
	}

	name := chi.URLParam(r, "name")
	res, err := h.svc.Run(r.Context(), id, name, r.URL.Query().Get("type"))
	if errors.Is(err, insights.ErrUnknownOperation) {
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, err.Error())
		return
	}
	if err != nil {
		httpx.WriteErr(w, applog.FromContext(r.Context(), h.logger), err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
