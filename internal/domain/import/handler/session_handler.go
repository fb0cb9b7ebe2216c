package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/export"
	importservice "github.com/FACorreiaa/mpesa-insights/internal/domain/import/service"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/search"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/session"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	"github.com/FACorreiaa/mpesa-insights/pkg/httpx"
	applog "github.com/FACorreiaa/mpesa-insights/pkg/logger"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
	defaultHits     = 20
)

// SessionStore reads and drops sessions.
type SessionStore interface {
	Get(id uuid.UUID) (*session.Session, error)
	Delete(id uuid.UUID) error
}

// SearchIndexes hands out per-session search indexes.
type SearchIndexes interface {
	Index(id uuid.UUID, version uint64, txs []statement.Transaction) (*search.Index, error)
}

// SessionHandler serves the statement held by a session.
type SessionHandler struct {
	sessions SessionStore
	indexes  SearchIndexes
	logger   *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions SessionStore, indexes SearchIndexes, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, indexes: indexes, logger: logger}
}

// Routes mounts the handler on r, which must be scoped to
// /sessions/{sessionID}.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Get("/", h.GetSession)
	r.Delete("/", h.DeleteSession)
	r.Get("/transactions", h.ListTransactions)
	r.Get("/search", h.Search)
	r.Get("/counterparties", h.Counterparties)
	r.Get("/export.csv", h.ExportCSV)
	r.Get("/export.xlsx", h.ExportXLSX)
}

type sessionResponse struct {
	SessionID uuid.UUID             `json:"session_id"`
	Version   uint64                `json:"version"`
	Statement importservice.Summary `json:"statement"`
}

// GetSession returns the statement summary.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		SessionID: sess.ID,
		Version:   sess.Version,
		Statement: importservice.Summarize(sess.Statement),
	})
}

// DeleteSession drops the session and everything derived from it.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Delete(id); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transactionsResponse struct {
	SessionID    uuid.UUID               `json:"session_id"`
	Version      uint64                  `json:"version"`
	Total        int                     `json:"total"`
	Limit        int                     `json:"limit"`
	Offset       int                     `json:"offset"`
	Transactions []statement.Transaction `json:"transactions"`
}

// ListTransactions pages through the canonical table.
func (h *SessionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.load(w, r)
	if !ok {
		return
	}

	limit, err := intParam(r, "limit", defaultPageSize)
	if err != nil || limit < 1 {
		httpx.WriteError(w, http.StatusBadRequest, statement.KindInvalidInput, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxPageSize)
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		httpx.WriteError(w, http.StatusBadRequest, statement.KindInvalidInput, "offset must be a non-negative integer")
		return
	}

	txs := sess.Statement.Transactions
	start := min(offset, len(txs))
	end := min(start+limit, len(txs))

	httpx.WriteJSON(w, http.StatusOK, transactionsResponse{
		SessionID:    sess.ID,
		Version:      sess.Version,
		Total:        len(txs),
		Limit:        limit,
		Offset:       offset,
		Transactions: txs[start:end],
	})
}

type searchResponse struct {
	Query string       `json:"query"`
	Mode  string       `json:"mode"`
	Hits  []search.Hit `json:"hits"`
}

// Search runs a full-text query over details and counterparties. mode=prefix
// matches word prefixes; mode=type matches a transaction type exactly.
func (h *SessionHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		httpx.WriteError(w, http.StatusBadRequest, statement.KindInvalidInput, "query parameter q is required")
		return
	}
	limit, err := intParam(r, "limit", defaultHits)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, statement.KindInvalidInput, "limit must be an integer")
		return
	}

	sess, ok := h.load(w, r)
	if !ok {
		return
	}
	idx, err := h.indexes.Index(sess.ID, sess.Version, sess.Statement.Transactions)
	if err != nil {
		httpx.WriteErr(w, h.log(r), &statement.ProcessingError{Stage: "search index", Err: err})
		return
	}

	mode := r.URL.Query().Get("mode")
	var hits []search.Hit
	switch mode {
	case "", "match":
		mode = "match"
		hits, err = idx.Search(q, limit)
	case "prefix":
		hits, err = idx.SearchPrefix(q, limit)
	case "type":
		hits, err = idx.SearchType(q, limit)
	default:
		httpx.WriteError(w, http.StatusBadRequest, statement.KindInvalidInput, fmt.Sprintf("unknown search mode %q", mode))
		return
	}
	if err != nil {
		httpx.WriteErr(w, h.log(r), &statement.ProcessingError{Stage: "search", Err: err})
		return
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	httpx.WriteJSON(w, http.StatusOK, searchResponse{Query: q, Mode: mode, Hits: hits})
}

// Counterparties lists counterparties fuzzily matching q.
func (h *SessionHandler) Counterparties(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultHits)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, statement.KindInvalidInput, "limit must be an integer")
		return
	}
	sess, ok := h.load(w, r)
	if !ok {
		return
	}

	parties := search.Counterparties(sess.Statement.Transactions, r.URL.Query().Get("q"), limit)
	if parties == nil {
		parties = []search.Counterparty{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"counterparties": parties})
}

// ExportCSV streams the canonical table as CSV.
func (h *SessionHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(sess.ID, "csv"))
	if err := export.WriteCSV(w, sess.Statement); err != nil {
		h.log(r).Error("csv export failed", slog.Any("error", err))
	}
}

// ExportXLSX streams the canonical table as an Excel workbook.
func (h *SessionHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment(sess.ID, "xlsx"))
	if err := export.WriteXLSX(w, sess.Statement); err != nil {
		h.log(r).Error("xlsx export failed", slog.Any("error", err))
	}
}

func (h *SessionHandler) load(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return nil, false
	}
	sess, err := h.sessions.Get(id)
	if err != nil {
		h.writeSessionError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (h *SessionHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, statement.KindInvalidInput, "session id is not a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *SessionHandler) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, session.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "session not found or expired")
		return
	}
	httpx.WriteErr(w, h.log(r), err)
}

func (h *SessionHandler) log(r *http.Request) *slog.Logger {
	return applog.FromContext(r.Context(), h.logger)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func attachment(id uuid.UUID, ext string) string {
	return fmt.Sprintf(`attachment; filename="mpesa-statement-%s.%s"`, id, ext)
}
