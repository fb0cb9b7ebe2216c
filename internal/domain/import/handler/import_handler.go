// Package handler exposes statement ingestion, task polling and session
// access over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	importservice "github.com/FACorreiaa/mpesa-insights/internal/domain/import/service"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/tasks"
	"github.com/FACorreiaa/mpesa-insights/pkg/httpx"
	applog "github.com/FACorreiaa/mpesa-insights/pkg/logger"
)

// multipartMemory is how much of a multipart upload is kept in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

// Ingester runs statement ingestion.
type Ingester interface {
	Ingest(ctx context.Context, up importservice.Upload) (*importservice.IngestResult, error)
	Submit(up importservice.Upload) (*importservice.TaskTicket, error)
}

// TaskReader reads the latest task event.
type TaskReader interface {
	Latest(id string) tasks.Event
}

// ImportHandler handles uploads and task polling.
type ImportHandler struct {
	importSvc Ingester
	tasks     TaskReader
	maxUpload int64
	logger    *slog.Logger
}

// NewImportHandler creates a new import handler. maxUpload bounds the
// request body in bytes.
func NewImportHandler(importSvc Ingester, tasks TaskReader, maxUpload int64, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importSvc: importSvc,
		tasks:     tasks,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Routes mounts the upload endpoints on r.
func (h *ImportHandler) Routes(r chi.Router) {
	r.Post("/statements", h.UploadStatement)
	r.Post("/statements/tasks", h.SubmitStatement)
}

// TaskRoutes mounts task polling. It is kept apart from Routes so polling
// clients are not throttled with uploads.
func (h *ImportHandler) TaskRoutes(r chi.Router) {
	r.Get("/tasks/{taskID}", h.GetTask)
}

// UploadStatement ingests a statement synchronously and answers 201 with the
// session summary and credit score.
func (h *ImportHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.writeUploadError(w, r, err)
		return
	}

	res, err := h.importSvc.Ingest(r.Context(), up)
	if err != nil {
		h.writeIngestError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

// SubmitStatement queues a statement for background ingestion and answers
// 202 with the task and session ids.
func (h *ImportHandler) SubmitStatement(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		h.writeUploadError(w, r, err)
		return
	}

	ticket, err := h.importSvc.Submit(up)
	if err != nil {
		h.writeIngestError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, ticket)
}

// GetTask returns the task's latest event. Unknown ids read as queued so
// clients polling right after submission never see a 404.
func (h *ImportHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.tasks.Latest(chi.URLParam(r, "taskID")))
}

func (h *ImportHandler) writeIngestError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tasks.ErrQueueFull), errors.Is(err, tasks.ErrPoolClosed):
		w.Header().Set("Retry-After", "5")
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeQueueFull, "ingestion queue is full, retry shortly")
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// The client went away; the ingestion carries on without it.
		applog.FromContext(r.Context(), h.logger).Info("client left before ingestion finished")
	default:
		httpx.WriteErr(w, applog.FromContext(r.Context(), h.logger), err)
	}
}

func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) (importservice.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return importservice.Upload{}, err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return importservice.Upload{}, &statement.InvalidInputError{Message: "multipart field \"file\" is required", Err: err}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return importservice.Upload{}, err
	}

	up := importservice.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Password:    r.FormValue("password"),
	}
	if raw := strings.TrimSpace(r.FormValue("session_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return importservice.Upload{}, &statement.InvalidInputError{Message: "session_id is not a valid UUID", Err: err}
		}
		up.SessionID = id
	}
	return up, nil
}

func (h *ImportHandler) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, statement.KindInvalidInput, "upload exceeds the size limit")
		return
	}

	var invalid *statement.InvalidInputError
	if !errors.As(err, &invalid) {
		err = &statement.InvalidInputError{Message: "malformed multipart form", Err: err}
	}
	httpx.WriteErr(w, applog.FromContext(r.Context(), h.logger), err)
}
