package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	importservice "github.com/FACorreiaa/mpesa-insights/internal/domain/import/service"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/search"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/session"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/tasks"
	"github.com/FACorreiaa/mpesa-insights/pkg/httpx"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeIngester struct {
	got       importservice.Upload
	err       error
	submitErr error
}

func (f *fakeIngester) Ingest(_ context.Context, up importservice.Upload) (*importservice.IngestResult, error) {
	f.got = up
	if f.err != nil {
		return nil, f.err
	}
	return &importservice.IngestResult{SessionID: uuid.New(), Version: 1}, nil
}

func (f *fakeIngester) Submit(up importservice.Upload) (*importservice.TaskTicket, error) {
	f.got = up
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &importservice.TaskTicket{TaskID: "task-1", SessionID: uuid.New()}, nil
}

type part struct {
	field, filename, contentType, body string
}

func multipartRequest(t *testing.T, target string, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, mw.WriteField(p.field, p.body))
			continue
		}
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		hdr.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func importRouter(ing *fakeIngester, maxUpload int64) http.Handler {
	r := chi.NewRouter()
	h := NewImportHandler(ing, tasks.NewTracker(time.Hour, discard()), maxUpload, discard())
	h.Routes(r)
	h.TaskRoutes(r)
	return r
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestImportHandler_UploadStatement(t *testing.T) {
	pdf := part{field: "file", filename: "statement.pdf", contentType: "application/pdf", body: "%PDF-1.4"}

	t.Run("created", func(t *testing.T) {
		ing := &fakeIngester{}
		sid := uuid.New()
		req := multipartRequest(t, "/statements", pdf,
			part{field: "password", body: "123456"},
			part{field: "session_id", body: sid.String()},
		)
		rec := httptest.NewRecorder()
		importRouter(ing, 1<<20).ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "statement.pdf", ing.got.Filename)
		assert.Equal(t, "application/pdf", ing.got.ContentType)
		assert.Equal(t, "123456", ing.got.Password)
		assert.Equal(t, sid, ing.got.SessionID)
		assert.Equal(t, []byte("%PDF-1.4"), ing.got.Data)
	})

	t.Run("pipeline errors map to statuses", func(t *testing.T) {
		tests := []struct {
			name   string
			err    error
			status int
		}{
			{"wrong password", &statement.AuthenticationError{}, http.StatusUnauthorized},
			{"no tables", &statement.ExtractionError{Err: statement.ErrNoTablesFound}, http.StatusUnprocessableEntity},
			{"schema", &statement.SchemaError{Column: statement.ColDetails, Message: "dropped"}, http.StatusUnprocessableEntity},
			{"unsupported", &statement.InvalidInputError{Message: "image/png", Err: statement.ErrUnsupportedMedia}, http.StatusUnsupportedMediaType},
			{"processing", &statement.ProcessingError{Stage: "derive", Err: io.ErrUnexpectedEOF}, http.StatusInternalServerError},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := httptest.NewRecorder()
				importRouter(&fakeIngester{err: tt.err}, 1<<20).ServeHTTP(rec, multipartRequest(t, "/statements", pdf))
				assert.Equal(t, tt.status, rec.Code)
			})
		}
	})

	t.Run("missing file", func(t *testing.T) {
		rec := httptest.NewRecorder()
		importRouter(&fakeIngester{}, 1<<20).ServeHTTP(rec, multipartRequest(t, "/statements", part{field: "password", body: "x"}))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, statement.KindInvalidInput, decodeError(t, rec).Error)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/statements", strings.NewReader(`{"file":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		importRouter(&fakeIngester{}, 1<<20).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad session id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		importRouter(&fakeIngester{}, 1<<20).ServeHTTP(rec, multipartRequest(t, "/statements", pdf, part{field: "session_id", body: "nope"}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		big := pdf
		big.body = strings.Repeat("x", 4096)
		rec := httptest.NewRecorder()
		importRouter(&fakeIngester{}, 512).ServeHTTP(rec, multipartRequest(t, "/statements", big))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestImportHandler_UploadStatementQueueFull(t *testing.T) {
	pdf := part{field: "file", filename: "statement.pdf", contentType: "application/pdf", body: "%PDF-1.4"}
	rec := httptest.NewRecorder()
	importRouter(&fakeIngester{err: tasks.ErrQueueFull}, 1<<20).ServeHTTP(rec, multipartRequest(t, "/statements", pdf))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Equal(t, httpx.CodeQueueFull, decodeError(t, rec).Error)
}

func TestImportHandler_SubmitStatement(t *testing.T) {
	pdf := part{field: "file", filename: "statement.pdf", contentType: "application/pdf", body: "%PDF-1.4"}

	t.Run("accepted", func(t *testing.T) {
		rec := httptest.NewRecorder()
		importRouter(&fakeIngester{}, 1<<20).ServeHTTP(rec, multipartRequest(t, "/statements/tasks", pdf))

		require.Equal(t, http.StatusAccepted, rec.Code)
		var ticket importservice.TaskTicket
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticket))
		assert.Equal(t, "task-1", ticket.TaskID)
		assert.NotEqual(t, uuid.Nil, ticket.SessionID)
	})

	t.Run("queue full", func(t *testing.T) {
		rec := httptest.NewRecorder()
		importRouter(&fakeIngester{submitErr: tasks.ErrQueueFull}, 1<<20).ServeHTTP(rec, multipartRequest(t, "/statements/tasks", pdf))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, httpx.CodeQueueFull, decodeError(t, rec).Error)
	})
}

func TestImportHandler_GetTask(t *testing.T) {
	rec := httptest.NewRecorder()
	importRouter(&fakeIngester{}, 1<<20).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/never-submitted", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var ev tasks.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, tasks.StateQueued, ev.State)
	assert.Equal(t, 0, ev.Progress)
	assert.Equal(t, tasks.MessageInitializing, ev.Message)
}

func sessionFixture(t *testing.T) (*session.Store, uuid.UUID, http.Handler) {
	t.Helper()
	ts := time.Date(2024, 3, 15, 18, 45, 0, 0, time.UTC)
	tx := func(receipt, details, name, txType string, withdrawn int64) statement.Transaction {
		w := decimal.NewFromInt(withdrawn)
		return statement.Transaction{
			ReceiptNo:        receipt,
			CompletionTime:   &ts,
			Details:          details,
			Withdrawn:        w,
			Amount:           decimal.NewNullDecimal(w),
			TransactionType:  txType,
			CounterpartyName: name,
			SaveOrSpend:      statement.LabelSpend,
		}
	}

	store := session.NewStore(time.Hour, discard())
	id := uuid.New()
	store.Replace(id, &statement.Statement{
		CustomerName: "JANE DOE",
		Transactions: []statement.Transaction{
			tx("SBC1XYZ001", "Merchant Payment to 123456 - NAIVAS WESTLANDS", "NAIVAS WESTLANDS", "Till No", 1200),
			tx("SBC1XYZ002", "Pay Bill Online to 888880 - KPLC PREPAID Acc. 1234", "KPLC PREPAID Acc", "Pay Bill", 500),
			tx("SBC1XYZ003", "Merchant Payment to 654321 - NAIVAS KAREN", "NAIVAS KAREN", "Till No", 800),
		},
	})

	r := chi.NewRouter()
	h := NewSessionHandler(store, search.NewRegistry(discard()), discard())
	r.Route("/sessions/{sessionID}", h.Routes)
	return store, id, r
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSessionHandler(t *testing.T) {
	_, id, h := sessionFixture(t)
	base := "/sessions/" + id.String()

	t.Run("summary", func(t *testing.T) {
		rec := get(h, base)
		require.Equal(t, http.StatusOK, rec.Code)

		var body sessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, id, body.SessionID)
		assert.Equal(t, 3, body.Statement.Transactions)
		assert.Equal(t, 2, body.Statement.ByType["Till No"])
	})

	t.Run("unknown and malformed ids", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(h, "/sessions/"+uuid.NewString()).Code)
		assert.Equal(t, http.StatusBadRequest, get(h, "/sessions/not-a-uuid").Code)
	})

	t.Run("transactions page", func(t *testing.T) {
		rec := get(h, base+"/transactions?limit=1&offset=1")
		require.Equal(t, http.StatusOK, rec.Code)

		var body transactionsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 3, body.Total)
		require.Len(t, body.Transactions, 1)
		assert.Equal(t, "SBC1XYZ002", body.Transactions[0].ReceiptNo)

		rec = get(h, base+"/transactions?offset=10")
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Empty(t, body.Transactions)

		assert.Equal(t, http.StatusBadRequest, get(h, base+"/transactions?limit=abc").Code)
	})

	t.Run("search", func(t *testing.T) {
		rec := get(h, base+"/search?q=naivas")
		require.Equal(t, http.StatusOK, rec.Code)

		var body searchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Hits, 2)
		assert.Equal(t, "match", body.Mode)

		rec = get(h, base+"/search?q=Pay%20Bill&mode=type")
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Hits, 1)
		assert.Equal(t, "SBC1XYZ002", body.Hits[0].ReceiptNo)

		assert.Equal(t, http.StatusBadRequest, get(h, base+"/search").Code)
		assert.Equal(t, http.StatusBadRequest, get(h, base+"/search?q=x&mode=regex").Code)
	})

	t.Run("counterparties", func(t *testing.T) {
		rec := get(h, base+"/counterparties?q=naivas")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Counterparties []search.Counterparty `json:"counterparties"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Counterparties, 2)
		for _, c := range body.Counterparties {
			assert.Contains(t, c.Name, "NAIVAS")
		}
	})

	t.Run("exports", func(t *testing.T) {
		rec := get(h, base+"/export.csv")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, rec.Header().Get("Content-Disposition"), id.String()+".csv")
		assert.Equal(t, 4, strings.Count(strings.TrimSpace(rec.Body.String()), "\n")+1)

		rec = get(h, base+"/export.xlsx")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
	})
}

func TestSessionHandler_Delete(t *testing.T) {
	store, id, h := sessionFixture(t)
	target := "/sessions/" + id.String()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, target, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, store.Len())

	assert.Equal(t, http.StatusNotFound, get(h, target).Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, target, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
