// Package service provides the import orchestration logic: it runs an upload
// through decryption, extraction, normalization, classification and feature
// derivation, then commits the statement to a session.
package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/categorization"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/creditscore"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/import/normalizer"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/import/parser"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/import/sniffer"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/session"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/tasks"
	applog "github.com/FACorreiaa/mpesa-insights/pkg/logger"
)

const tracerName = "github.com/FACorreiaa/mpesa-insights/import"

// Progress checkpoints reported while a statement is ingested.
const (
	ProgressDecrypt   = 5
	ProgressExtract   = 20
	ProgressNormalize = 40
	ProgressClassify  = 60
	ProgressFeatures  = 75
	ProgressCommit    = 90
)

// ReplacedWarning is returned when an ingestion overwrote an existing
// session's statement.
const ReplacedWarning = "session already held a statement; it was replaced by this upload (last writer wins)"

// Decryptor opens a PDF statement.
type Decryptor interface {
	Decrypt(ctx context.Context, data []byte, password string) (*parser.Document, error)
}

// TableExtractor reads the ledger table out of a decoded document.
type TableExtractor interface {
	Extract(ctx context.Context, doc *parser.Document) (*statement.RawTable, error)
}

// MetadataExtractor reads the statement owner's identity.
type MetadataExtractor interface {
	Extract(doc *parser.Document) parser.Metadata
}

// Normalizer cleans a raw ledger.
type Normalizer interface {
	Normalize(ctx context.Context, raw *statement.RawTable) (*normalizer.Result, error)
}

// Classifier labels transactions and drops charge rows.
type Classifier interface {
	ClassifyAll(txs []statement.Transaction) categorization.Result
}

// Deriver fills derived per-transaction fields.
type Deriver interface {
	Derive(txs []statement.Transaction) []statement.Transaction
}

// SessionStore receives committed statements.
type SessionStore interface {
	Replace(id uuid.UUID, stmt *statement.Statement) *session.Session
}

// Submitter runs tasks on the bounded worker pool, either in the background
// or waiting for the outcome.
type Submitter interface {
	Submit(fn tasks.Func) (string, error)
	Do(ctx context.Context, fn tasks.Func) (any, error)
}

// Recorder receives ingestion metrics. It may be nil.
type Recorder interface {
	ObserveIngest(source, errorKind string, d time.Duration)
	ObserveClassified(byType map[string]int)
}

// Upload is one statement submitted for ingestion.
type Upload struct {
	// SessionID targets an existing session; uuid.Nil allocates a new one.
	SessionID   uuid.UUID
	Filename    string
	ContentType string
	Data        []byte
	Password    string
}

// IngestResult is returned by a completed ingestion, synchronously or as a
// task result.
type IngestResult struct {
	SessionID   uuid.UUID          `json:"session_id"`
	Version     uint64             `json:"version"`
	Statement   Summary            `json:"statement"`
	CreditScore creditscore.Result `json:"credit_score"`
	Warning     string             `json:"warning,omitempty"`
}

// TaskTicket identifies a queued ingestion.
type TaskTicket struct {
	TaskID    string    `json:"task_id"`
	SessionID uuid.UUID `json:"session_id"`
}

// Dependencies groups the pipeline stages.
type Dependencies struct {
	Decryptor  Decryptor
	Tables     TableExtractor
	Metadata   MetadataExtractor
	Ledger     *parser.LedgerParser
	Normalizer Normalizer
	Classifier Classifier
	Deriver    Deriver
	Store      SessionStore
}

// ImportService orchestrates statement ingestion.
type ImportService struct {
	deps     Dependencies
	tasks    Submitter
	recorder Recorder
	tracer   trace.Tracer
	now      func() time.Time
	logger   *slog.Logger
}

// NewImportService creates a new import service.
func NewImportService(deps Dependencies, logger *slog.Logger) *ImportService {
	if deps.Ledger == nil {
		deps.Ledger = parser.NewLedgerParser()
	}
	return &ImportService{
		deps:   deps,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		logger: logger,
	}
}

// WithTasks enables asynchronous ingestion through s.
func (s *ImportService) WithTasks(t Submitter) *ImportService {
	s.tasks = t
	return s
}

// WithRecorder reports ingestion metrics to r.
func (s *ImportService) WithRecorder(r Recorder) *ImportService {
	s.recorder = r
	return s
}

// Ingest runs the whole pipeline on the worker pool and waits for it. Once
// admitted the ingestion is never abandoned: if ctx ends first Ingest returns
// ctx.Err() and the statement is still committed.
func (s *ImportService) Ingest(ctx context.Context, up Upload) (*IngestResult, error) {
	if s.tasks == nil {
		return s.ingest(context.WithoutCancel(ctx), up, func(int, string) {})
	}

	log := applog.FromContext(ctx, s.logger)
	parent := trace.SpanFromContext(ctx)
	res, err := s.tasks.Do(ctx, func(taskCtx context.Context, report tasks.ReportFunc) (any, error) {
		taskCtx = trace.ContextWithSpan(applog.WithContext(taskCtx, log), parent)
		return s.ingest(taskCtx, up, report)
	})
	if err != nil {
		return nil, err
	}
	out, _ := res.(*IngestResult)
	return out, nil
}

// Submit queues the upload on the task pool. The session id is fixed before
// the task runs so the client can poll both.
func (s *ImportService) Submit(up Upload) (*TaskTicket, error) {
	if s.tasks == nil {
		return nil, errors.New("asynchronous ingestion is not configured")
	}
	if up.SessionID == uuid.Nil {
		up.SessionID = uuid.New()
	}

	id, err := s.tasks.Submit(func(ctx context.Context, report tasks.ReportFunc) (any, error) {
		return s.ingest(ctx, up, report)
	})
	if err != nil {
		return nil, err
	}
	return &TaskTicket{TaskID: id, SessionID: up.SessionID}, nil
}

func (s *ImportService) ingest(ctx context.Context, up Upload, report tasks.ReportFunc) (res *IngestResult, err error) {
	start := s.now()
	source := "unknown"
	log := applog.FromContext(ctx, s.logger)

	ctx, span := s.tracer.Start(ctx, "ingest", trace.WithAttributes(
		attribute.String("upload.filename", up.Filename),
		attribute.Int("upload.size", len(up.Data)),
	))
	defer func() {
		kind := ""
		if err != nil {
			kind = statement.KindOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, kind)
			log.Warn("statement ingestion failed",
				slog.String("source", source),
				slog.String("error_kind", kind),
				slog.Any("error", err),
			)
		}
		if s.recorder != nil {
			s.recorder.ObserveIngest(source, kind, s.now().Sub(start))
		}
		span.End()
	}()

	cfg, err := sniffer.Detect(up.ContentType, up.Filename, up.Data)
	if err != nil {
		return nil, err
	}
	source = string(cfg.Kind)
	span.SetAttributes(attribute.String("upload.kind", source))

	stmt := &statement.Statement{
		Source: statement.Source{
			Filename: up.Filename,
			Kind:     cfg.Kind,
			Size:     int64(len(up.Data)),
		},
		Fingerprint: Fingerprint(up.Data),
	}

	var raw *statement.RawTable
	switch cfg.Kind {
	case statement.SourcePDF:
		raw, err = s.readPDF(ctx, up, stmt, report)
	default:
		raw, err = s.readCSV(ctx, up, cfg, stmt, report)
	}
	if err != nil {
		return nil, err
	}

	report(ProgressNormalize, "normalizing transactions")
	normalized, err := stage(ctx, s.tracer, "normalize", func(ctx context.Context) (*normalizer.Result, error) {
		return s.deps.Normalizer.Normalize(ctx, raw)
	})
	if err != nil {
		return nil, err
	}
	if normalized.UntimedRows > 0 {
		stmt.Warnings = append(stmt.Warnings,
			fmt.Sprintf("%d rows have an unparsable completion time and are left out of time-based analytics", normalized.UntimedRows))
	}
	if len(normalized.DroppedColumns) > 0 {
		stmt.Warnings = append(stmt.Warnings,
			"dropped sparse columns: "+strings.Join(normalized.DroppedColumns, ", "))
	}

	report(ProgressClassify, "classifying transactions")
	classified, _ := stage(ctx, s.tracer, "classify", func(context.Context) (categorization.Result, error) {
		return s.deps.Classifier.ClassifyAll(normalized.Transactions), nil
	})
	if s.recorder != nil {
		s.recorder.ObserveClassified(classified.ByType)
	}

	report(ProgressFeatures, "deriving features")
	stmt.Transactions, _ = stage(ctx, s.tracer, "derive", func(context.Context) ([]statement.Transaction, error) {
		return s.deps.Deriver.Derive(classified.Transactions), nil
	})

	if err := ctx.Err(); err != nil {
		return nil, &statement.ProcessingError{Stage: "commit", Err: err}
	}

	report(ProgressCommit, "saving session")
	stmt.CreatedAt = s.now()
	id := up.SessionID
	if id == uuid.Nil {
		id = uuid.New()
	}
	sess := s.deps.Store.Replace(id, stmt)

	res = &IngestResult{
		SessionID:   sess.ID,
		Version:     sess.Version,
		Statement:   Summarize(stmt),
		CreditScore: creditscore.Compute(stmt.Transactions),
	}
	if sess.Version > 1 {
		res.Warning = ReplacedWarning
	}

	log.Info("statement ingested",
		slog.String("session_id", sess.ID.String()),
		slog.Uint64("version", sess.Version),
		slog.String("source", source),
		slog.Int("rows_in", normalized.RowsIn),
		slog.Int("transactions", stmt.Len()),
		slog.Int("charges_dropped", classified.ChargesDropped),
		slog.Int("credit_score", res.CreditScore.Score),
		slog.Duration("duration", s.now().Sub(start)),
	)
	return res, nil
}

// readPDF decrypts the document, then extracts the ledger and the owner's
// identity concurrently.
func (s *ImportService) readPDF(ctx context.Context, up Upload, stmt *statement.Statement, report tasks.ReportFunc) (*statement.RawTable, error) {
	report(ProgressDecrypt, "decrypting document")
	doc, err := stage(ctx, s.tracer, "decrypt", func(ctx context.Context) (*parser.Document, error) {
		return s.deps.Decryptor.Decrypt(ctx, up.Data, up.Password)
	})
	if err != nil {
		return nil, err
	}
	stmt.Pages = doc.NumPages()

	report(ProgressExtract, "extracting tables")
	var (
		raw  *statement.RawTable
		meta parser.Metadata
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		raw, err = stage(gctx, s.tracer, "extract.tables", func(ctx context.Context) (*statement.RawTable, error) {
			return s.deps.Tables.Extract(ctx, doc)
		})
		return err
	})
	g.Go(func() error {
		meta, _ = stage(gctx, s.tracer, "extract.metadata", func(context.Context) (parser.Metadata, error) {
			return s.deps.Metadata.Extract(doc), nil
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stmt.CustomerName = meta.CustomerName
	stmt.MobileNumber = meta.MobileNumber
	if !meta.Found() {
		stmt.Warnings = append(stmt.Warnings, "customer name or mobile number not found in document")
	}
	return raw, nil
}

// readCSV reads a CSV export of the ledger. There is nothing to decrypt;
// identity fields are taken from a preamble when the export carries one.
func (s *ImportService) readCSV(ctx context.Context, up Upload, cfg *sniffer.FileConfig, stmt *statement.Statement, report tasks.ReportFunc) (*statement.RawTable, error) {
	report(ProgressExtract, "reading ledger")
	parsed, err := stage(ctx, s.tracer, "extract.csv", func(context.Context) (*parser.ParseResult, error) {
		return s.deps.Ledger.
			WithDelimiter(cfg.Delimiter).
			WithSkipLines(cfg.SkipLines).
			Parse(bytes.NewReader(up.Data))
	})
	if err != nil {
		return nil, err
	}
	if len(parsed.Errors) > 0 {
		stmt.Warnings = append(stmt.Warnings, fmt.Sprintf("%d malformed CSV rows were padded or truncated", len(parsed.Errors)))
	}

	meta := parser.ParseMetadata(string(up.Data))
	stmt.CustomerName = strings.TrimRight(meta.CustomerName, ",;\t \r")
	stmt.MobileNumber = meta.MobileNumber
	return parsed.Table, nil
}

// stage runs fn in a child span. Errors without a client-facing kind are
// wrapped as processing errors of that stage.
func stage[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "ingest."+name)
	defer span.End()

	out, err := fn(ctx)
	if err != nil {
		err = classify(name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, statement.KindOf(err))
	}
	return out, err
}

func classify(name string, err error) error {
	if statement.KindOf(err) != statement.KindProcessing {
		return err
	}
	var processing *statement.ProcessingError
	if errors.As(err, &processing) {
		return err
	}
	return &statement.ProcessingError{Stage: name, Err: err}
}

// Fingerprint returns the hex blake2b-256 digest of data.
func Fingerprint(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
