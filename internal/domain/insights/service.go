// Package insights computes analytics over the statement held by a session.
// Results are cached per statement version, so a replaced statement is never
// answered from a stale entry.
package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/session"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	applog "github.com/FACorreiaa/mpesa-insights/pkg/logger"
)

var tracer = otel.Tracer("github.com/FACorreiaa/mpesa-insights/internal/domain/insights")

// Status is the outcome of an analytics operation.
type Status string

const (
	StatusOK     Status = "ok"
	StatusNoData Status = "no_data"
	StatusError  Status = "error"
)

// Result is what every operation returns. Data is set only when Status is ok.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrUnknownOperation is returned by Run for names not in the registry.
var ErrUnknownOperation = errors.New("unknown analytics operation")

// noDataError marks an operation that found nothing to report.
type noDataError struct{ msg string }

func (e *noDataError) Error() string { return e.msg }

func noData(format string, args ...any) error {
	return &noDataError{msg: fmt.Sprintf(format, args...)}
}

// SessionReader loads sessions. Peek must not refresh the session's expiry.
type SessionReader interface {
	Get(id uuid.UUID) (*session.Session, error)
	Peek(id uuid.UUID) (*session.Session, bool)
}

// CacheRecorder counts cache lookups.
type CacheRecorder interface {
	ObserveAnalyticsCache(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAnalyticsCache(bool) {}

// Config sizes the result cache. MaxCost is the number of results kept.
type Config struct {
	MaxCost int64
}

// Service runs analytics operations against live sessions.
type Service struct {
	sessions SessionReader
	ops      map[string]Operation
	cache    *ristretto.Cache
	recorder CacheRecorder
	logger   *slog.Logger

	// keys tracks the cache keys of each session's current statement
	// version. Cache writes and deletes for tracked keys happen under keysMu.
	keysMu sync.Mutex
	keys   map[uuid.UUID]*versionKeys
}

// versionKeys are the cache keys written for one statement version.
type versionKeys struct {
	version uint64
	keys    map[string]struct{}
}

// NewService creates a new analytics service.
func NewService(sessions SessionReader, cfg Config, logger *slog.Logger) (*Service, error) {
	maxCost := cfg.MaxCost
	if maxCost <= 0 {
		maxCost = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxCost * 10, // number of keys to track frequency of
		MaxCost:            maxCost,
		BufferItems:        64, // number of keys per Get buffer
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analytics cache: %w", err)
	}

	ops := make(map[string]Operation)
	for _, op := range registry() {
		ops[op.Name] = op
	}

	return &Service{
		sessions: sessions,
		ops:      ops,
		cache:    cache,
		recorder: nopRecorder{},
		logger:   logger,
		keys:     make(map[uuid.UUID]*versionKeys),
	}, nil
}

// WithRecorder reports cache hits and misses to r.
func (s *Service) WithRecorder(r CacheRecorder) *Service {
	s.recorder = r
	return s
}

// Operations lists the registered operations ordered by group and name.
func (s *Service) Operations() []Operation {
	out := make([]Operation, 0, len(s.ops))
	for _, op := range s.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Run executes the named operation on the session's statement. A missing or
// empty session yields a no_data result. The returned error is reserved for
// unknown operations and invalid parameters.
func (s *Service) Run(ctx context.Context, id uuid.UUID, name, param string) (Result, error) {
	op, ok := s.ops[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	param, err := op.normalize(param)
	if err != nil {
		return Result{}, err
	}

	ctx, span := tracer.Start(ctx, "insights."+name)
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", id.String()),
		attribute.String("insights.param", param),
	)

	sess, err := s.sessions.Get(id)
	if errors.Is(err, session.ErrNotFound) {
		return Result{Status: StatusNoData, Message: "session not found or expired"}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	if sess.Statement.IsEmpty() {
		return Result{Status: StatusNoData, Message: "no transaction data available"}, nil
	}

	key := cacheKey(id, sess.Version, name, param)
	if v, ok := s.cache.Get(key); ok {
		if res, ok := v.(Result); ok {
			s.recorder.ObserveAnalyticsCache(true)
			span.SetAttributes(attribute.Bool("insights.cache_hit", true))
			return res, nil
		}
	}
	s.recorder.ObserveAnalyticsCache(false)

	res := s.compute(ctx, op, sess.Statement.Transactions, param)
	span.SetAttributes(attribute.String("insights.status", string(res.Status)))
	if res.Status != StatusError {
		s.remember(id, sess.Version, key, res)
	}
	return res, nil
}

func (s *Service) compute(ctx context.Context, op Operation, txs []statement.Transaction, param string) (res Result) {
	logger := applog.FromContext(ctx, s.logger)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("analytics operation panicked",
				slog.String("op", op.Name),
				slog.Any("panic", r))
			res = Result{Status: StatusError, Message: fmt.Sprintf("%s could not be computed", op.Name)}
		}
	}()

	data, err := op.run(txs, param)
	var empty *noDataError
	switch {
	case errors.As(err, &empty):
		return Result{Status: StatusNoData, Message: empty.msg}
	case err != nil:
		logger.Warn("analytics operation failed",
			slog.String("op", op.Name),
			slog.Any("error", err))
		return Result{Status: StatusError, Message: err.Error()}
	}
	return Result{Status: StatusOK, Data: data}
}

// remember caches res under key. The result is kept only while the session
// still holds the statement version it was computed from; the first result of
// a newer version drops every key of the previous one.
func (s *Service) remember(id uuid.UUID, version uint64, key string, res Result) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()

	// Eviction removes the session before notifying listeners, so a session
	// that is gone here will not be followed by another Evict.
	if cur, ok := s.sessions.Peek(id); !ok || cur.Version != version {
		return
	}

	tracked := s.keys[id]
	if tracked == nil || tracked.version != version {
		if tracked != nil {
			s.drop(tracked)
		}
		tracked = &versionKeys{version: version, keys: make(map[string]struct{})}
		s.keys[id] = tracked
	}
	tracked.keys[key] = struct{}{}

	s.cache.Set(key, res, 1)
	s.cache.Wait()
}

// Evict drops every cached result of a session. It is registered as a
// session store eviction listener.
func (s *Service) Evict(id uuid.UUID) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()

	if tracked, ok := s.keys[id]; ok {
		s.drop(tracked)
		delete(s.keys, id)
	}
}

func (s *Service) drop(tracked *versionKeys) {
	for key := range tracked.keys {
		s.cache.Del(key)
	}
}

// Close releases the cache.
func (s *Service) Close() {
	s.cache.Close()
}

func cacheKey(id uuid.UUID, version uint64, op, param string) string {
	return fmt.Sprintf("%s:%d:%s:%s", id, version, op, strings.ToLower(param))
}
