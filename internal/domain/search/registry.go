package search

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

type entry struct {
	version uint64
	index   *Index
}

// Registry keeps one index per session, rebuilt whenever the session's
// statement version changes.
type Registry struct {
	mu      sync.Mutex
	indexes map[uuid.UUID]entry
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		indexes: make(map[uuid.UUID]entry),
		logger:  logger,
	}
}

// Index returns the index for the session at version, building it from txs
// on first use.
func (r *Registry) Index(id uuid.UUID, version uint64, txs []statement.Transaction) (*Index, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.indexes[id]; ok {
		if e.version == version {
			return e.index, nil
		}
		r.closeEntry(id, e)
	}

	idx, err := NewIndex(txs)
	if err != nil {
		return nil, err
	}
	r.indexes[id] = entry{version: version, index: idx}
	r.logger.Debug("built search index",
		slog.String("session_id", id.String()),
		slog.Uint64("version", version),
		slog.Int("documents", len(txs)))
	return idx, nil
}

// Evict drops the session's index. It is registered as a session store
// eviction listener.
func (r *Registry) Evict(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.indexes[id]; ok {
		r.closeEntry(id, e)
	}
}

// Len returns the number of live indexes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.indexes)
}

// Close releases every index.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.indexes {
		r.closeEntry(id, e)
	}
}

func (r *Registry) closeEntry(id uuid.UUID, e entry) {
	delete(r.indexes, id)
	if err := e.index.Close(); err != nil {
		r.logger.Warn("failed to close search index",
			slog.String("session_id", id.String()),
			slog.Any("error", err))
	}
}
