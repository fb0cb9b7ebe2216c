package insights

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/session"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

type countingRecorder struct {
	mu           sync.Mutex
	hits, misses int
}

func (r *countingRecorder) ObserveAnalyticsCache(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func newTestService(t *testing.T) (*Service, *session.Store, *countingRecorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := session.NewStore(time.Hour, logger)
	rec := &countingRecorder{}

	svc, err := NewService(store, Config{MaxCost: 100}, logger)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc.WithRecorder(rec), store, rec
}

func TestService_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown operation", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.Run(ctx, uuid.New(), "horoscope", "")
		assert.ErrorIs(t, err, ErrUnknownOperation)
	})

	t.Run("invalid parameter", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.Run(ctx, uuid.New(), "top-counterparties", "Airtime Purchase")
		assert.Equal(t, statement.KindInvalidInput, statement.KindOf(err))
	})

	t.Run("missing session has no data", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		res, err := svc.Run(ctx, uuid.New(), "totals", "")
		require.NoError(t, err)
		assert.Equal(t, StatusNoData, res.Status)
	})

	t.Run("empty session has no data", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		id := uuid.New()
		store.Replace(id, &statement.Statement{})

		for _, op := range svc.Operations() {
			param := ""
			if len(op.Values) > 0 {
				param = op.Values[0]
			}
			res, err := svc.Run(ctx, id, op.Name, param)
			require.NoError(t, err)
			assert.Equal(t, StatusNoData, res.Status, op.Name)
		}
	})

	t.Run("ok result", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		id := uuid.New()
		store.Replace(id, &statement.Statement{Transactions: ledger()})

		res, err := svc.Run(ctx, id, "counts", "")
		require.NoError(t, err)
		assert.Equal(t, StatusOK, res.Status)
		assert.Equal(t, Counts{Withdrawals: 9, Deposits: 3, Total: 12}, res.Data)
	})

	t.Run("operation without matches has no data", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		id := uuid.New()
		store.Replace(id, &statement.Statement{Transactions: ledger()})

		res, err := svc.Run(ctx, id, "zuku", "")
		require.NoError(t, err)
		assert.Equal(t, StatusNoData, res.Status)
		assert.Contains(t, res.Message, "Zuku")
	})
}

func TestService_Cache(t *testing.T) {
	ctx := context.Background()

	t.Run("hits until the statement is replaced", func(t *testing.T) {
		svc, store, rec := newTestService(t)
		id := uuid.New()
		store.Replace(id, &statement.Statement{Transactions: ledger()})

		first, err := svc.Run(ctx, id, "totals", "")
		require.NoError(t, err)
		second, err := svc.Run(ctx, id, "totals", "")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, rec.hits)
		assert.Equal(t, 1, rec.misses)

		store.Replace(id, &statement.Statement{Transactions: ledger()[:1]})
		third, err := svc.Run(ctx, id, "totals", "")
		require.NoError(t, err)
		assert.Equal(t, 2, rec.misses)
		assert.NotEqual(t, first.Data, third.Data)
	})

	t.Run("parameters are part of the key", func(t *testing.T) {
		svc, store, rec := newTestService(t)
		id := uuid.New()
		store.Replace(id, &statement.Statement{Transactions: ledger()})

		_, err := svc.Run(ctx, id, "top-counterparties", "Pay Bill")
		require.NoError(t, err)
		_, err = svc.Run(ctx, id, "top-counterparties", "Send Money")
		require.NoError(t, err)
		_, err = svc.Run(ctx, id, "top-counterparties", "pay bill")
		require.NoError(t, err)
		assert.Equal(t, 2, rec.misses)
		assert.Equal(t, 1, rec.hits)
	})

	t.Run("evict drops the session's entries", func(t *testing.T) {
		svc, store, rec := newTestService(t)
		id := uuid.New()
		store.Replace(id, &statement.Statement{Transactions: ledger()})

		_, err := svc.Run(ctx, id, "types", "")
		require.NoError(t, err)
		svc.Evict(id)
		_, err = svc.Run(ctx, id, "types", "")
		require.NoError(t, err)
		assert.Equal(t, 2, rec.misses)
		assert.Zero(t, rec.hits)
	})

	t.Run("a new version drops the previous version's keys", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		id := uuid.New()
		store.Replace(id, &statement.Statement{Transactions: ledger()})

		for _, name := range []string{"totals", "types"} {
			_, err := svc.Run(ctx, id, name, "")
			require.NoError(t, err)
		}
		version, keys := tracked(svc, id)
		assert.Equal(t, uint64(1), version)
		assert.Len(t, keys, 2)

		store.Replace(id, &statement.Statement{Transactions: ledger()[:2]})
		_, err := svc.Run(ctx, id, "totals", "")
		require.NoError(t, err)

		version, keys = tracked(svc, id)
		assert.Equal(t, uint64(2), version)
		assert.Equal(t, []string{cacheKey(id, 2, "totals", "")}, keys)
		for _, name := range []string{"totals", "types"} {
			_, ok := svc.cache.Get(cacheKey(id, 1, name, ""))
			assert.False(t, ok, name)
		}
	})

	t.Run("results for a deleted session are not kept", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		id := uuid.New()
		sess := store.Replace(id, &statement.Statement{Transactions: ledger()})
		key := cacheKey(id, sess.Version, "totals", "")

		require.NoError(t, store.Delete(id))
		svc.remember(id, sess.Version, key, Result{Status: StatusOK})

		_, ok := svc.cache.Get(key)
		assert.False(t, ok)
		_, keys := tracked(svc, id)
		assert.Empty(t, keys)
	})

	t.Run("results for a replaced version are not kept", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		id := uuid.New()
		stale := store.Replace(id, &statement.Statement{Transactions: ledger()})
		store.Replace(id, &statement.Statement{Transactions: ledger()})

		key := cacheKey(id, stale.Version, "totals", "")
		svc.remember(id, stale.Version, key, Result{Status: StatusOK})

		_, ok := svc.cache.Get(key)
		assert.False(t, ok)
	})

	t.Run("concurrent runs and deletion leave nothing behind", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		store.OnEvict(svc.Evict)

		ids := make([]uuid.UUID, 20)
		for i := range ids {
			ids[i] = uuid.New()
			store.Replace(ids[i], &statement.Statement{Transactions: ledger()})
		}

		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(2)
			go func(id uuid.UUID) {
				defer wg.Done()
				for _, name := range []string{"totals", "types", "by-day"} {
					_, err := svc.Run(ctx, id, name, "")
					assert.NoError(t, err)
				}
			}(id)
			go func(id uuid.UUID) {
				defer wg.Done()
				assert.NoError(t, store.Delete(id))
			}(id)
		}
		wg.Wait()

		for _, id := range ids {
			_, keys := tracked(svc, id)
			assert.Empty(t, keys)
			for _, name := range []string{"totals", "types", "by-day"} {
				_, ok := svc.cache.Get(cacheKey(id, 1, name, ""))
				assert.False(t, ok, name)
			}
		}
	})
}

// tracked returns the version and sorted cache keys recorded for id.
func tracked(svc *Service, id uuid.UUID) (uint64, []string) {
	svc.keysMu.Lock()
	defer svc.keysMu.Unlock()

	v, ok := svc.keys[id]
	if !ok {
		return 0, nil
	}
	keys := make([]string, 0, len(v.keys))
	for k := range v.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return v.version, keys
}

func TestService_RecoversPanics(t *testing.T) {
	svc, store, rec := newTestService(t)
	svc.ops["boom"] = Operation{Name: "boom", Group: GroupTransactions, run: func([]statement.Transaction, string) (any, error) {
		panic("index out of range")
	}}
	id := uuid.New()
	store.Replace(id, &statement.Statement{Transactions: ledger()})

	res, err := svc.Run(context.Background(), id, "boom", "")
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Nil(t, res.Data)

	// Failures are not cached.
	_, err = svc.Run(context.Background(), id, "boom", "")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.misses)
}

func TestService_Operations(t *testing.T) {
	svc, _, _ := newTestService(t)
	ops := svc.Operations()
	assert.Len(t, ops, len(registry()))
	assert.Equal(t, GroupCredit, ops[0].Group)
	assert.Equal(t, "credit-score", ops[0].Name)
}
