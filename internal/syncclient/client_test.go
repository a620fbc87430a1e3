package syncclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindfulspace.app/backend/internal/api"
	"mindfulspace.app/backend/internal/core"
	"mindfulspace.app/backend/internal/kv"
	"mindfulspace.app/backend/internal/logging"
	"mindfulspace.app/backend/internal/store"
)

func newDB(t *testing.T) *store.Database {
	t.Helper()
	policies, err := store.DefaultPolicies()
	require.NoError(t, err)
	return store.NewDatabase(kv.NewMemory(), logging.Nop(), store.WithPolicies(policies))
}

// countingBackend counts List calls and can hold them until released.
type countingBackend struct {
	Backend
	lists   atomic.Int32
	release chan struct{}
}

func (b *countingBackend) List(ctx context.Context, collection, orderBy string) ([]store.Document, error) {
	b.lists.Add(1)
	if b.release != nil {
		<-b.release
	}
	return b.Backend.List(ctx, collection, orderBy)
}

func TestClient_CachesUntilWrite(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Backend: NewLocalBackend(newDB(t))}
	c := New(backend)

	first, err := c.List(ctx, store.CollectionExercise, "")
	require.NoError(t, err)
	assert.Len(t, first, 3)
	_, err = c.List(ctx, store.CollectionExercise, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, backend.lists.Load())

	// Other orderings and collections are separate queries.
	_, err = c.List(ctx, store.CollectionExercise, "-created_date")
	require.NoError(t, err)
	_, err = c.List(ctx, store.CollectionExpert, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, backend.lists.Load())

	created, err := c.Create(ctx, store.CollectionExercise, store.Document{"title_en": "Walk"})
	require.NoError(t, err)

	after, err := c.List(ctx, store.CollectionExercise, "")
	require.NoError(t, err)
	assert.Len(t, after, 4)
	assert.Contains(t, after, created)
	_, err = c.List(ctx, store.CollectionExpert, "")
	require.NoError(t, err)
	assert.EqualValues(t, 4, backend.lists.Load(), "writes only invalidate their own collection")
}

func TestClient_UpdateAndDeleteInvalidate(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Backend: NewLocalBackend(newDB(t))}
	c := New(backend)

	_, err := c.List(ctx, store.CollectionExpert, "")
	require.NoError(t, err)

	missing, err := c.Update(ctx, store.CollectionExpert, "nope", store.Document{"bio": "x"})
	require.NoError(t, err)
	assert.Nil(t, missing)
	_, err = c.List(ctx, store.CollectionExpert, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, backend.lists.Load())

	_, err = c.Update(ctx, store.CollectionExpert, "exp_1", store.Document{"bio": "updated"})
	require.NoError(t, err)
	items, err := c.List(ctx, store.CollectionExpert, "")
	require.NoError(t, err)
	assert.Equal(t, "updated", items[0]["bio"])

	ok, err := c.Delete(ctx, store.CollectionExpert, "exp_2")
	require.NoError(t, err)
	assert.True(t, ok)
	items, err = c.List(ctx, store.CollectionExpert, "")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.EqualValues(t, 3, backend.lists.Load())
}

func TestClient_CallersCannotCorruptCache(t *testing.T) {
	ctx := context.Background()
	c := New(NewLocalBackend(newDB(t)))

	items, err := c.List(ctx, store.CollectionExercise, "")
	require.NoError(t, err)
	items[0]["title_en"] = "mutated"

	again, err := c.List(ctx, store.CollectionExercise, "")
	require.NoError(t, err)
	assert.Equal(t, "Box Breathing", again[0]["title_en"])
}

func TestClient_MaxAge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	backend := &countingBackend{Backend: NewLocalBackend(newDB(t))}
	c := New(backend, WithMaxAge(time.Minute), WithClock(func() time.Time { return now }))

	_, err := c.List(ctx, store.CollectionPlaylist, "")
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, err = c.List(ctx, store.CollectionPlaylist, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, backend.lists.Load())

	now = now.Add(time.Minute)
	_, err = c.List(ctx, store.CollectionPlaylist, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, backend.lists.Load())
}

func TestClient_ConcurrentReadsShareOneFetch(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Backend: NewLocalBackend(newDB(t)), release: make(chan struct{})}
	c := New(backend)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := c.List(ctx, store.CollectionExercise, "")
			assert.NoError(t, err)
			assert.Len(t, items, 3)
		}()
	}
	require.Eventually(t, func() bool { return backend.lists.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.EqualValues(t, 1, backend.lists.Load())
}

func TestClient_CancelledCallerDoesNotFailSharedRead(t *testing.T) {
	backend := &countingBackend{Backend: NewLocalBackend(newDB(t)), release: make(chan struct{})}
	c := New(backend)

	cancelled, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.List(cancelled, store.CollectionExercise, "")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return backend.lists.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		items []store.Document
		err   error
	}
	second := make(chan result, 1)
	go func() {
		items, err := c.List(context.Background(), store.CollectionExercise, "")
		second <- result{items, err}
	}()

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared fetch")
	}

	close(backend.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Len(t, res.items, 3)
	assert.EqualValues(t, 1, backend.lists.Load())
}

func TestClient_ConcurrentUpdatesNoLostWrite(t *testing.T) {
	ctx := context.Background()
	c := New(NewLocalBackend(newDB(t)))

	var wg sync.WaitGroup
	for _, id := range []string{"exp_1", "exp_2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := c.Update(ctx, store.CollectionExpert, id, store.Document{"bio": "by " + id})
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	items, err := c.List(ctx, store.CollectionExpert, "")
	require.NoError(t, err)
	for _, it := range items {
		assert.Equal(t, "by "+it.ID(), it["bio"])
	}
}

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logging.Nop()
	db := newDB(t)
	users := core.NewUserService(db.Collection(store.CollectionUser), nil, log)
	chat := core.NewChatService(nil, nil, db.Conversations(), log)
	srv := httptest.NewServer(api.NewRouter(api.NewAPIHandler(db, users, chat, nil, log), log, nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPBackend(t *testing.T) {
	ctx := context.Background()
	b := NewHTTPBackend(newAPIServer(t).URL+"/", nil)

	items, err := b.List(ctx, store.CollectionExpert, "-created_date")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	created, err := b.Create(ctx, store.CollectionExpert, store.Document{"email": "a@x.com", "name": "A"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID())

	updated, err := b.Update(ctx, store.CollectionExpert, created.ID(), store.Document{"name": "B"})
	require.NoError(t, err)
	assert.Equal(t, "B", updated["name"])

	missing, err := b.Update(ctx, store.CollectionExpert, "nope", store.Document{"name": "B"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := b.Delete(ctx, store.CollectionExpert, created.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = b.Delete(ctx, store.CollectionExpert, created.ID())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = b.List(ctx, "Nope", "")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "Unknown entity type", se.Message)
}

func TestHTTPBackend_ThroughClient(t *testing.T) {
	ctx := context.Background()
	c := New(NewHTTPBackend(newAPIServer(t).URL, nil))

	before, err := c.List(ctx, store.CollectionPlaylist, "")
	require.NoError(t, err)
	assert.Empty(t, before)

	_, err = c.Create(ctx, store.CollectionPlaylist, store.Document{"title": "Calm"})
	require.NoError(t, err)

	after, err := c.List(ctx, store.CollectionPlaylist, "")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "Calm", after[0]["title"])
}
