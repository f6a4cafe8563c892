package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/events"
	"github.com/ramonehamilton/binder-companion/internal/metrics"
	"github.com/ramonehamilton/binder-companion/internal/storage"
)

const pikachuJSON = `{"data":{"id":"base1-58","name":"Pikachu","number":"58","rarity":"Common",
"supertype":"Pokémon","types":["Lightning"],"set":{"id":"base1","name":"Base"},
"images":{"small":"https://images.example/base1/58.png"}}}`

type fakeCatalog struct {
	server *httptest.Server
	hits   atomic.Int32
	status atomic.Int32
}

func newFakeCatalog(t *testing.T) *fakeCatalog {
	t.Helper()
	f := &fakeCatalog{}
	f.status.Store(http.StatusOK)
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if r.Header.Get("X-Api-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if status := int(f.status.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		switch {
		case r.URL.Path == "/cards/base1-58":
			_, _ = w.Write([]byte(pikachuJSON))
		case r.URL.Path == "/cards" && strings.Contains(r.URL.Query().Get("q"), "Pikachu"):
			_, _ = w.Write([]byte(`{"data":[` + strings.TrimSuffix(strings.TrimPrefix(pikachuJSON, `{"data":`), "}") + `]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCatalog) client() *Client {
	return NewClient(ClientConfig{
		BaseURL:      f.server.URL,
		APIKey:       "secret",
		RateInterval: time.Millisecond,
		MaxRetries:   1,
	})
}

func TestClient_GetCardByIdentity(t *testing.T) {
	f := newFakeCatalog(t)

	d, err := f.client().GetCardByIdentity(context.Background(), "base1-58")
	require.NoError(t, err)
	assert.Equal(t, "Pikachu", d.Name)
	assert.Equal(t, "58", d.Number)
	assert.Equal(t, "base1", d.SetID)
	assert.Equal(t, []string{"Lightning"}, d.Types)
	assert.False(t, d.Placeholder)
}

func TestClient_NotFound(t *testing.T) {
	f := newFakeCatalog(t)

	_, err := f.client().GetCardByIdentity(context.Background(), "nope-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), f.hits.Load(), "404 is not retried")
}

func TestClient_RetriesThenUnavailable(t *testing.T) {
	f := newFakeCatalog(t)
	f.status.Store(http.StatusServiceUnavailable)

	_, err := f.client().GetCardByIdentity(context.Background(), "base1-58")
	assert.ErrorIs(t, err, binder.ErrCatalogUnavailable)
	assert.Equal(t, int32(2), f.hits.Load())
}

func TestClient_Search(t *testing.T) {
	f := newFakeCatalog(t)

	results, err := f.client().Search(context.Background(), "Pikachu", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "base1-58", results[0].ID)
}

func TestService_CachesInMemoryAndSQLite(t *testing.T) {
	f := newFakeCatalog(t)
	store, err := storage.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.NewSyncMetrics()
	svc := NewService(Config{Source: f.client(), Cache: store.Catalog(), Metrics: m})
	ctx := context.Background()

	_, err = svc.Lookup(ctx, "base1-58")
	require.NoError(t, err)
	_, err = svc.Lookup(ctx, "base1-58")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.hits.Load())
	assert.Equal(t, uint64(1), m.CatalogHits.Load())
	assert.Equal(t, uint64(1), m.CatalogMisses.Load())

	// A fresh service reads the SQLite copy without touching the network.
	f.status.Store(http.StatusInternalServerError)
	cold := NewService(Config{Source: f.client(), Cache: store.Catalog()})
	d, err := cold.Lookup(ctx, "base1-58")
	require.NoError(t, err)
	assert.Equal(t, "Pikachu", d.Name)
	assert.Equal(t, int32(1), f.hits.Load())

	n, err := cold.Cached(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_DetailsDegradesToPlaceholder(t *testing.T) {
	f := newFakeCatalog(t)
	f.status.Store(http.StatusBadGateway)

	rec := &events.Recorder{}
	dispatcher := events.NewEventDispatcher()
	dispatcher.Register(rec)

	svc := NewService(Config{Source: f.client(), Events: dispatcher})
	ctx := context.Background()

	d := svc.Details(ctx, "base1-58")
	assert.True(t, d.Placeholder)
	assert.Equal(t, "base1-58", d.ID)
	assert.Len(t, rec.Events(events.CatalogUnavailable), 1)

	// Placeholders are not cached.
	f.status.Store(http.StatusOK)
	d = svc.Details(ctx, "base1-58")
	assert.False(t, d.Placeholder)
	assert.Equal(t, "Pikachu", d.Name)
}

func TestService_UnknownCardIsSilentPlaceholder(t *testing.T) {
	f := newFakeCatalog(t)
	rec := &events.Recorder{}
	dispatcher := events.NewEventDispatcher()
	dispatcher.Register(rec)

	svc := NewService(Config{Source: f.client(), Events: dispatcher})
	d := svc.Details(context.Background(), "nope-1")
	assert.True(t, d.Placeholder)
	assert.Empty(t, rec.Events(events.CatalogUnavailable))
}

func TestService_Prefetch(t *testing.T) {
	f := newFakeCatalog(t)
	svc := NewService(Config{Source: f.client(), Concurrency: 2})

	details, err := svc.Prefetch(context.Background(), []string{"base1-58", "nope-1", "base1-58"})
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "Pikachu", details["base1-58"].Name)
	assert.True(t, details["nope-1"].Placeholder)
}

func TestService_NoSource(t *testing.T) {
	svc := NewService(Config{})
	_, err := svc.Lookup(context.Background(), "base1-58")
	assert.True(t, errors.Is(err, binder.ErrCatalogUnavailable))

	_, err = svc.Search(context.Background(), "Pikachu", 1)
	assert.Error(t, err)
}
