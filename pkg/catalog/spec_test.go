package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsync/specsync/pkg/catalog"
	"github.com/specsync/specsync/pkg/catalog/catalogtest"
)

func newStoreClient(t *testing.T, server *catalogtest.Server) *catalog.Client {
	t.Helper()
	c := catalog.NewClient("test-key")
	c.BaseURL = server.URL()
	c.BackoffBase = time.Millisecond
	return c
}

func TestSpecStore_ResolveExactTitleMatch(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()
	server.AddSpec("Refund API v1", "openapi: 3.0.0")
	server.AddSpec("Refund API v2", "openapi: 3.0.0")

	store := catalog.NewSpecStore(newStoreClient(t, server))

	id, found, err := store.Resolve(context.Background(), "ws-1", "Refund API v1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.NotEmpty(t, id)

	// Titles are compared case-sensitively.
	_, found, err = store.Resolve(context.Background(), "ws-1", "refund api v1")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = store.Resolve(context.Background(), "ws-1", "Unknown API")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSpecStore_DuplicateTitleFirstMatchWins(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()
	first := server.AddSpec("Refund API v1", "a")
	server.AddSpec("Refund API v1", "b")

	store := catalog.NewSpecStore(newStoreClient(t, server))
	var dupTitle string
	var dupCount int
	store.OnDuplicate = func(title string, count int) {
		dupTitle, dupCount = title, count
	}

	id, found, err := store.Resolve(context.Background(), "ws-1", "Refund API v1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, first, id, "first match in listing order is canonical")
	assert.Equal(t, "Refund API v1", dupTitle)
	assert.Equal(t, 2, dupCount)
}

func TestSpecStore_UpsertCreatesWhenAbsent(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()

	store := catalog.NewSpecStore(newStoreClient(t, server))

	handle, created, err := store.Upsert(context.Background(), "ws-1", "Refund API v1", []byte("openapi: 3.0.0"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, handle.ID)
	assert.Equal(t, "Refund API v1", handle.Title)
	assert.Equal(t, 1, server.Counters.SpecCreates)
	assert.Equal(t, 0, server.Counters.SpecUpdates)
}

func TestSpecStore_UpsertIsIdempotent(t *testing.T) {
	// Scenario A: first run creates; re-running with identical content
	// returns the same id and issues only an update call.
	server := catalogtest.New()
	defer server.Close()

	store := catalog.NewSpecStore(newStoreClient(t, server))
	content := []byte("openapi: 3.0.0\ninfo:\n  title: Refund API v1")

	first, created, err := store.Upsert(context.Background(), "ws-1", "Refund API v1", content)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := store.Upsert(context.Background(), "ws-1", "Refund API v1", content)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, server.Counters.SpecCreates, "no duplicate resource may be created")
	assert.Equal(t, 1, server.Counters.SpecUpdates)
	assert.Equal(t, string(content), server.SpecContent(first.ID))
}

func TestSpecStore_UpsertReplacesSchema(t *testing.T) {
	// Scenario B: spec exists, schema modified; the update call replaces
	// the schema and the id stays unchanged.
	server := catalogtest.New()
	defer server.Close()
	existing := server.AddSpec("Refund API v1", "old content")

	store := catalog.NewSpecStore(newStoreClient(t, server))

	handle, created, err := store.Upsert(context.Background(), "ws-1", "Refund API v1", []byte("new content"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing, handle.ID)
	assert.Equal(t, "new content", server.SpecContent(existing))
	assert.Equal(t, 0, server.Counters.SpecCreates)
}

func TestSpecStore_DistinctTitlesResolveDistinctResources(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()

	store := catalog.NewSpecStore(newStoreClient(t, server))
	content := []byte("shared schema body")

	a, _, err := store.Upsert(context.Background(), "ws-1", "Refund API v1", content)
	require.NoError(t, err)
	b, _, err := store.Upsert(context.Background(), "ws-1", "Payout API v1", content)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID, "different titles must map to different resources")
}
