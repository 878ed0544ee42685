package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsync/specsync/pkg/catalog"
	"github.com/specsync/specsync/pkg/catalog/catalogtest"
)

func TestWorkspaceStore_EnsureUsesExisting(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()
	server.AddWorkspace("ws-42", "Payments")

	store := catalog.NewWorkspaceStore(newStoreClient(t, server))

	id, created, err := store.Ensure(context.Background(), "ws-42", "Refund API Workspace")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "ws-42", id)
	assert.Equal(t, 0, server.Counters.WorkspaceCreates)
}

func TestWorkspaceStore_EnsureCreatesWhenMissing(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()

	store := catalog.NewWorkspaceStore(newStoreClient(t, server))

	// A configured but missing workspace triggers creation of a fresh one.
	id, created, err := store.Ensure(context.Background(), "ws-gone", "Refund API Workspace")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, "ws-gone", id)
	assert.Equal(t, 1, server.Counters.WorkspaceCreates)
}

func TestWorkspaceStore_EnsureCreatesWhenUnset(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()

	store := catalog.NewWorkspaceStore(newStoreClient(t, server))

	id, created, err := store.Ensure(context.Background(), "", "Refund API Workspace")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)
}

func TestWorkspaceStore_GetMissingIsNotFound(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()

	store := catalog.NewWorkspaceStore(newStoreClient(t, server))

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, catalog.ErrWorkspaceNotFound)
}
