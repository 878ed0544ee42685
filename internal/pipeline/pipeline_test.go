package pipeline_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsync/specsync/internal/pipeline"
	"github.com/specsync/specsync/pkg/catalog"
	"github.com/specsync/specsync/pkg/catalog/catalogtest"
)

const specFixture = `openapi: 3.0.3
info:
  title: Refund API v1
  version: 1.0.0
servers:
  - url: https://api.example.com/v2
paths:
  /refunds:
    get:
      summary: List refunds
      responses:
        '200':
          description: OK
`

func writeSpecFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(specFixture), 0o644))
	return path
}

func baseOptions(t *testing.T, server *catalogtest.Server) pipeline.Options {
	t.Helper()
	return pipeline.Options{
		SpecPath:  writeSpecFixture(t),
		APIKey:    "test-key",
		BaseURL:   server.URL(),
		ExportDir: filepath.Join(t.TempDir(), "exports"),
		Export:    true,
	}
}

func TestRun_FirstSyncCreatesEverything(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()

	result, err := pipeline.Run(context.Background(), baseOptions(t, server))
	require.NoError(t, err)

	assert.True(t, result.WorkspaceCreated)
	assert.True(t, result.SpecCreated)
	assert.Equal(t, "Refund API v1", result.Spec.Title)
	assert.Equal(t, catalog.GenerationFresh, result.Collection.State)
	assert.Len(t, result.Environments, 4)
	assert.Contains(t, result.WorkspaceURL(), result.Workspace)

	// The generated collection carries the auth pre-request script.
	doc := server.CollectionDoc(result.Collection.ID)
	require.NotNil(t, doc)
	var events []struct {
		Listen string `json:"listen"`
	}
	require.NoError(t, json.Unmarshal(doc["event"], &events))
	require.Len(t, events, 1)
	assert.Equal(t, "prerequest", events[0].Listen)

	// One collection file plus one file per stage.
	require.Len(t, result.ExportedFiles, 5)
	for _, f := range result.ExportedFiles {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}
	assert.Contains(t, result.ExportedFiles[0], "refund-api-v1-collection.json")
}

func TestRun_SecondSyncIsIdempotent(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()
	opts := baseOptions(t, server)

	first, err := pipeline.Run(context.Background(), opts)
	require.NoError(t, err)

	opts.WorkspaceID = first.Workspace
	second, err := pipeline.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.False(t, second.WorkspaceCreated)
	assert.False(t, second.SpecCreated)
	assert.Equal(t, first.Spec.ID, second.Spec.ID, "re-sync must reuse the spec resource")
	assert.Equal(t, first.Collection.ID, second.Collection.ID)

	assert.Equal(t, 1, server.Counters.WorkspaceCreates)
	assert.Equal(t, 1, server.Counters.SpecCreates, "second run updates, never creates")
	assert.Equal(t, 1, server.Counters.SpecUpdates)
	assert.Equal(t, 1, server.Counters.CollectionGens)
	assert.Equal(t, 4, server.Counters.EnvCreates)

	// The spec content changed server-side, so the existing collection is
	// reported stale rather than silently regenerated.
	assert.Equal(t, catalog.GenerationStale, second.Collection.State)
	assert.Equal(t, 0, server.Counters.CollectionSyncs)

	// Reinstalling the auth script must not stack events.
	doc := server.CollectionDoc(second.Collection.ID)
	var events []json.RawMessage
	require.NoError(t, json.Unmarshal(doc["event"], &events))
	assert.Len(t, events, 1)
}

func TestRun_ForceSyncRegeneratesInPlace(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()
	opts := baseOptions(t, server)

	first, err := pipeline.Run(context.Background(), opts)
	require.NoError(t, err)

	opts.WorkspaceID = first.Workspace
	opts.ForceSync = true
	second, err := pipeline.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, first.Collection.ID, second.Collection.ID, "forced sync keeps the collection id")
	assert.Equal(t, catalog.GenerationForced, second.Collection.State)
	assert.Equal(t, 1, server.Counters.CollectionSyncs)
	assert.Equal(t, 1, server.Counters.CollectionGens)
}

func TestRun_MissingAPIKeyFailsBeforeAnyRemoteCall(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()

	opts := baseOptions(t, server)
	opts.APIKey = ""

	_, err := pipeline.Run(context.Background(), opts)
	assert.ErrorIs(t, err, catalog.ErrAuthentication)
	assert.Equal(t, catalogtest.Counters{}, server.Counters)
}

func TestRun_ExportDisabled(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()

	opts := baseOptions(t, server)
	opts.Export = false

	result, err := pipeline.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, result.ExportedFiles)
	_, statErr := os.Stat(opts.ExportDir)
	assert.True(t, os.IsNotExist(statErr), "no export directory without --export")
}

func TestRun_UnparseableSpecFailsFast(t *testing.T) {
	server := catalogtest.New()
	defer server.Close()

	opts := baseOptions(t, server)
	opts.SpecPath = filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(opts.SpecPath, []byte("info:\n  title: x\n"), 0o644))

	_, err := pipeline.Run(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, catalogtest.Counters{}, server.Counters)
}
