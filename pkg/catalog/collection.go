package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// GenerationState describes how the linked collection relates to the spec
// content after a sync run.
type GenerationState string

const (
	// GenerationFresh means the collection matches the spec (either newly
	// generated or untouched because nothing demanded regeneration).
	GenerationFresh GenerationState = "fresh"
	// GenerationStale means the spec content changed this run but the
	// collection was intentionally left alone to preserve manual edits.
	GenerationStale GenerationState = "stale"
	// GenerationForced means the collection content was regenerated in place
	// because a forced sync was requested.
	GenerationForced GenerationState = "forced"
)

// CollectionRef is a reference to the request collection linked to a spec.
type CollectionRef struct {
	ID     string
	UID    string
	SpecID string
	State  GenerationState
}

// EnsureOptions controls collection reconciliation.
type EnsureOptions struct {
	// Force regenerates the collection content in place even when one
	// already exists.
	Force bool
	// SpecUpdated reports whether the spec schema was replaced this run.
	// An existing collection is then marked stale (but not regenerated)
	// unless Force is set.
	SpecUpdated bool
}

const (
	taskPollInterval    = 2 * time.Second
	taskPollMaxAttempts = 30
)

// CollectionStore manages the request collection generated from a spec.
//
// A collection is linked to its spec by carrying the spec's title as its
// name inside the same workspace. Existing collections are never regenerated
// implicitly: engineers keep manual edits unless a forced sync is requested.
type CollectionStore struct {
	client       *Client
	pollInterval time.Duration
	sleep        func(time.Duration)
}

// NewCollectionStore creates a collection store backed by the given client.
func NewCollectionStore(client *Client) *CollectionStore {
	return &CollectionStore{
		client:       client,
		pollInterval: taskPollInterval,
		sleep:        time.Sleep,
	}
}

type collectionSummary struct {
	ID   string `json:"id"`
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// find looks up a collection by exact name match in the workspace.
func (s *CollectionStore) find(ctx context.Context, workspaceID, name string) (*collectionSummary, error) {
	var resp struct {
		Collections []collectionSummary `json:"collections"`
	}
	path := "/collections?workspaceId=" + url.QueryEscape(workspaceID)
	if err := s.client.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	for i := range resp.Collections {
		if resp.Collections[i].Name == name {
			return &resp.Collections[i], nil
		}
	}
	return nil, nil
}

// Ensure reconciles the collection linked to the spec.
//
//   - no collection yet: generate one from the spec and link it
//   - collection exists, no force: leave it untouched
//   - collection exists, force: regenerate its contents, ID preserved
func (s *CollectionStore) Ensure(ctx context.Context, workspaceID string, spec SpecHandle, opts EnsureOptions) (CollectionRef, error) {
	existing, err := s.find(ctx, workspaceID, spec.Title)
	if err != nil {
		return CollectionRef{}, err
	}

	if existing == nil {
		id, uid, err := s.generate(ctx, spec)
		if err != nil {
			return CollectionRef{}, err
		}
		return CollectionRef{ID: id, UID: uid, SpecID: spec.ID, State: GenerationFresh}, nil
	}

	ref := CollectionRef{ID: existing.ID, UID: existing.UID, SpecID: spec.ID, State: GenerationFresh}

	if opts.Force {
		if err := s.regenerate(ctx, spec, existing.ID); err != nil {
			return CollectionRef{}, err
		}
		ref.State = GenerationForced
		return ref, nil
	}

	if opts.SpecUpdated {
		ref.State = GenerationStale
	}
	return ref, nil
}

// generationOptions mirrors the catalog's collection generation defaults:
// requests grouped into folders by the spec's tags, names falling back to
// summaries, example values taken from documented examples.
func generationOptions() map[string]any {
	return map[string]any{
		"requestNameSource": "Fallback",
		"indentCharacter":   "Tab",
		"folderStrategy":    "Tags",
		"includeExamples":   true,
	}
}

// generate creates a fresh collection from the spec, polling the generation
// task when the catalog answers asynchronously.
func (s *CollectionStore) generate(ctx context.Context, spec SpecHandle) (id, uid string, err error) {
	payload := map[string]any{
		"name":    spec.Title,
		"options": generationOptions(),
	}

	var resp struct {
		TaskID     string `json:"taskId"`
		URL        string `json:"url"`
		Collection struct {
			ID  string `json:"id"`
			UID string `json:"uid"`
		} `json:"collection"`
	}
	path := "/specs/" + spec.ID + "/generations/collection"
	if err := s.client.send(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return "", "", fmt.Errorf("failed to generate collection for spec %s: %w", spec.ID, err)
	}

	if resp.TaskID == "" {
		if resp.Collection.ID == "" {
			return "", "", fmt.Errorf("catalog returned neither a collection nor a task for spec %s", spec.ID)
		}
		return resp.Collection.ID, resp.Collection.UID, nil
	}

	task, err := s.pollTask(ctx, resp.URL)
	if err != nil {
		return "", "", err
	}
	if len(task.Details.Resources) == 0 {
		return "", "", fmt.Errorf("collection generation task %s completed without resources", resp.TaskID)
	}
	res := task.Details.Resources[0]
	return res.ID, res.UID, nil
}

// regenerate rebuilds the content of an already-linked collection from the
// current spec, preserving the collection's identifier.
func (s *CollectionStore) regenerate(ctx context.Context, spec SpecHandle, collectionID string) error {
	payload := map[string]any{
		"options": generationOptions(),
	}
	path := "/specs/" + spec.ID + "/generations/" + collectionID
	var resp struct {
		TaskID string `json:"taskId"`
		URL    string `json:"url"`
	}
	if err := s.client.send(ctx, http.MethodPut, path, payload, &resp); err != nil {
		return fmt.Errorf("failed to sync collection %s with spec %s: %w", collectionID, spec.ID, err)
	}
	if resp.TaskID == "" {
		return nil
	}
	if _, err := s.pollTask(ctx, resp.URL); err != nil {
		return err
	}
	return nil
}

type taskResult struct {
	Status  string `json:"status"`
	Details struct {
		Resources []struct {
			ID  string `json:"id"`
			UID string `json:"uid"`
		} `json:"resources"`
	} `json:"details"`
}

// pollTask polls an async task URL until it completes or fails.
func (s *CollectionStore) pollTask(ctx context.Context, taskURL string) (*taskResult, error) {
	for i := 0; i < taskPollMaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var task taskResult
		if err := s.client.get(ctx, taskPath(taskURL), &task); err != nil {
			return nil, fmt.Errorf("failed to poll generation task: %w", err)
		}

		switch task.Status {
		case "completed":
			return &task, nil
		case "failed":
			return nil, fmt.Errorf("collection generation task failed")
		}

		s.sleep(s.pollInterval)
	}
	return nil, fmt.Errorf("collection generation task timed out after %d polls", taskPollMaxAttempts)
}

// taskPath reduces an absolute task URL to its catalog path; relative task
// URLs pass through unchanged.
func taskPath(taskURL string) string {
	if u, err := url.Parse(taskURL); err == nil && u.Path != "" && u.Host != "" {
		if u.RawQuery != "" {
			return u.Path + "?" + u.RawQuery
		}
		return u.Path
	}
	return taskURL
}

// Get fetches the full collection document.
func (s *CollectionStore) Get(ctx context.Context, collectionID string) (json.RawMessage, error) {
	raw, err := s.client.Do(ctx, http.MethodGet, "/collections/"+collectionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collection %s: %w", collectionID, err)
	}
	return raw, nil
}

// Update replaces the collection document, keeping its identifier.
func (s *CollectionStore) Update(ctx context.Context, collectionID string, collection json.RawMessage) error {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(collection, &body); err != nil {
		return fmt.Errorf("invalid collection document: %w", err)
	}
	if _, ok := body["collection"]; !ok {
		body = map[string]json.RawMessage{"collection": collection}
	}
	if err := s.client.send(ctx, http.MethodPut, "/collections/"+collectionID, body, nil); err != nil {
		return fmt.Errorf("failed to update collection %s: %w", collectionID, err)
	}
	return nil
}
