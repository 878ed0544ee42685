package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// specFileName is the single file path a spec resource stores its schema
// under. Updates always target this file so the resource ID stays stable.
const specFileName = "openapi.yaml"

// SpecHandle is a reference to a remote spec resource. It is valid for the
// duration of one run; identity is re-resolved by title on every invocation.
type SpecHandle struct {
	ID    string
	Title string
}

// SpecStore resolves and upserts spec resources inside a workspace.
//
// The identity key is (workspace, title), compared case-sensitively. The
// store never creates a second resource for a title it has already resolved.
type SpecStore struct {
	client *Client
	// OnDuplicate, when set, observes duplicate titles found during
	// resolution. The first listing match is treated as canonical.
	OnDuplicate func(title string, count int)
}

// NewSpecStore creates a spec store backed by the given client.
func NewSpecStore(client *Client) *SpecStore {
	return &SpecStore{client: client}
}

// SpecSummary is one entry of the workspace spec listing.
type SpecSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List returns all spec resources visible in the workspace.
func (s *SpecStore) List(ctx context.Context, workspaceID string) ([]SpecSummary, error) {
	var resp struct {
		Specs []SpecSummary `json:"specs"`
	}
	path := "/specs?workspaceId=" + url.QueryEscape(workspaceID)
	if err := s.client.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list specs: %w", err)
	}
	return resp.Specs, nil
}

// Resolve finds a spec resource by exact title match. When the remote store
// holds several resources with the same title (a data-quality anomaly), the
// first match in listing order wins; the catalog is the source of truth and
// the engine cannot disambiguate further.
func (s *SpecStore) Resolve(ctx context.Context, workspaceID, title string) (string, bool, error) {
	specs, err := s.List(ctx, workspaceID)
	if err != nil {
		return "", false, err
	}

	var id string
	matches := 0
	for _, spec := range specs {
		if spec.Name == title {
			if matches == 0 {
				id = spec.ID
			}
			matches++
		}
	}
	if matches > 1 && s.OnDuplicate != nil {
		s.OnDuplicate(title, matches)
	}
	return id, matches > 0, nil
}

// Create creates a new spec resource and returns its ID.
func (s *SpecStore) Create(ctx context.Context, workspaceID, title string, content []byte) (string, error) {
	payload := map[string]any{
		"name": title,
		"type": "OPENAPI:3.0",
		"files": []map[string]string{
			{"path": specFileName, "content": string(content)},
		},
	}
	var resp struct {
		ID string `json:"id"`
	}
	path := "/specs?workspaceId=" + url.QueryEscape(workspaceID)
	if err := s.client.send(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return "", fmt.Errorf("failed to create spec %q: %w", title, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("catalog returned no spec id for %q", title)
	}
	return resp.ID, nil
}

// Update replaces the schema content of an existing spec resource. The title
// is never modified; it is the identity key and must stay stable.
func (s *SpecStore) Update(ctx context.Context, specID string, content []byte) error {
	payload := map[string]string{"content": string(content)}
	path := "/specs/" + specID + "/files/" + specFileName
	if err := s.client.send(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("failed to update spec %s: %w", specID, err)
	}
	return nil
}

// Upsert creates the spec resource when absent or replaces its schema when
// present. The second return reports whether a new resource was created.
// Re-running with unchanged content yields the same handle and an update call
// that is a no-op from the catalog's observable state.
func (s *SpecStore) Upsert(ctx context.Context, workspaceID, title string, content []byte) (SpecHandle, bool, error) {
	id, found, err := s.Resolve(ctx, workspaceID, title)
	if err != nil {
		return SpecHandle{}, false, err
	}

	if !found {
		created, err := s.Create(ctx, workspaceID, title, content)
		if err != nil {
			return SpecHandle{}, false, err
		}
		return SpecHandle{ID: created, Title: title}, true, nil
	}

	if err := s.Update(ctx, id, content); err != nil {
		return SpecHandle{}, false, err
	}
	return SpecHandle{ID: id, Title: title}, false, nil
}
