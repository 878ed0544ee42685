package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Workspace is the catalog's container for specs, collections, and
// environments.
type Workspace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// WorkspaceStore manages workspace lookup and bootstrap.
type WorkspaceStore struct {
	client *Client
}

// NewWorkspaceStore creates a workspace store backed by the given client.
func NewWorkspaceStore(client *Client) *WorkspaceStore {
	return &WorkspaceStore{client: client}
}

// Get fetches a workspace by ID. A missing workspace returns
// ErrWorkspaceNotFound.
func (s *WorkspaceStore) Get(ctx context.Context, id string) (*Workspace, error) {
	var resp struct {
		Workspace Workspace `json:"workspace"`
	}
	if err := s.client.get(ctx, "/workspaces/"+id, &resp); err != nil {
		var rejected *RequestRejectedError
		if errors.As(err, &rejected) && rejected.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
		}
		return nil, err
	}
	return &resp.Workspace, nil
}

// Create creates a new team workspace and returns its ID.
func (s *WorkspaceStore) Create(ctx context.Context, name, description string) (string, error) {
	if description == "" {
		description = fmt.Sprintf("Workspace for %s APIs", name)
	}
	payload := map[string]any{
		"workspace": Workspace{
			Name:        name,
			Type:        "team",
			Description: description,
		},
	}
	var resp struct {
		Workspace Workspace `json:"workspace"`
	}
	if err := s.client.send(ctx, http.MethodPost, "/workspaces", payload, &resp); err != nil {
		return "", fmt.Errorf("failed to create workspace %q: %w", name, err)
	}
	if resp.Workspace.ID == "" {
		return "", fmt.Errorf("catalog returned no workspace id for %q", name)
	}
	return resp.Workspace.ID, nil
}

// Ensure returns a usable workspace ID. When id is set and exists it is used
// as-is; when it is set but missing, or not set at all, a fresh workspace
// named after the spec is created.
func (s *WorkspaceStore) Ensure(ctx context.Context, id, name string) (string, bool, error) {
	if id != "" {
		_, err := s.Get(ctx, id)
		if err == nil {
			return id, false, nil
		}
		if !errors.Is(err, ErrWorkspaceNotFound) {
			return "", false, err
		}
	}

	if name == "" {
		name = "API-Ingestion-Workspace"
	}
	created, err := s.Create(ctx, name, "")
	if err != nil {
		return "", false, err
	}
	return created, true, nil
}
