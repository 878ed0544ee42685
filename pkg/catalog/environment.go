package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/specsync/specsync/pkg/openapi"
)

// Stages are the four fixed deployment stages, in promotion order.
var Stages = []string{"Dev", "QA", "UAT", "Prod"}

// Environment variable keys managed by the engine. base_url is derived from
// the spec's servers; the credential keys are operator-set; the token keys
// are written by the generated pre-request script at request time.
const (
	VarBaseURL      = "base_url"
	VarClientID     = "client_id"
	VarClientSecret = "client_secret"
	VarTokenURL     = "token_url"
	VarJWTToken     = "jwt_token"
	VarTokenExpiry  = "token_expiry"
)

// defaultTokenURL seeds token_url at creation; operators replace it with
// their identity provider's endpoint.
const defaultTokenURL = "https://auth.example.com/oauth2/token"

// Variable is one key/value entry of a stage environment.
type Variable struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
	Type    string `json:"type,omitempty"`
}

// Environment is a named bundle of variables for one deployment stage.
type Environment struct {
	ID     string     `json:"id,omitempty"`
	Name   string     `json:"name"`
	Values []Variable `json:"values"`
}

// Lookup returns the value of a variable by key.
func (e *Environment) Lookup(key string) (Variable, bool) {
	for _, v := range e.Values {
		if v.Key == key {
			return v, true
		}
	}
	return Variable{}, false
}

// EnvironmentStore manages the four stage environments of a workspace.
//
// Updates touch only base_url: operator-set credentials and the token cache
// written by the pre-request script survive every spec sync.
type EnvironmentStore struct {
	client *Client
}

// NewEnvironmentStore creates an environment store backed by the given client.
func NewEnvironmentStore(client *Client) *EnvironmentStore {
	return &EnvironmentStore{client: client}
}

// StageBaseURLs maps the spec's declared servers onto the four stages.
//
// Servers whose description mentions a stage name claim that stage first.
// Remaining stages are filled positionally when the spec declares exactly
// four servers (declaration order maps to Dev, QA, UAT, Prod). Any stage
// still unmapped falls back to the first declared server, so a single-server
// spec fans out to all four stages.
func StageBaseURLs(servers []openapi.Server) map[string]string {
	mapping := make(map[string]string, len(Stages))

	for _, srv := range servers {
		desc := strings.ToLower(srv.Description)
		switch {
		case strings.Contains(desc, "prod"):
			setIfAbsent(mapping, "Prod", srv.URL)
		case strings.Contains(desc, "uat"):
			setIfAbsent(mapping, "UAT", srv.URL)
		case strings.Contains(desc, "qa"):
			setIfAbsent(mapping, "QA", srv.URL)
		case strings.Contains(desc, "dev"):
			setIfAbsent(mapping, "Dev", srv.URL)
		}
	}

	if len(servers) == len(Stages) {
		for i, stage := range Stages {
			setIfAbsent(mapping, stage, servers[i].URL)
		}
	}

	if len(servers) > 0 {
		for _, stage := range Stages {
			setIfAbsent(mapping, stage, servers[0].URL)
		}
	}

	return mapping
}

// Ensure creates or updates one environment per stage and returns all four
// descriptors in stage order.
func (s *EnvironmentStore) Ensure(ctx context.Context, workspaceID string, servers []openapi.Server) ([]Environment, error) {
	baseURLs := StageBaseURLs(servers)

	existing, err := s.list(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(existing))
	for _, env := range existing {
		if _, ok := byName[env.Name]; !ok {
			byName[env.Name] = env.ID
		}
	}

	result := make([]Environment, 0, len(Stages))
	for _, stage := range Stages {
		var env *Environment
		var err error
		if id, ok := byName[stage]; ok {
			env, err = s.updateBaseURL(ctx, id, baseURLs[stage])
		} else {
			env, err = s.create(ctx, workspaceID, stage, baseURLs[stage])
		}
		if err != nil {
			return nil, err
		}
		result = append(result, *env)
	}
	return result, nil
}

type environmentSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *EnvironmentStore) list(ctx context.Context, workspaceID string) ([]environmentSummary, error) {
	var resp struct {
		Environments []environmentSummary `json:"environments"`
	}
	path := "/environments?workspaceId=" + url.QueryEscape(workspaceID)
	if err := s.client.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}
	return resp.Environments, nil
}

// Get fetches a full environment by ID.
func (s *EnvironmentStore) Get(ctx context.Context, id string) (*Environment, error) {
	var resp struct {
		Environment Environment `json:"environment"`
	}
	if err := s.client.get(ctx, "/environments/"+id, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch environment %s: %w", id, err)
	}
	return &resp.Environment, nil
}

// newStageEnvironment builds the full variable set for a fresh stage
// environment. jwt_token and token_expiry start empty; the pre-request
// script manages them at request time.
func newStageEnvironment(stage, baseURL string) Environment {
	return Environment{
		Name: stage,
		Values: []Variable{
			{Key: VarBaseURL, Value: baseURL, Enabled: true},
			{Key: VarClientID, Value: "", Enabled: true, Type: "secret"},
			{Key: VarClientSecret, Value: "", Enabled: true, Type: "secret"},
			{Key: VarTokenURL, Value: defaultTokenURL, Enabled: true},
			{Key: VarJWTToken, Value: "", Enabled: true, Type: "secret"},
			{Key: VarTokenExpiry, Value: "", Enabled: true},
		},
	}
}

func (s *EnvironmentStore) create(ctx context.Context, workspaceID, stage, baseURL string) (*Environment, error) {
	env := newStageEnvironment(stage, baseURL)
	payload := map[string]any{"environment": env}

	var resp struct {
		Environment environmentSummary `json:"environment"`
	}
	path := "/environments?workspaceId=" + url.QueryEscape(workspaceID)
	if err := s.client.send(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to create environment %s: %w", stage, err)
	}
	env.ID = resp.Environment.ID
	return &env, nil
}

// updateBaseURL rewrites only the base_url variable of an existing
// environment. Credentials and the cached token pass through verbatim; a
// spec sync must never reset them.
func (s *EnvironmentStore) updateBaseURL(ctx context.Context, id, baseURL string) (*Environment, error) {
	env, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range env.Values {
		if env.Values[i].Key == VarBaseURL {
			env.Values[i].Value = baseURL
			env.Values[i].Enabled = true
			found = true
			break
		}
	}
	if !found {
		env.Values = append(env.Values, Variable{Key: VarBaseURL, Value: baseURL, Enabled: true})
	}

	// Backfill managed keys an operator may have deleted, without touching
	// anything that still exists.
	for _, tmpl := range newStageEnvironment(env.Name, baseURL).Values {
		if _, ok := env.Lookup(tmpl.Key); !ok {
			env.Values = append(env.Values, tmpl)
		}
	}

	payload := map[string]any{"environment": env}
	if err := s.client.send(ctx, http.MethodPut, "/environments/"+id, payload, nil); err != nil {
		return nil, fmt.Errorf("failed to update environment %s: %w", env.Name, err)
	}
	return env, nil
}

func setIfAbsent(m map[string]string, key, value string) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}
