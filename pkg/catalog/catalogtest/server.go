// Package catalogtest provides an in-memory catalog service for tests.
//
// The server implements the subset of the catalog API the sync engine
// touches: workspaces, spec resources, collection generation with async
// task polling, and environments. It records call counters so tests can
// assert idempotency (e.g. a second sync issues an update, not a create).
package catalogtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Counters tracks how many times each mutating operation ran.
type Counters struct {
	WorkspaceCreates  int
	SpecCreates       int
	SpecUpdates       int
	CollectionGens    int
	CollectionSyncs   int
	CollectionUpdates int
	EnvCreates        int
	EnvUpdates        int
}

type storedSpec struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"-"`
}

type storedCollection struct {
	ID   string
	UID  string
	Name string
	Doc  map[string]json.RawMessage
}

type storedEnvironment struct {
	ID     string
	Name   string
	Values []map[string]any
}

// Server is an in-memory catalog service.
type Server struct {
	mu sync.Mutex

	httpServer   *httptest.Server
	nextID       int
	workspaces   map[string]string // id -> name
	specs        []*storedSpec
	collections  []*storedCollection
	environments []*storedEnvironment
	tasks        map[string]map[string]any

	// Counters records mutating calls; read it after the run under test.
	Counters Counters
}

// New starts an in-memory catalog server. Close it when done.
func New() *Server {
	s := &Server{
		workspaces: make(map[string]string),
		tasks:      make(map[string]map[string]any),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /workspaces/{id}", s.getWorkspace)
	mux.HandleFunc("POST /workspaces", s.createWorkspace)
	mux.HandleFunc("GET /specs", s.listSpecs)
	mux.HandleFunc("POST /specs", s.createSpec)
	mux.HandleFunc("PUT /specs/{id}/files/{file}", s.updateSpec)
	mux.HandleFunc("POST /specs/{id}/generations/collection", s.generateCollection)
	mux.HandleFunc("PUT /specs/{id}/generations/{collectionId}", s.syncCollection)
	mux.HandleFunc("GET /tasks/{id}", s.getTask)
	mux.HandleFunc("GET /collections", s.listCollections)
	mux.HandleFunc("GET /collections/{id}", s.getCollection)
	mux.HandleFunc("PUT /collections/{id}", s.updateCollection)
	mux.HandleFunc("GET /environments", s.listEnvironments)
	mux.HandleFunc("POST /environments", s.createEnvironment)
	mux.HandleFunc("GET /environments/{id}", s.getEnvironment)
	mux.HandleFunc("PUT /environments/{id}", s.updateEnvironment)

	s.httpServer = httptest.NewServer(mux)
	return s
}

// URL returns the server base URL.
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts the server down.
func (s *Server) Close() { s.httpServer.Close() }

// AddWorkspace seeds a workspace.
func (s *Server) AddWorkspace(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[id] = name
}

// AddSpec seeds a spec resource and returns its ID.
func (s *Server) AddSpec(name, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID("spec")
	s.specs = append(s.specs, &storedSpec{ID: id, Name: name, Content: content})
	return id
}

// SpecContent returns the stored schema content of a spec.
func (s *Server) SpecContent(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, spec := range s.specs {
		if spec.ID == id {
			return spec.Content
		}
	}
	return ""
}

// CollectionDoc returns a deep copy of a stored collection document.
func (s *Server) CollectionDoc(id string) map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, col := range s.collections {
		if col.ID == id {
			out := make(map[string]json.RawMessage, len(col.Doc))
			for k, v := range col.Doc {
				out[k] = append(json.RawMessage(nil), v...)
			}
			return out
		}
	}
	return nil
}

// EnvironmentValues returns the stored variables of an environment by name.
func (s *Server) EnvironmentValues(name string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range s.environments {
		if env.Name == name {
			return env.Values
		}
	}
	return nil
}

// SetEnvironmentValue overwrites one variable of a stored environment,
// simulating an operator editing credentials in the catalog UI.
func (s *Server) SetEnvironmentValue(envName, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range s.environments {
		if env.Name != envName {
			continue
		}
		for _, v := range env.Values {
			if v["key"] == key {
				v["value"] = value
				return
			}
		}
	}
}

func (s *Server) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	name, ok := s.workspaces[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "workspace not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workspace": map[string]string{"id": id, "name": name},
	})
}

func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var body struct {
		Workspace struct {
			Name string `json:"name"`
		} `json:"workspace"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	id := s.newID("ws")
	s.workspaces[id] = body.Workspace.Name
	s.Counters.WorkspaceCreates++
	writeJSON(w, http.StatusOK, map[string]any{
		"workspace": map[string]string{"id": id, "name": body.Workspace.Name},
	})
}

func (s *Server) listSpecs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	specs := make([]*storedSpec, len(s.specs))
	copy(specs, s.specs)
	writeJSON(w, http.StatusOK, map[string]any{"specs": specs})
}

func (s *Server) createSpec(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var body struct {
		Name  string `json:"name"`
		Files []struct {
			Content string `json:"content"`
		} `json:"files"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	spec := &storedSpec{ID: s.newID("spec"), Name: body.Name}
	if len(body.Files) > 0 {
		spec.Content = body.Files[0].Content
	}
	s.specs = append(s.specs, spec)
	s.Counters.SpecCreates++
	writeJSON(w, http.StatusOK, map[string]string{"id": spec.ID})
}

func (s *Server) updateSpec(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var body struct {
		Content string `json:"content"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	for _, spec := range s.specs {
		if spec.ID == r.PathValue("id") {
			spec.Content = body.Content
			s.Counters.SpecUpdates++
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "spec not found"})
}

// newCollectionDoc builds a minimal generated collection document.
func newCollectionDoc(name string) map[string]json.RawMessage {
	info, _ := json.Marshal(map[string]string{"name": name})
	items, _ := json.Marshal([]any{})
	return map[string]json.RawMessage{
		"info": info,
		"item": items,
	}
}

func (s *Server) generateCollection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	specID := r.PathValue("id")
	var spec *storedSpec
	for _, candidate := range s.specs {
		if candidate.ID == specID {
			spec = candidate
		}
	}
	if spec == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "spec not found"})
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	name := body.Name
	if name == "" {
		name = spec.Name
	}

	col := &storedCollection{
		ID:   s.newID("col"),
		UID:  s.newID("uid"),
		Name: name,
		Doc:  newCollectionDoc(name),
	}
	s.collections = append(s.collections, col)
	s.Counters.CollectionGens++

	// Answer asynchronously, the way the real service does for large specs.
	taskID := s.newID("task")
	s.tasks[taskID] = map[string]any{
		"status": "completed",
		"details": map[string]any{
			"resources": []map[string]string{{"id": col.ID, "uid": col.UID}},
		},
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"taskId": taskID,
		"url":    s.httpServer.URL + "/tasks/" + taskID,
	})
}

func (s *Server) syncCollection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	collectionID := r.PathValue("collectionId")
	for _, col := range s.collections {
		if col.ID == collectionID {
			// Regeneration rebuilds content but keeps identifiers.
			events := col.Doc["event"]
			col.Doc = newCollectionDoc(col.Name)
			if events != nil {
				col.Doc["event"] = events
			}
			s.Counters.CollectionSyncs++
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "collection not found"})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]string, 0, len(s.collections))
	for _, col := range s.collections {
		out = append(out, map[string]string{"id": col.ID, "uid": col.UID, "name": col.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": out})
}

func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, col := range s.collections {
		if col.ID == r.PathValue("id") || col.UID == r.PathValue("id") {
			writeJSON(w, http.StatusOK, map[string]any{"collection": col.Doc})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "collection not found"})
}

func (s *Server) updateCollection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var body struct {
		Collection map[string]json.RawMessage `json:"collection"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Collection == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid collection"})
		return
	}
	for _, col := range s.collections {
		if col.ID == r.PathValue("id") || col.UID == r.PathValue("id") {
			col.Doc = body.Collection
			s.Counters.CollectionUpdates++
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "collection not found"})
}

func (s *Server) listEnvironments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]string, 0, len(s.environments))
	for _, env := range s.environments {
		out = append(out, map[string]string{"id": env.ID, "name": env.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"environments": out})
}

func (s *Server) createEnvironment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var body struct {
		Environment struct {
			Name   string           `json:"name"`
			Values []map[string]any `json:"values"`
		} `json:"environment"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	env := &storedEnvironment{
		ID:     s.newID("env"),
		Name:   body.Environment.Name,
		Values: body.Environment.Values,
	}
	s.environments = append(s.environments, env)
	s.Counters.EnvCreates++
	writeJSON(w, http.StatusOK, map[string]any{
		"environment": map[string]string{"id": env.ID, "name": env.Name},
	})
}

func (s *Server) getEnvironment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range s.environments {
		if env.ID == r.PathValue("id") {
			writeJSON(w, http.StatusOK, map[string]any{
				"environment": map[string]any{
					"id":     env.ID,
					"name":   env.Name,
					"values": env.Values,
				},
			})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "environment not found"})
}

func (s *Server) updateEnvironment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var body struct {
		Environment struct {
			Name   string           `json:"name"`
			Values []map[string]any `json:"values"`
		} `json:"environment"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	for _, env := range s.environments {
		if env.ID == r.PathValue("id") {
			if body.Environment.Name != "" {
				env.Name = body.Environment.Name
			}
			env.Values = body.Environment.Values
			s.Counters.EnvUpdates++
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "environment not found"})
}
