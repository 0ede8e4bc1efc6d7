// Package clienttest provides an in-memory storage backend speaking the same
// REST dialect as the real one, for tests.
package clienttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/dotcommander/scribe/internal/wire"
)

// Backend is a fake storage backend. New documents get a Mongo style _id.
type Backend struct {
	Server *httptest.Server
	Token  string

	mu         sync.Mutex
	projects   map[string]wire.Project
	characters map[string]wire.Character
	chapters   map[string]wire.Chapter
	rawRels    map[string]string
	failures   map[string]int
	nextID     int

	requests atomic.Int64
}

// NewBackend starts a backend accepting the bearer token
func NewBackend(token string) *Backend {
	b := &Backend{
		Token:      token,
		projects:   make(map[string]wire.Project),
		characters: make(map[string]wire.Character),
		chapters:   make(map[string]wire.Chapter),
		rawRels:    make(map[string]string),
		failures:   make(map[string]int),
	}
	b.Server = httptest.NewServer(b.router())
	return b
}

// URL is the base URL of the server
func (b *Backend) URL() string { return b.Server.URL }

// Close shuts the server down
func (b *Backend) Close() { b.Server.Close() }

// Requests counts authenticated and unauthenticated requests alike
func (b *Backend) Requests() int64 { return b.requests.Load() }

// PutProject seeds a project
func (b *Backend) PutProject(p wire.Project) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.projects[p.Identity()] = p
}

// PutCharacter seeds a character
func (b *Backend) PutCharacter(c wire.Character) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.characters[c.Identity()] = c
}

// PutChapter seeds a chapter
func (b *Backend) PutChapter(c wire.Chapter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chapters[c.Identity()] = c
}

// StringifyRelationships makes the backend serve the relationships of the
// character as the given raw JSON value instead of an array
func (b *Backend) StringifyRelationships(characterID, raw string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rawRels[characterID] = raw
}

// FailNext makes the next n requests with the given method answer with a 500
func (b *Backend) FailNext(method string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method] = n
}

// Character returns the stored character
func (b *Backend) Character(id string) (wire.Character, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.characters[id]
	return c, ok
}

// Chapter returns the stored chapter
func (b *Backend) Chapter(id string) (wire.Chapter, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chapters[id]
	return c, ok
}

// Project returns the stored project
func (b *Backend) Project(id string) (wire.Project, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.projects[id]
	return p, ok
}

func (b *Backend) router() http.Handler {
	r := chi.NewRouter()
	r.Use(b.count, b.requireToken, b.injectFailures)

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", b.listProjects)
		r.Post("/", b.createProject)
		r.Get("/{id}", b.getProject)
		r.Put("/{id}", b.updateProject)
		r.Delete("/{id}", b.deleteProject)
	})
	r.Route("/characters", func(r chi.Router) {
		r.Get("/", b.listCharacters)
		r.Post("/", b.createCharacter)
		r.Put("/{id}", b.updateCharacter)
		r.Delete("/{id}", b.deleteCharacter)
	})
	r.Route("/chapters", func(r chi.Router) {
		r.Get("/", b.listChapters)
		r.Post("/", b.createChapter)
		r.Put("/reorder", b.reorderChapters)
		r.Put("/{id}", b.updateChapter)
		r.Delete("/{id}", b.deleteChapter)
	})
	return r
}

func (b *Backend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+b.Token {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		fail := b.failures[r.Method] > 0
		if fail {
			b.failures[r.Method]--
		}
		b.mu.Unlock()
		if fail {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) newID() string {
	b.nextID++
	return fmt.Sprintf("%024x", b.nextID)
}

func (b *Backend) listProjects(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	out := make([]wire.Project, 0, len(b.projects))
	for _, p := range b.projects {
		out = append(out, p)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identity() < out[j].Identity() })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createProject(w http.ResponseWriter, r *http.Request) {
	var p wire.Project
	if !readJSON(w, r, &p) {
		return
	}
	b.mu.Lock()
	if p.ID == "" {
		p.MongoID = b.newID()
	}
	b.projects[p.Identity()] = p
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, p)
}

func (b *Backend) getProject(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	p, ok := b.projects[chi.URLParam(r, "id")]
	b.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) updateProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p wire.Project
	if !readJSON(w, r, &p) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.projects[id]; !ok {
		http.NotFound(w, r)
		return
	}
	p.ID = id
	b.projects[id] = p
	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) deleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.projects[id]; !ok {
		http.NotFound(w, r)
		return
	}
	delete(b.projects, id)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) listCharacters(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")

	b.mu.Lock()
	var out []json.RawMessage
	for _, c := range b.sortedCharacters(projectID) {
		data, _ := json.Marshal(c)
		if raw, ok := b.rawRels[c.Identity()]; ok {
			var m map[string]json.RawMessage
			_ = json.Unmarshal(data, &m)
			m["relationships"] = json.RawMessage(raw)
			data, _ = json.Marshal(m)
		}
		out = append(out, data)
	}
	b.mu.Unlock()

	if out == nil {
		out = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) sortedCharacters(projectID string) []wire.Character {
	var out []wire.Character
	for _, c := range b.characters {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity() < out[j].Identity() })
	return out
}

func (b *Backend) createCharacter(w http.ResponseWriter, r *http.Request) {
	var c wire.Character
	if !readJSON(w, r, &c) {
		return
	}
	b.mu.Lock()
	if c.ID == "" {
		c.MongoID = b.newID()
	}
	b.characters[c.Identity()] = c
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, c)
}

func (b *Backend) updateCharacter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var c wire.Character
	if !readJSON(w, r, &c) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.characters[id]; !ok {
		http.NotFound(w, r)
		return
	}
	c.ID = id
	b.characters[id] = c
	writeJSON(w, http.StatusOK, c)
}

func (b *Backend) deleteCharacter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.characters[id]; !ok {
		http.NotFound(w, r)
		return
	}
	delete(b.characters, id)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) listChapters(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	b.mu.Lock()
	out := []wire.Chapter{}
	for _, c := range b.chapters {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identity() < out[j].Identity() })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createChapter(w http.ResponseWriter, r *http.Request) {
	var c wire.Chapter
	if !readJSON(w, r, &c) {
		return
	}
	b.mu.Lock()
	if c.ID == "" {
		c.MongoID = b.newID()
	}
	b.chapters[c.Identity()] = c
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, c)
}

func (b *Backend) updateChapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var c wire.Chapter
	if !readJSON(w, r, &c) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.chapters[id]; !ok {
		http.NotFound(w, r)
		return
	}
	c.ID = id
	b.chapters[id] = c
	writeJSON(w, http.StatusOK, c)
}

func (b *Backend) deleteChapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.chapters[id]; !ok {
		http.NotFound(w, r)
		return
	}
	delete(b.chapters, id)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) reorderChapters(w http.ResponseWriter, r *http.Request) {
	var req wire.ReorderRequest
	if !readJSON(w, r, &req) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, id := range req.ChapterIDs {
		c, ok := b.chapters[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		c.Order = i
		b.chapters[id] = c
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
