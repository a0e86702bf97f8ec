// Package docstoretest provides an in-memory document store server for tests.
package docstoretest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Server is an httptest server holding a JSON tree.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	root     map[string]any
	seq      int
	requests []string
	posts    int
	failPost int
}

// New starts a server. Call Close when done.
func New() *Server {
	s := &Server{root: map[string]any{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Set seeds the value at path.
func (s *Server) Set(path string, value any) {
	raw, _ := json.Marshal(value)
	var generic any
	_ = json.Unmarshal(raw, &generic)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(split(path), generic)
}

// Value returns the raw value at path, or nil.
func (s *Server) Value(path string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(split(path))
}

// FailPost makes the n-th POST from now answer 500. Zero disables it.
func (s *Server) FailPost(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = 0
	s.failPost = n
}

// Requests lists "METHOD path?query" lines in arrival order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, ".json") {
		http.Error(w, `{"error":"missing .json suffix"}`, http.StatusBadRequest)
		return
	}
	parts := split(strings.TrimSuffix(r.URL.Path, ".json"))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.RequestURI())

	switch r.Method {
	case http.MethodGet:
		value := s.get(parts)
		if limit := r.URL.Query().Get("limitToLast"); limit != "" {
			value = limitToLast(value, limit)
		}
		writeJSON(w, value)
	case http.MethodPut:
		var body any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
			return
		}
		s.put(parts, body)
		writeJSON(w, body)
	case http.MethodPost:
		s.posts++
		if s.failPost > 0 && s.posts == s.failPost {
			http.Error(w, `{"error":"unavailable"}`, http.StatusInternalServerError)
			return
		}
		var body any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
			return
		}
		s.seq++
		key := fmt.Sprintf("-K%06d", s.seq)
		s.put(append(parts, key), body)
		writeJSON(w, map[string]string{"name": key})
	case http.MethodDelete:
		s.put(parts, nil)
		writeJSON(w, nil)
	default:
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
	}
}

func (s *Server) get(parts []string) any {
	var cur any = s.root
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

func (s *Server) put(parts []string, value any) {
	if len(parts) == 0 {
		if m, ok := value.(map[string]any); ok {
			s.root = m
		} else {
			s.root = map[string]any{}
		}
		return
	}
	cur := s.root
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	last := parts[len(parts)-1]
	if value == nil {
		delete(cur, last)
		return
	}
	cur[last] = value
}

func limitToLast(value any, raw string) any {
	n, err := strconv.Atoi(raw)
	m, ok := value.(map[string]any)
	if err != nil || !ok || len(m) <= n {
		return value
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, n)
	for _, k := range keys[len(keys)-n:] {
		out[k] = m[k]
	}
	return out
}

func split(path string) []string {
	var out []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
