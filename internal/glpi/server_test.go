package glpi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeGLPI records requests and answers them through a per-path handler.
type fakeGLPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]func(w http.ResponseWriter, req recordedRequest)
	tokens   []string
	inits    int
}

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Input  map[string]any
	Order  []string
}

func newFakeGLPI(t *testing.T) (*fakeGLPI, *httptest.Server) {
	t.Helper()
	f := &fakeGLPI{handlers: map[string]func(http.ResponseWriter, recordedRequest){}, tokens: []string{"tok-1", "tok-2", "tok-3"}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGLPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone()}
	if len(body) > 0 {
		var envelope struct {
			Input json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Input) > 0 {
			_ = json.Unmarshal(envelope.Input, &rec.Input)
			rec.Order = objectKeys(envelope.Input)
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	handler := f.handlers[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if handler != nil {
		handler(w, rec)
		return
	}
	switch r.URL.Path {
	case "/initSession":
		f.mu.Lock()
		token := f.tokens[f.inits%len(f.tokens)]
		f.inits++
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"session_token": token})
	case "/killSession":
		writeJSON(w, http.StatusOK, map[string]string{})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGLPI) handle(method, path string, fn func(w http.ResponseWriter, req recordedRequest)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method+" "+path] = fn
}

func (f *fakeGLPI) requestsTo(path string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, r := range f.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func created(id int) func(http.ResponseWriter, recordedRequest) {
	return func(w http.ResponseWriter, _ recordedRequest) {
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "message": ""})
	}
}

func respond(status int, body string) func(http.ResponseWriter, recordedRequest) {
	return func(w http.ResponseWriter, _ recordedRequest) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// objectKeys returns the keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) []string {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	if _, err := dec.Token(); err != nil {
		return nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		keys = append(keys, fmt.Sprint(tok))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	return keys
}

func connectTest(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := Connect(t.Context(), SessionConfig{
		Endpoint:    srv.URL + "/",
		Credentials: Credentials{AppToken: "app", Username: "glpi", Password: "secret"},
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return client
}

