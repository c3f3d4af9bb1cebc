package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeOllama serves just enough of the HTTP API for EnsureReady.
type fakeOllama struct {
	models []string
	pulls  []string
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		type entry struct {
			Name string `json:"name"`
		}
		resp := struct {
			Models []entry `json:"models"`
		}{}
		for _, m := range f.models {
			resp.Models = append(resp.Models, entry{Name: m})
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.pulls = append(f.pulls, req.Name)
		f.models = append(f.models, req.Name+":latest")
		w.Write([]byte(`{"status":"success"}` + "\n"))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2}},
		})
	})
	return mux
}

func TestEnsureReady_ModelPresent(t *testing.T) {
	f := &fakeOllama{models: []string{"nomic-embed-text:latest"}}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	var out bytes.Buffer
	if err := EnsureReady(context.Background(), New(srv.URL), "nomic-embed-text", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(f.pulls) != 0 {
		t.Errorf("expected no pulls, got %v", f.pulls)
	}
	if !strings.Contains(out.String(), "ready") {
		t.Errorf("output = %q, want readiness message", out.String())
	}
}

func TestEnsureReady_PullsMissingModel(t *testing.T) {
	f := &fakeOllama{}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	var out bytes.Buffer
	if err := EnsureReady(context.Background(), New(srv.URL), "nomic-embed-text", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(f.pulls) != 1 || f.pulls[0] != "nomic-embed-text" {
		t.Errorf("pulls = %v, want the embed model pulled once", f.pulls)
	}
	if !strings.Contains(out.String(), "pulling") {
		t.Errorf("output = %q, want pull progress", out.String())
	}
}

func TestEnsureReady_NotRunning(t *testing.T) {
	err := EnsureReady(context.Background(), New("http://127.0.0.1:1"), "nomic-embed-text", &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error when Ollama is unreachable")
	}
	if !strings.Contains(err.Error(), "not running") {
		t.Errorf("error = %q, want a hint that Ollama is down", err.Error())
	}
}
