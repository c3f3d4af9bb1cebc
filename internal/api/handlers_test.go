package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kalambet/yomark/internal/index"
	"github.com/kalambet/yomark/internal/manager"
	"github.com/kalambet/yomark/internal/recall"
	"github.com/kalambet/yomark/internal/store"
)

const testToken = "test-token"

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	st, err := store.New([]store.Location{
		{Name: "personal", Path: t.TempDir()},
		{Name: "work", Path: t.TempDir()},
	}, time.Second)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	ix := index.New()
	mgr := manager.New(st, ix)
	coordinator := recall.NewCoordinator(ix, nil, recall.Options{}, []string{"personal", "work"}, "personal")

	return Deps{
		Manager:        mgr,
		Coordinator:    coordinator,
		Index:          ix,
		Store:          st,
		Token:          testToken,
		CurrentStorage: "personal",
	}
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

func createBookmark(t *testing.T, h http.Handler, title string) string {
	t.Helper()
	w := doRequest(t, h, "POST", "/bookmarks", CreateBookmarkRequest{
		URL:   "https://example.com/x",
		Title: title,
	}, testToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var rec struct {
		ID string `json:"id"`
	}
	decodeBody(t, w, &rec)
	return rec.ID
}

func TestHealth_Public(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	w := doRequest(t, h, "GET", "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without auth", w.Code)
	}

	var body map[string]any
	decodeBody(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["embedding"] != "disabled" {
		t.Errorf("embedding = %v, want disabled with no provider", body["embedding"])
	}
}

func TestAuth_Required(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	if w := doRequest(t, h, "GET", "/bookmarks", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}
	if w := doRequest(t, h, "GET", "/bookmarks", nil, "wrong-token"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", w.Code)
	}
	if w := doRequest(t, h, "GET", "/bookmarks", nil, testToken); w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", w.Code)
	}
}

func TestCreateBookmark(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	w := doRequest(t, h, "POST", "/bookmarks", CreateBookmarkRequest{
		URL:      "https://go.dev/blog/errors",
		Title:    "Working with Errors",
		Keywords: []string{"errors"},
	}, testToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var rec struct {
		ID      string `json:"id"`
		Storage string `json:"storage_location"`
	}
	decodeBody(t, w, &rec)
	if rec.ID == "" {
		t.Error("no ID in response")
	}
	if rec.Storage != "personal" {
		t.Errorf("storage = %q, want the current storage by default", rec.Storage)
	}
}

func TestCreateBookmark_ValidationError(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	w := doRequest(t, h, "POST", "/bookmarks", CreateBookmarkRequest{
		URL:   "not-absolute",
		Title: "Bad",
	}, testToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetBookmark_NotFound(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	w := doRequest(t, h, "GET", "/bookmarks/nope", nil, testToken)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestUpdateBookmark(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	id := createBookmark(t, h, "Before")

	title := "After"
	w := doRequest(t, h, "PATCH", "/bookmarks/"+id, UpdateBookmarkRequest{Title: &title}, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var rec struct {
		Title        string  `json:"title"`
		LastModified *string `json:"last_modified"`
	}
	decodeBody(t, w, &rec)
	if rec.Title != "After" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.LastModified == nil {
		t.Error("last_modified not stamped")
	}
}

func TestDeleteRestoreFlow(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	id := createBookmark(t, h, "Victim")

	// Hard delete before soft delete conflicts.
	if w := doRequest(t, h, "DELETE", "/bookmarks/"+id+"?hard=true", nil, testToken); w.Code != http.StatusConflict {
		t.Fatalf("premature hard delete: status = %d, want 409", w.Code)
	}

	if w := doRequest(t, h, "DELETE", "/bookmarks/"+id, nil, testToken); w.Code != http.StatusOK {
		t.Fatalf("soft delete: status = %d", w.Code)
	}

	// Double soft delete conflicts.
	if w := doRequest(t, h, "DELETE", "/bookmarks/"+id, nil, testToken); w.Code != http.StatusConflict {
		t.Fatalf("double soft delete: status = %d, want 409", w.Code)
	}

	if w := doRequest(t, h, "POST", "/bookmarks/"+id+"/restore", nil, testToken); w.Code != http.StatusOK {
		t.Fatalf("restore: status = %d", w.Code)
	}

	// Restore of an active record conflicts.
	if w := doRequest(t, h, "POST", "/bookmarks/"+id+"/restore", nil, testToken); w.Code != http.StatusConflict {
		t.Fatalf("restore active: status = %d, want 409", w.Code)
	}

	// Soft then hard delete removes it for good.
	doRequest(t, h, "DELETE", "/bookmarks/"+id, nil, testToken)
	if w := doRequest(t, h, "DELETE", "/bookmarks/"+id+"?hard=true", nil, testToken); w.Code != http.StatusOK {
		t.Fatalf("hard delete: status = %d", w.Code)
	}
	if w := doRequest(t, h, "GET", "/bookmarks/"+id, nil, testToken); w.Code != http.StatusNotFound {
		t.Fatalf("get after hard delete: status = %d, want 404", w.Code)
	}
}

func TestListBookmarks_Filters(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	id := createBookmark(t, h, "One")
	createBookmark(t, h, "Two")
	doRequest(t, h, "DELETE", "/bookmarks/"+id, nil, testToken)

	var result struct {
		Total int `json:"total"`
	}

	w := doRequest(t, h, "GET", "/bookmarks", nil, testToken)
	decodeBody(t, w, &result)
	if result.Total != 1 {
		t.Errorf("active total = %d, want 1", result.Total)
	}

	w = doRequest(t, h, "GET", "/bookmarks?include_deleted=true", nil, testToken)
	decodeBody(t, w, &result)
	if result.Total != 2 {
		t.Errorf("include_deleted total = %d, want 2", result.Total)
	}
}

func TestTrackAccess(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	id := createBookmark(t, h, "Visited")

	w := doRequest(t, h, "POST", "/bookmarks/"+id+"/access", nil, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var rec struct {
		LastAccessed *string `json:"last_accessed"`
	}
	decodeBody(t, w, &rec)
	if rec.LastAccessed == nil {
		t.Error("last_accessed not stamped")
	}
}

func TestRecallQuery(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	createBookmark(t, h, "Go concurrency patterns")
	createBookmark(t, h, "Sourdough notes")

	w := doRequest(t, h, "POST", "/recall/query", recall.Request{Text: "concurrency"}, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var result recall.Result
	decodeBody(t, w, &result)
	if result.Mode != recall.ModeLexical {
		t.Errorf("mode = %q, want lexical (no provider wired)", result.Mode)
	}
	if result.FallbackReason != recall.FallbackSemanticDisabled {
		t.Errorf("fallback_reason = %q", result.FallbackReason)
	}
	if result.TotalReturned != 1 {
		t.Errorf("returned %d, want 1", result.TotalReturned)
	}
}

func TestRecallQuery_InvalidInput(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	if w := doRequest(t, h, "POST", "/recall/query", recall.Request{Text: "  "}, testToken); w.Code != http.StatusBadRequest {
		t.Errorf("empty query: status = %d, want 400", w.Code)
	}
	if w := doRequest(t, h, "POST", "/recall/query", recall.Request{Text: "x", Scope: "bogus"}, testToken); w.Code != http.StatusBadRequest {
		t.Errorf("bad scope: status = %d, want 400", w.Code)
	}
}

func TestListStorages(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	createBookmark(t, h, "One")

	w := doRequest(t, h, "GET", "/storages", nil, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var result struct {
		Storages []StorageStatus `json:"storages"`
	}
	decodeBody(t, w, &result)
	if len(result.Storages) != 2 {
		t.Fatalf("storages = %d, want 2", len(result.Storages))
	}
	for _, s := range result.Storages {
		if s.Name == "personal" {
			if !s.Current {
				t.Error("personal should be marked current")
			}
			if s.Active != 1 {
				t.Errorf("personal active = %d, want 1", s.Active)
			}
		}
	}
}

func TestRebuildStorage(t *testing.T) {
	h := NewHandler(newTestDeps(t))
	createBookmark(t, h, "One")

	w := doRequest(t, h, "POST", "/storages/personal/rebuild", nil, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var result struct {
		Total int `json:"total"`
	}
	decodeBody(t, w, &result)
	if result.Total != 1 {
		t.Errorf("total = %d, want 1", result.Total)
	}

	if w := doRequest(t, h, "POST", "/storages/nope/rebuild", nil, testToken); w.Code != http.StatusNotFound {
		t.Errorf("unknown storage: status = %d, want 404", w.Code)
	}
}
