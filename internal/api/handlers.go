// Package api exposes yomark over HTTP (chi router, bearer auth) and over
// MCP for agent integrations. Handlers translate transport concerns into
// manager and recall calls; they hold no bookmark logic of their own.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/yomark/internal/index"
	"github.com/kalambet/yomark/internal/manager"
	"github.com/kalambet/yomark/internal/recall"
	"github.com/kalambet/yomark/internal/store"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP layer needs.
type Deps struct {
	Manager        *manager.Manager
	Coordinator    *recall.Coordinator
	Index          *index.Index
	Store          *store.Store
	Token          string
	CurrentStorage string
	QueryTimeout   time.Duration
	EmbedReady     func() bool // nil when semantic search is disabled
}

// NewHandler returns the yomark REST API. Everything except /health requires
// the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/recall/query", handleRecallQuery(deps))

		r.Post("/bookmarks", handleCreateBookmark(deps))
		r.Get("/bookmarks", handleListBookmarks(deps))
		r.Get("/bookmarks/{id}", handleGetBookmark(deps))
		r.Patch("/bookmarks/{id}", handleUpdateBookmark(deps))
		r.Delete("/bookmarks/{id}", handleDeleteBookmark(deps))
		r.Post("/bookmarks/{id}/restore", handleRestoreBookmark(deps))
		r.Post("/bookmarks/{id}/access", handleTrackAccess(deps))

		r.Get("/storages", handleListStorages(deps))
		r.Post("/storages/{name}/rebuild", handleRebuildStorage(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		embed := "disabled"
		if deps.EmbedReady != nil {
			if deps.EmbedReady() {
				embed = "ok"
			} else {
				embed = "unavailable"
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"embedding": embed,
		})
	}
}

func handleRecallQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req recall.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		ctx := r.Context()
		if deps.QueryTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, deps.QueryTimeout)
			defer cancel()
		}

		result, err := deps.Coordinator.Query(ctx, req)
		if err != nil {
			switch {
			case errors.Is(err, recall.ErrInvalidQuery), errors.Is(err, recall.ErrInvalidScope):
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			default:
				httpError(w, http.StatusInternalServerError, "api_error", "recall failed: %v", err)
			}
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// CreateBookmarkRequest is the POST /bookmarks body.
type CreateBookmarkRequest struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Storage     string   `json:"storage,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	FolderPath  string   `json:"folder_path,omitempty"`
}

func handleCreateBookmark(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CreateBookmarkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		storage := req.Storage
		if storage == "" {
			storage = deps.CurrentStorage
		}

		rec, err := deps.Manager.Create(r.Context(), manager.CreateParams{
			URL:             req.URL,
			Title:           req.Title,
			StorageLocation: storage,
			Keywords:        req.Keywords,
			Description:     req.Description,
			Tags:            req.Tags,
			FolderPath:      req.FolderPath,
		})
		if err != nil {
			writeManagerError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, rec)
	}
}

func handleListBookmarks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		includeDeleted := q.Get("include_deleted") == "true"

		records := deps.Manager.List(q.Get("storage"), includeDeleted, q.Get("folder"))
		writeJSON(w, http.StatusOK, map[string]any{
			"bookmarks": records,
			"total":     len(records),
		})
	}
}

func handleGetBookmark(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := deps.Manager.Get(r.URL.Query().Get("storage"), chi.URLParam(r, "id"))
		if err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// UpdateBookmarkRequest is the PATCH /bookmarks/{id} body. Absent fields are
// left unchanged.
type UpdateBookmarkRequest struct {
	Title       *string   `json:"title,omitempty"`
	URL         *string   `json:"url,omitempty"`
	Description *string   `json:"description,omitempty"`
	Keywords    *[]string `json:"keywords,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	FolderPath  *string   `json:"folder_path,omitempty"`
}

func handleUpdateBookmark(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req UpdateBookmarkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		rec, err := deps.Manager.Update(r.Context(), r.URL.Query().Get("storage"), chi.URLParam(r, "id"), manager.UpdateParams{
			Title:       req.Title,
			URL:         req.URL,
			Description: req.Description,
			Keywords:    req.Keywords,
			Tags:        req.Tags,
			FolderPath:  req.FolderPath,
		})
		if err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleDeleteBookmark(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		storage := r.URL.Query().Get("storage")

		if r.URL.Query().Get("hard") == "true" {
			if err := deps.Manager.HardDelete(r.Context(), storage, id); err != nil {
				writeManagerError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"deleted": id, "hard": true})
			return
		}

		rec, err := deps.Manager.SoftDelete(r.Context(), storage, id)
		if err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleRestoreBookmark(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := deps.Manager.Restore(r.Context(), r.URL.Query().Get("storage"), chi.URLParam(r, "id"))
		if err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleTrackAccess(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := deps.Manager.TrackAccess(r.Context(), r.URL.Query().Get("storage"), chi.URLParam(r, "id"))
		if err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// StorageStatus is one entry in the GET /storages response.
type StorageStatus struct {
	Name      string `json:"name"`
	Current   bool   `json:"current"`
	Total     int    `json:"total"`
	Active    int    `json:"active"`
	Deleted   int    `json:"deleted"`
	Errors    int    `json:"load_errors"`
	Conflicts int    `json:"conflicts"`
}

func handleListStorages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := deps.Store.Locations()
		statuses := make([]StorageStatus, 0, len(names))
		for _, name := range names {
			stats := deps.Index.StorageStats(name)
			statuses = append(statuses, StorageStatus{
				Name:      name,
				Current:   name == deps.CurrentStorage,
				Total:     stats.Total,
				Active:    stats.Active,
				Deleted:   stats.Deleted,
				Errors:    stats.Errors,
				Conflicts: stats.Conflicts,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"storages": statuses})
	}
}

func handleRebuildStorage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if !deps.Store.HasLocation(name) {
			httpError(w, http.StatusNotFound, "invalid_request_error", "unknown storage: %s", name)
			return
		}
		if err := deps.Manager.Rebuild(name); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "rebuild failed: %v", err)
			return
		}
		stats := deps.Index.StorageStats(name)
		writeJSON(w, http.StatusOK, map[string]any{
			"storage":     name,
			"total":       stats.Total,
			"load_errors": stats.Errors,
			"conflicts":   stats.Conflicts,
		})
	}
}

// writeManagerError maps domain errors onto HTTP status codes.
func writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, manager.ErrNotFound), errors.Is(err, store.ErrNotFound):
		httpError(w, http.StatusNotFound, "invalid_request_error", "%v", err)
	case errors.Is(err, manager.ErrAlreadyDeleted), errors.Is(err, manager.ErrNotDeleted):
		httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
	case errors.Is(err, store.ErrLockTimeout):
		httpError(w, http.StatusServiceUnavailable, "api_error", "%v", err)
	case errors.Is(err, store.ErrUnknownStorage):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		var corrupt *store.CorruptRecordError
		if errors.As(err, &corrupt) {
			httpError(w, http.StatusUnprocessableEntity, "api_error", "%v", err)
			return
		}
		// Validation failures from bookmark.Validate land here.
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
