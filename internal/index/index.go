// Package index keeps an in-memory, queryable view of bookmark records,
// derived from the store. The on-disk write is always the source of truth;
// the index is updated only after a write commits.
package index

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/yomark/internal/bookmark"
	"github.com/kalambet/yomark/internal/store"
)

// Index maps (storage location, record ID) to the current record. It is an
// explicitly owned component with its own lifecycle: Rebuild repopulates a
// location wholesale, Upsert/Remove maintain it incrementally after store
// writes. Multiple instances can coexist.
type Index struct {
	mu sync.RWMutex

	// records[storage][id] = record
	records map[string]map[string]*bookmark.Bookmark
	// folders[storage][folderPath][id] = struct{}, so folder-filtered
	// queries touch only their candidate set.
	folders map[string]map[string]map[string]struct{}

	loadErrors map[string][]string
	conflicts  map[string][]string
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		records:    make(map[string]map[string]*bookmark.Bookmark),
		folders:    make(map[string]map[string]map[string]struct{}),
		loadErrors: make(map[string][]string),
		conflicts:  make(map[string][]string),
	}
}

// Rebuild replaces the in-memory view of one storage location with the
// result of a store scan. Duplicate record IDs are resolved last-writer-wins
// by modification timestamp; the loser is recorded as a conflict. Rebuilding
// twice from the same scan yields the same view.
func (ix *Index) Rebuild(result *store.ScanResult) {
	byID := make(map[string]*bookmark.Bookmark, len(result.Records))
	var conflicts []string
	for _, rec := range result.Records {
		existing, ok := byID[rec.ID]
		if !ok {
			byID[rec.ID] = rec
			continue
		}
		msg := fmt.Sprintf("duplicate bookmark id %s in storage %s", rec.ID, result.Storage)
		conflicts = append(conflicts, msg)
		slog.Warn("index conflict", "storage", result.Storage, "id", rec.ID)
		if rec.Timestamp().After(existing.Timestamp()) || rec.Timestamp().Equal(existing.Timestamp()) {
			byID[rec.ID] = rec
		}
	}

	errs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, e.Err.Error())
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.records[result.Storage] = byID
	ix.folders[result.Storage] = buildFolderIndex(byID)
	ix.loadErrors[result.Storage] = errs
	ix.conflicts[result.Storage] = conflicts
}

func buildFolderIndex(byID map[string]*bookmark.Bookmark) map[string]map[string]struct{} {
	folders := make(map[string]map[string]struct{})
	for id, rec := range byID {
		addFolder(folders, rec.FolderPath, id)
	}
	return folders
}

func addFolder(folders map[string]map[string]struct{}, folder, id string) {
	ids, ok := folders[folder]
	if !ok {
		ids = make(map[string]struct{})
		folders[folder] = ids
	}
	ids[id] = struct{}{}
}

// Upsert records a committed write. Only the component that just completed
// the store write may call this. The record is validated again; if it is
// inconsistent the index drops it from view rather than serving partial data.
func (ix *Index) Upsert(rec *bookmark.Bookmark) {
	if err := rec.Validate(); err != nil {
		slog.Error("dropping inconsistent record from index", "id", rec.ID, "error", err)
		ix.Remove(rec.StorageLocation, rec.ID)
		return
	}
	rec = rec.Clone()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	byID, ok := ix.records[rec.StorageLocation]
	if !ok {
		byID = make(map[string]*bookmark.Bookmark)
		ix.records[rec.StorageLocation] = byID
		ix.folders[rec.StorageLocation] = make(map[string]map[string]struct{})
	}

	if old, ok := byID[rec.ID]; ok && old.FolderPath != rec.FolderPath {
		delete(ix.folders[rec.StorageLocation][old.FolderPath], rec.ID)
	}
	byID[rec.ID] = rec
	addFolder(ix.folders[rec.StorageLocation], rec.FolderPath, rec.ID)
}

// Remove drops a record from the view after a hard delete committed.
func (ix *Index) Remove(storage, id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	byID, ok := ix.records[storage]
	if !ok {
		return
	}
	if rec, ok := byID[id]; ok {
		delete(ix.folders[storage][rec.FolderPath], id)
		delete(byID, id)
	}
}

// Query returns the candidate set for recall: records from one storage
// location (or all, when storage is empty), optionally including soft-deleted
// records, optionally restricted to one folder path. Returned records are
// clones; callers may not reach indexed state through them.
func (ix *Index) Query(storage string, includeDeleted bool, folder string) []*bookmark.Bookmark {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []*bookmark.Bookmark
	collect := func(storageName string, byID map[string]*bookmark.Bookmark) {
		if folder != "" {
			// Walk only the folder's candidate set, not the whole location.
			for id := range ix.folders[storageName][folder] {
				if rec := byID[id]; rec != nil && (includeDeleted || !rec.Deleted) {
					out = append(out, rec.Clone())
				}
			}
			return
		}
		for _, rec := range byID {
			if includeDeleted || !rec.Deleted {
				out = append(out, rec.Clone())
			}
		}
	}

	if storage != "" {
		collect(storage, ix.records[storage])
		return out
	}
	for name, byID := range ix.records {
		collect(name, byID)
	}
	return out
}

// Get returns a clone of one record, searching all locations when storage is
// empty. Second result is false when the record is not indexed.
func (ix *Index) Get(storage, id string) (*bookmark.Bookmark, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if storage != "" {
		if rec, ok := ix.records[storage][id]; ok {
			return rec.Clone(), true
		}
		return nil, false
	}
	for _, byID := range ix.records {
		if rec, ok := byID[id]; ok {
			return rec.Clone(), true
		}
	}
	return nil, false
}

// Stats summarizes one storage location's indexed state.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Deleted   int `json:"deleted"`
	Errors    int `json:"errors"`
	Conflicts int `json:"conflicts"`
}

// StorageStats returns counters for one storage location.
func (ix *Index) StorageStats(storage string) Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	st := Stats{
		Errors:    len(ix.loadErrors[storage]),
		Conflicts: len(ix.conflicts[storage]),
	}
	for _, rec := range ix.records[storage] {
		st.Total++
		if rec.Deleted {
			st.Deleted++
		} else {
			st.Active++
		}
	}
	return st
}

// Conflicts returns recorded duplicate-ID conflicts across all locations.
func (ix *Index) Conflicts() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []string
	for storage, msgs := range ix.conflicts {
		for _, m := range msgs {
			out = append(out, "["+storage+"] "+m)
		}
	}
	return out
}
