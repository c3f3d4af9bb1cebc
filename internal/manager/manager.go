// Package manager implements bookmark CRUD on top of the store and index,
// enforcing the write discipline: the on-disk write commits first, then the
// index is updated — never the other way around.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/yomark/internal/bookmark"
	"github.com/kalambet/yomark/internal/index"
	"github.com/kalambet/yomark/internal/store"
)

var (
	// ErrNotFound is returned when no bookmark with the given ID is indexed.
	ErrNotFound = errors.New("bookmark not found")
	// ErrAlreadyDeleted is returned when soft-deleting a deleted bookmark.
	ErrAlreadyDeleted = errors.New("bookmark already deleted")
	// ErrNotDeleted guards restore and hard delete: both require the
	// bookmark to be soft-deleted first.
	ErrNotDeleted = errors.New("bookmark is not deleted")
)

// Manager owns bookmark lifecycle operations.
type Manager struct {
	store *store.Store
	index *index.Index
}

// New creates a Manager over the given store and index.
func New(st *store.Store, ix *index.Index) *Manager {
	return &Manager{store: st, index: ix}
}

// CreateParams carries the caller-supplied fields for a new bookmark.
type CreateParams struct {
	URL             string
	Title           string
	StorageLocation string
	Keywords        []string
	Description     string
	Tags            []string
	FolderPath      string
	FaviconPath     string
	ScreenshotPath  string
}

// Create validates and persists a new bookmark, then indexes it.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*bookmark.Bookmark, error) {
	rec := &bookmark.Bookmark{
		ID:              uuid.New().String(),
		URL:             p.URL,
		Title:           p.Title,
		Keywords:        p.Keywords,
		Description:     p.Description,
		Tags:            p.Tags,
		FolderPath:      p.FolderPath,
		FaviconPath:     p.FaviconPath,
		ScreenshotPath:  p.ScreenshotPath,
		CreatedAt:       time.Now().UTC(),
		StorageLocation: p.StorageLocation,
	}
	rec.Normalize()

	if err := m.commit(ctx, rec); err != nil {
		return nil, err
	}
	slog.Info("created bookmark", "id", rec.ID, "title", rec.Title, "storage", rec.StorageLocation)
	return rec, nil
}

// Get returns a bookmark by ID, searching all storage locations when
// storage is empty.
func (m *Manager) Get(storage, id string) (*bookmark.Bookmark, error) {
	rec, ok := m.index.Get(storage, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// UpdateParams carries optional field updates; nil pointers leave the field
// unchanged.
type UpdateParams struct {
	Title       *string
	URL         *string
	Description *string
	Keywords    *[]string
	Tags        *[]string
	FolderPath  *string
}

// Update applies the given field changes and stamps LastModified.
func (m *Manager) Update(ctx context.Context, storage, id string, p UpdateParams) (*bookmark.Bookmark, error) {
	rec, err := m.Get(storage, id)
	if err != nil {
		return nil, err
	}

	if p.Title != nil {
		rec.Title = *p.Title
	}
	if p.URL != nil {
		rec.URL = *p.URL
	}
	if p.Description != nil {
		rec.Description = *p.Description
	}
	if p.Keywords != nil {
		rec.Keywords = *p.Keywords
	}
	if p.Tags != nil {
		rec.Tags = *p.Tags
	}
	if p.FolderPath != nil {
		rec.FolderPath = *p.FolderPath
	}
	now := time.Now().UTC()
	rec.LastModified = &now
	rec.Normalize()

	if err := m.commit(ctx, rec); err != nil {
		return nil, err
	}
	slog.Info("updated bookmark", "id", rec.ID)
	return rec, nil
}

// SoftDelete marks a bookmark deleted. It remains on disk and queryable
// through the include-deleted scope.
func (m *Manager) SoftDelete(ctx context.Context, storage, id string) (*bookmark.Bookmark, error) {
	rec, err := m.Get(storage, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDeleted, id)
	}

	now := time.Now().UTC()
	rec.Deleted = true
	rec.DeletedAt = &now

	if err := m.commit(ctx, rec); err != nil {
		return nil, err
	}
	slog.Info("soft deleted bookmark", "id", rec.ID)
	return rec, nil
}

// Restore clears the deleted flag on a soft-deleted bookmark.
func (m *Manager) Restore(ctx context.Context, storage, id string) (*bookmark.Bookmark, error) {
	rec, err := m.Get(storage, id)
	if err != nil {
		return nil, err
	}
	if !rec.Deleted {
		return nil, fmt.Errorf("%w: %s", ErrNotDeleted, id)
	}

	rec.Deleted = false
	rec.DeletedAt = nil

	if err := m.commit(ctx, rec); err != nil {
		return nil, err
	}
	slog.Info("restored bookmark", "id", rec.ID)
	return rec, nil
}

// HardDelete permanently removes a bookmark's file and assets. The bookmark
// must be soft-deleted first; the extra step guards against accidental data
// loss.
func (m *Manager) HardDelete(ctx context.Context, storage, id string) error {
	rec, err := m.Get(storage, id)
	if err != nil {
		return err
	}
	if !rec.Deleted {
		return fmt.Errorf("%w: %s must be soft-deleted before hard delete", ErrNotDeleted, id)
	}

	if _, err := m.store.Delete(ctx, rec.StorageLocation, rec.ID, true); err != nil {
		return err
	}
	m.index.Remove(rec.StorageLocation, rec.ID)
	slog.Warn("hard deleted bookmark", "id", rec.ID)
	return nil
}

// TrackAccess stamps LastAccessed on a bookmark.
func (m *Manager) TrackAccess(ctx context.Context, storage, id string) (*bookmark.Bookmark, error) {
	rec, err := m.Get(storage, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec.LastAccessed = &now

	if err := m.commit(ctx, rec); err != nil {
		return nil, err
	}
	slog.Debug("tracked access", "id", rec.ID)
	return rec, nil
}

// List returns bookmarks matching the filters. Empty storage means all
// locations.
func (m *Manager) List(storage string, includeDeleted bool, folder string) []*bookmark.Bookmark {
	return m.index.Query(storage, includeDeleted, folder)
}

// Rebuild rescans one storage location from disk and replaces its index
// view. Exposed so external-change watchers can refresh after out-of-band
// edits.
func (m *Manager) Rebuild(storage string) error {
	result, err := m.store.Scan(storage)
	if err != nil {
		return fmt.Errorf("rebuilding index for %s: %w", storage, err)
	}
	m.index.Rebuild(result)
	return nil
}

// commit writes the record to disk, then mirrors it into the index. If the
// write fails the index is untouched; the disk is the source of truth.
func (m *Manager) commit(ctx context.Context, rec *bookmark.Bookmark) error {
	if err := m.store.Write(ctx, rec); err != nil {
		return err
	}
	m.index.Upsert(rec)
	return nil
}
