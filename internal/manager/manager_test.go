package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/yomark/internal/index"
	"github.com/kalambet/yomark/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	st, err := store.New([]store.Location{{Name: "personal", Path: t.TempDir()}}, time.Second)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return New(st, index.New())
}

func createOne(t *testing.T, m *Manager) string {
	t.Helper()
	rec, err := m.Create(context.Background(), CreateParams{
		URL:             "https://go.dev/blog/errors",
		Title:           "Working with Errors",
		StorageLocation: "personal",
		Keywords:        []string{"errors"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rec.ID
}

func TestCreate_AssignsIDAndIndexes(t *testing.T) {
	m := newTestManager(t)
	id := createOne(t, m)

	if id == "" {
		t.Fatal("no ID assigned")
	}
	got, err := m.Get("", id)
	if err != nil {
		t.Fatalf("get after create: %v", err)
	}
	if got.Title != "Working with Errors" {
		t.Errorf("title = %q", got.Title)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not stamped")
	}
}

func TestCreate_InvalidRecordNotIndexed(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(context.Background(), CreateParams{
		URL:             "not-a-url",
		Title:           "Broken",
		StorageLocation: "personal",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if got := m.List("", true, ""); len(got) != 0 {
		t.Errorf("failed create leaked %d records into the index", len(got))
	}
}

func TestCreate_SharedURLIndependentRecords(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a, err := m.Create(ctx, CreateParams{URL: "https://example.com", Title: "First", StorageLocation: "personal"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Create(ctx, CreateParams{URL: "https://example.com", Title: "Second", StorageLocation: "personal"})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Fatal("two records with the same URL must get distinct IDs")
	}

	if _, err := m.SoftDelete(ctx, "personal", a.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	got, err := m.Get("personal", b.ID)
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if got.Deleted {
		t.Error("deleting one record affected its URL sibling")
	}
}

func TestUpdate_PartialAndStampsLastModified(t *testing.T) {
	m := newTestManager(t)
	id := createOne(t, m)

	desc := "How to wrap and inspect errors."
	got, err := m.Update(context.Background(), "personal", id, UpdateParams{Description: &desc})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Description != desc {
		t.Errorf("description = %q", got.Description)
	}
	if got.Title != "Working with Errors" {
		t.Errorf("unchanged field modified: title = %q", got.Title)
	}
	if got.LastModified == nil {
		t.Error("last_modified not stamped")
	}
}

func TestUpdate_NotFound(t *testing.T) {
	m := newTestManager(t)
	title := "x"
	_, err := m.Update(context.Background(), "", "missing", UpdateParams{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestDeleteLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	id := createOne(t, m)

	// Hard delete requires soft delete first.
	if err := m.HardDelete(ctx, "personal", id); !errors.Is(err, ErrNotDeleted) {
		t.Fatalf("hard delete of active record = %v, want ErrNotDeleted", err)
	}

	// Restore of an active record is rejected.
	if _, err := m.Restore(ctx, "personal", id); !errors.Is(err, ErrNotDeleted) {
		t.Fatalf("restore of active record = %v, want ErrNotDeleted", err)
	}

	if _, err := m.SoftDelete(ctx, "personal", id); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	// Double soft delete is rejected.
	if _, err := m.SoftDelete(ctx, "personal", id); !errors.Is(err, ErrAlreadyDeleted) {
		t.Fatalf("second soft delete = %v, want ErrAlreadyDeleted", err)
	}

	// Soft-deleted records are hidden from default listing, visible with the flag.
	if got := m.List("personal", false, ""); len(got) != 0 {
		t.Errorf("active list has %d records, want 0", len(got))
	}
	if got := m.List("personal", true, ""); len(got) != 1 {
		t.Errorf("include-deleted list has %d records, want 1", len(got))
	}

	// Restore brings it back.
	rec, err := m.Restore(ctx, "personal", id)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if rec.Deleted || rec.DeletedAt != nil {
		t.Errorf("restored record still flagged: %+v", rec)
	}

	// Full removal: soft then hard.
	if _, err := m.SoftDelete(ctx, "personal", id); err != nil {
		t.Fatal(err)
	}
	if err := m.HardDelete(ctx, "personal", id); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if _, err := m.Get("", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after hard delete = %v, want ErrNotFound", err)
	}
}

func TestTrackAccess(t *testing.T) {
	m := newTestManager(t)
	id := createOne(t, m)

	rec, err := m.TrackAccess(context.Background(), "personal", id)
	if err != nil {
		t.Fatalf("track access: %v", err)
	}
	if rec.LastAccessed == nil {
		t.Fatal("last_accessed not stamped")
	}
	if rec.LastModified != nil {
		t.Error("access tracking must not stamp last_modified")
	}
}

func TestRebuild_RecoversIndexFromDisk(t *testing.T) {
	st, err := store.New([]store.Location{{Name: "personal", Path: t.TempDir()}}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	m := New(st, index.New())
	id := createOne(t, m)

	// A fresh index over the same store starts empty until rebuilt.
	m2 := New(st, index.New())
	if _, err := m2.Get("", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("fresh index get = %v, want ErrNotFound", err)
	}

	if err := m2.Rebuild("personal"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if _, err := m2.Get("", id); err != nil {
		t.Errorf("get after rebuild: %v", err)
	}
}
