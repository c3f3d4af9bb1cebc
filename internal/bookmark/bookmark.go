// Package bookmark defines the bookmark record model shared by the store,
// index, and recall layers.
package bookmark

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MaxKeywords is the hard cap on keywords per bookmark. Order encodes
// priority: index 0 is the highest-priority keyword.
const MaxKeywords = 4

// MaxTitleLen caps title length at write time.
const MaxTitleLen = 500

// MaxDescriptionLen caps description length at write time.
const MaxDescriptionLen = 5000

// Bookmark is a single bookmark record, the unit of storage and indexing.
// One record maps to one YAML file on disk. Two records may share a URL;
// only ID is identity.
type Bookmark struct {
	ID       string   `yaml:"id" json:"id"`
	URL      string   `yaml:"url" json:"url"`
	Title    string   `yaml:"title" json:"title"`
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`

	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	FolderPath  string   `yaml:"folder_path,omitempty" json:"folder_path,omitempty"`

	CreatedAt    time.Time  `yaml:"created_at" json:"created_at"`
	LastModified *time.Time `yaml:"last_modified,omitempty" json:"last_modified,omitempty"`
	LastAccessed *time.Time `yaml:"last_accessed,omitempty" json:"last_accessed,omitempty"`

	Deleted   bool       `yaml:"deleted" json:"deleted"`
	DeletedAt *time.Time `yaml:"deleted_at,omitempty" json:"deleted_at,omitempty"`

	FaviconPath    string `yaml:"favicon_path,omitempty" json:"favicon_path,omitempty"`
	ScreenshotPath string `yaml:"screenshot_path,omitempty" json:"screenshot_path,omitempty"`

	StorageLocation string `yaml:"storage_location" json:"storage_location"`
}

// Normalize trims whitespace from text fields and drops empty keywords/tags.
// Call before Validate.
func (b *Bookmark) Normalize() {
	b.Title = strings.TrimSpace(b.Title)
	b.Description = strings.TrimSpace(b.Description)
	b.FolderPath = strings.TrimSpace(b.FolderPath)
	b.Keywords = cleanList(b.Keywords)
	b.Tags = cleanList(b.Tags)
}

func cleanList(items []string) []string {
	out := items[:0]
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Validate checks the record invariants enforced at write time.
func (b *Bookmark) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("bookmark: missing id")
	}
	if b.StorageLocation == "" {
		return fmt.Errorf("bookmark %s: missing storage_location", b.ID)
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("bookmark %s: title cannot be empty", b.ID)
	}
	if len(b.Title) > MaxTitleLen {
		return fmt.Errorf("bookmark %s: title exceeds %d characters", b.ID, MaxTitleLen)
	}
	if len(b.Description) > MaxDescriptionLen {
		return fmt.Errorf("bookmark %s: description exceeds %d characters", b.ID, MaxDescriptionLen)
	}
	if len(b.Keywords) > MaxKeywords {
		return fmt.Errorf("bookmark %s: maximum %d keywords allowed, got %d", b.ID, MaxKeywords, len(b.Keywords))
	}
	if err := validateURL(b.URL); err != nil {
		return fmt.Errorf("bookmark %s: %w", b.ID, err)
	}
	if err := validateFolderPath(b.FolderPath); err != nil {
		return fmt.Errorf("bookmark %s: %w", b.ID, err)
	}
	if b.CreatedAt.IsZero() {
		return fmt.Errorf("bookmark %s: missing created_at", b.ID)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("missing url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url must be absolute: %q", raw)
	}
	return nil
}

// validateFolderPath rejects directory traversal in user-supplied folder paths.
func validateFolderPath(p string) error {
	if p == "" {
		return nil
	}
	if strings.Contains(p, "..") || strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return fmt.Errorf("folder path cannot contain '..' or start with a path separator: %q", p)
	}
	return nil
}

// EmbeddingText builds the text representation used for semantic embedding.
// Any edit to these fields changes the text, and therefore the content hash
// that keys the embedding cache.
func (b *Bookmark) EmbeddingText() string {
	return strings.Join([]string{
		b.Title,
		b.URL,
		b.Description,
		strings.Join(b.Keywords, " "),
		strings.Join(b.Tags, " "),
	}, "\n")
}

// Clone returns a deep copy. The index hands out clones so callers can never
// mutate indexed state in place.
func (b *Bookmark) Clone() *Bookmark {
	c := *b
	if b.Keywords != nil {
		c.Keywords = append([]string(nil), b.Keywords...)
	}
	if b.Tags != nil {
		c.Tags = append([]string(nil), b.Tags...)
	}
	if b.LastModified != nil {
		t := *b.LastModified
		c.LastModified = &t
	}
	if b.LastAccessed != nil {
		t := *b.LastAccessed
		c.LastAccessed = &t
	}
	if b.DeletedAt != nil {
		t := *b.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// Timestamp returns the best available modification timestamp, used for
// last-writer-wins conflict resolution during index rebuild.
func (b *Bookmark) Timestamp() time.Time {
	if b.LastModified != nil {
		return b.LastModified.UTC()
	}
	return b.CreatedAt.UTC()
}
