// Package store owns the authoritative on-disk representation of bookmark
// records: one YAML file per record under a storage location, written
// atomically behind a per-record scoped lock.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/yomark/internal/bookmark"
)

// ErrNotFound is returned when a requested record file does not exist.
var ErrNotFound = errors.New("record not found")

// ErrUnknownStorage is returned for operations against an unconfigured
// storage location.
var ErrUnknownStorage = errors.New("unknown storage location")

// CorruptRecordError reports a record file whose content does not parse or
// is missing required fields. Scans recover from it per file; it never
// aborts a broader operation.
type CorruptRecordError struct {
	Path string
	Err  error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt record %s: %v", e.Path, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

// Location is a named partition of the bookmark collection, backed by a
// directory on disk.
type Location struct {
	Name string
	Path string
}

// Store persists bookmark records as individual YAML files. All mutations to
// a single record are serialized through the Locker; writes replace the file
// atomically so readers never observe partial content.
type Store struct {
	locations map[string]Location
	locker    *Locker
}

// New creates a Store over the given locations and ensures each one has the
// expected directory layout (bookmarks/, favicons/, screenshots/).
func New(locations []Location, lockTimeout time.Duration) (*Store, error) {
	s := &Store{
		locations: make(map[string]Location, len(locations)),
		locker:    NewLocker(lockTimeout),
	}
	for _, loc := range locations {
		if loc.Name == "" || loc.Path == "" {
			return nil, fmt.Errorf("storage location needs both name and path: %+v", loc)
		}
		if err := ensureLayout(loc.Path); err != nil {
			return nil, fmt.Errorf("initializing storage %s: %w", loc.Name, err)
		}
		s.locations[loc.Name] = loc
	}
	return s, nil
}

func ensureLayout(root string) error {
	for _, dir := range []string{"bookmarks", "favicons", "screenshots"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return fmt.Errorf("creating %s directory: %w", dir, err)
		}
	}
	return nil
}

// Locations returns the configured storage location names, sorted.
func (s *Store) Locations() []string {
	names := make([]string, 0, len(s.locations))
	for name := range s.locations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasLocation reports whether name is a configured storage location.
func (s *Store) HasLocation(name string) bool {
	_, ok := s.locations[name]
	return ok
}

func (s *Store) recordPath(storage, id string) (string, error) {
	loc, ok := s.locations[storage]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownStorage, storage)
	}
	return filepath.Join(loc.Path, "bookmarks", id+".yaml"), nil
}

// Write serializes rec and atomically replaces its file, holding the
// per-record lock for the duration. The lock is released on every exit path,
// including serialization failure.
func (s *Store) Write(ctx context.Context, rec *bookmark.Bookmark) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	path, err := s.recordPath(rec.StorageLocation, rec.ID)
	if err != nil {
		return err
	}

	lock, err := s.locker.Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer lock.Release()

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serializing record %s: %w", rec.ID, err)
	}

	return atomicWrite(path, data)
}

// atomicWrite writes data to a temp file next to path and renames it into
// place, so a concurrent reader sees either the old or the new content.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Read loads and validates a single record. Missing files map to ErrNotFound;
// unparseable or invalid content maps to *CorruptRecordError.
func (s *Store) Read(storage, id string) (*bookmark.Bookmark, error) {
	path, err := s.recordPath(storage, id)
	if err != nil {
		return nil, err
	}
	return readRecordFile(path)
}

func readRecordFile(path string) (*bookmark.Bookmark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var rec bookmark.Bookmark
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, &CorruptRecordError{Path: path, Err: err}
	}
	if err := rec.Validate(); err != nil {
		return nil, &CorruptRecordError{Path: path, Err: err}
	}
	return &rec, nil
}

// ScanError pairs a failed record file with its error.
type ScanError struct {
	Path string
	Err  error
}

// ScanResult is the outcome of scanning one storage location. Corrupt files
// land in Errors; they never abort the scan.
type ScanResult struct {
	Storage string
	Records []*bookmark.Bookmark
	Errors  []ScanError
}

// Scan loads every record file under the storage location. Individual file
// failures are reported in the result and logged; the scan always completes.
// Each call re-reads the directory, so Scan is restartable.
func (s *Store) Scan(storage string) (*ScanResult, error) {
	loc, ok := s.locations[storage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStorage, storage)
	}

	dir := filepath.Join(loc.Path, "bookmarks")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScanResult{Storage: storage}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	result := &ScanResult{Storage: storage}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		rec, err := readRecordFile(path)
		if err != nil {
			slog.Warn("skipping unreadable record", "path", path, "error", err)
			result.Errors = append(result.Errors, ScanError{Path: path, Err: err})
			continue
		}
		result.Records = append(result.Records, rec)
	}

	slog.Info("scanned storage",
		"storage", storage,
		"records", len(result.Records),
		"errors", len(result.Errors))
	return result, nil
}

// Delete removes a record. Soft mode marks the record deleted and rewrites
// its file; hard mode removes the record file and any favicon/screenshot
// assets it references, and cannot be undone.
func (s *Store) Delete(ctx context.Context, storage, id string, hard bool) (*bookmark.Bookmark, error) {
	rec, err := s.Read(storage, id)
	if err != nil {
		return nil, err
	}

	if !hard {
		now := time.Now().UTC()
		rec.Deleted = true
		rec.DeletedAt = &now
		if err := s.Write(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	path, err := s.recordPath(storage, id)
	if err != nil {
		return nil, err
	}
	lock, err := s.locker.Acquire(ctx, path)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing record file %s: %w", path, err)
	}
	s.removeAssets(storage, rec)
	return rec, nil
}

// removeAssets deletes favicon/screenshot files referenced by rec. Best
// effort: a missing or undeletable asset is logged, not an error.
func (s *Store) removeAssets(storage string, rec *bookmark.Bookmark) {
	loc := s.locations[storage]
	for _, rel := range []string{rec.FaviconPath, rec.ScreenshotPath} {
		if rel == "" {
			continue
		}
		path := filepath.Join(loc.Path, filepath.Clean(rel))
		if !strings.HasPrefix(path, filepath.Clean(loc.Path)+string(filepath.Separator)) {
			slog.Warn("asset path escapes storage root, skipping", "path", rel)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("could not remove asset", "path", path, "error", err)
		}
	}
}
