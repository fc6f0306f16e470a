// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache stores per-stage pipeline artifacts on disk, keyed by
// (date, paper id, stage). A file counts as a hit only when the manifest
// holds a matching checksum for it; a file written by a crashed run has
// no manifest row and is recomputed.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"
)

// Stage names a cached artifact.
type Stage string

const (
	StageListing     Stage = "listing"
	StagePDF         Stage = "pdf"
	StageHTML        Stage = "html"
	StageElements    Stage = "elements"
	StageMarkdown    Stage = "markdown"
	StageTitle       Stage = "title"
	StageAbstract    Stage = "abstract"
	StageTranslation Stage = "translation"
	StageTags        Stage = "tags"
)

// stageFiles maps each stage to its filename inside the paper directory.
var stageFiles = map[Stage]string{
	StageListing:     "papers.json",
	StagePDF:         "paper.pdf",
	StageHTML:        "parsed_html.json",
	StageElements:    "parsed.json",
	StageMarkdown:    "parsed_pdf.json",
	StageTitle:       "title_zh.txt",
	StageAbstract:    "abstract_zh.txt",
	StageTranslation: "translated_md.txt",
	StageTags:        "tags.json",
}

const figuresDir = "figures"

// ErrCorrupt reports a cache file whose contents do not match its manifest entry.
var ErrCorrupt = errors.New("cache entry failed verification")

// Key identifies one cached artifact. PaperID is empty for date-scoped stages.
type Key struct {
	Date    string
	PaperID string
	Stage   Stage
}

// String returns the manifest key, e.g. "2026-02-25/2502.01234/tags".
func (k Key) String() string {
	return path.Join(k.Date, k.PaperID, string(k.Stage))
}

// Entry is the manifest record written after an artifact lands on disk.
type Entry struct {
	Size      int64
	SHA256    string
	WrittenAt time.Time
}

// Manifest persists completion records for cache entries.
type Manifest interface {
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Record(ctx context.Context, key string, e Entry) error
	Forget(ctx context.Context, key string) error
}

// Store is the stage-keyed cache rooted at a data directory.
type Store struct {
	root     string
	manifest Manifest
	logger   *slog.Logger
}

// NewStore returns a Store rooted at root. When logger is nil the default logger is used.
func NewStore(root string, manifest Manifest, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, manifest: manifest, logger: logger}
}

// Root returns the data directory.
func (s *Store) Root() string {
	return s.root
}

// PaperDir returns {root}/{date}/{id}.
func (s *Store) PaperDir(date, paperID string) string {
	return filepath.Join(s.root, date, paperID)
}

// FiguresDir returns the directory holding a paper's extracted figures.
func (s *Store) FiguresDir(date, paperID string) string {
	return filepath.Join(s.PaperDir(date, paperID), figuresDir)
}

// ListingPath returns the date's cached listing file.
func (s *Store) ListingPath(date string) string {
	return s.Path(Key{Date: date, Stage: StageListing})
}

// Path returns the deterministic file path for key.
func (s *Store) Path(key Key) string {
	name, ok := stageFiles[key.Stage]
	if !ok {
		name = string(key.Stage)
	}
	if key.PaperID == "" {
		return filepath.Join(s.root, key.Date, name)
	}
	return filepath.Join(s.root, key.Date, key.PaperID, name)
}

// Verify checks the file for key against its manifest entry. It returns an
// error wrapping os.ErrNotExist when the file is absent and ErrCorrupt when
// the file is unrecorded or its checksum differs.
func (s *Store) Verify(ctx context.Context, key Key) error {
	_, err := s.read(ctx, key)
	return err
}

// Get returns the cached bytes for key. A missing, unrecorded, or corrupt
// file is a miss; corrupt files are logged so an operator can see them.
func (s *Store) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	data, err := s.read(ctx, key)
	switch {
	case err == nil:
		return data, true, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, false, nil
	case errors.Is(err, ErrCorrupt):
		s.logger.Warn("discarding unverified cache entry", "key", key.String(), "err", err)
		return nil, false, nil
	default:
		return nil, false, err
	}
}

func (s *Store) read(ctx context.Context, key Key) ([]byte, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		return nil, err
	}
	e, ok, err := s.manifest.Lookup(ctx, key.String())
	if err != nil {
		return nil, fmt.Errorf("looking up manifest for %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: no manifest entry: %w", key, ErrCorrupt)
	}
	if int64(len(data)) != e.Size || checksum(data) != e.SHA256 {
		return nil, fmt.Errorf("%s: checksum mismatch: %w", key, ErrCorrupt)
	}
	return data, nil
}

// Put writes data for key through a temporary file and records it in the
// manifest once the rename succeeds.
func (s *Store) Put(ctx context.Context, key Key, data []byte) error {
	dest := s.Path(key)
	if err := WriteFileAtomic(dest, bytes.NewReader(data)); err != nil {
		return err
	}
	return s.record(ctx, key, data)
}

// Adopt records a file that a stage wrote directly at Path(key).
func (s *Store) Adopt(ctx context.Context, key Key) error {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		return fmt.Errorf("adopting %s: %w", key, err)
	}
	return s.record(ctx, key, data)
}

func (s *Store) record(ctx context.Context, key Key, data []byte) error {
	e := Entry{
		Size:      int64(len(data)),
		SHA256:    checksum(data),
		WrittenAt: time.Now().UTC(),
	}
	if err := s.manifest.Record(ctx, key.String(), e); err != nil {
		return fmt.Errorf("recording %s: %w", key, err)
	}
	return nil
}

// Invalidate removes the file and manifest entry for key.
func (s *Store) Invalidate(ctx context.Context, key Key) error {
	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return s.manifest.Forget(ctx, key.String())
}

// GetJSON decodes the cached value for key into v. It reports whether a
// verified entry was found.
func (s *Store) GetJSON(ctx context.Context, key Key, v any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("discarding undecodable cache entry", "key", key.String(), "err", err)
		return false, nil
	}
	return true, nil
}

// PutJSON encodes v as indented JSON and stores it under key.
func (s *Store) PutJSON(ctx context.Context, key Key, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Put(ctx, key, buf.Bytes())
}

// Do returns the bytes cached under key, or computes, stores, and returns
// them. The boolean reports a cache hit.
func (s *Store) Do(ctx context.Context, key Key, compute func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return data, true, nil
	}
	data, err = compute(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := s.Put(ctx, key, data); err != nil {
		s.logger.Warn("cache write failed", "key", key.String(), "err", err)
	}
	return data, false, nil
}

// Cached returns the JSON value cached under key, or computes, stores, and
// returns it. The boolean reports a cache hit. A failed store is logged and
// the computed value is still returned.
func Cached[T any](ctx context.Context, s *Store, key Key, compute func(context.Context) (T, error)) (T, bool, error) {
	var v T
	ok, err := s.GetJSON(ctx, key, &v)
	if err != nil {
		return v, false, err
	}
	if ok {
		return v, true, nil
	}
	v, err = compute(ctx)
	if err != nil {
		return v, false, err
	}
	if err := s.PutJSON(ctx, key, v); err != nil {
		s.logger.Warn("cache write failed", "key", key.String(), "err", err)
	}
	return v, false, nil
}

// Text is Cached for plain-text artifacts.
func (s *Store) Text(ctx context.Context, key Key, compute func(context.Context) (string, error)) (string, bool, error) {
	data, hit, err := s.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		text, err := compute(ctx)
		return []byte(text), err
	})
	return string(data), hit, err
}

// WriteFileAtomic copies r to destPath through a temporary file in the same
// directory, renaming it into place on success.
func WriteFileAtomic(destPath string, r io.Reader) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, r)
	syncErr := tmpFile.Sync()
	closeErr := tmpFile.Close()
	if err := errors.Join(copyErr, syncErr, closeErr); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", destPath, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MemoryManifest is an in-process Manifest, used by tests and one-off commands.
type MemoryManifest struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryManifest returns an empty MemoryManifest.
func NewMemoryManifest() *MemoryManifest {
	return &MemoryManifest{entries: make(map[string]Entry)}
}

func (m *MemoryManifest) Lookup(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *MemoryManifest) Record(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func (m *MemoryManifest) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
