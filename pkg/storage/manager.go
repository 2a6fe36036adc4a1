// Package storage lays mirrored media out on disk and guarantees that a
// partially written file is never mistaken for a completed download.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Manager handles media file placement under a work-id-addressed layout:
// <root>/<creatorID>/<workID>_p<page><ext> for pages and
// <root>/<creatorID>/<workID>_ugoira.zip for animation archives.
type Manager struct {
	root string

	mu    sync.RWMutex
	known map[string]bool
}

// NewManager creates the root directory if needed.
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create works directory: %w", err)
	}
	return &Manager{
		root:  root,
		known: make(map[string]bool),
	}, nil
}

// Root returns the base works directory.
func (m *Manager) Root() string {
	return m.root
}

// PagePath returns the destination for one page of a work. The extension is
// taken from the source URL; page index and variant come from the caller.
func (m *Manager) PagePath(creatorID, workID uint64, page int, sourceURL string) string {
	ext := extFromURL(sourceURL)
	name := fmt.Sprintf("%d_p%d%s", workID, page, ext)
	return filepath.Join(m.root, fmt.Sprintf("%d", creatorID), name)
}

// UgoiraPath returns the destination for a work's animation archive.
func (m *Manager) UgoiraPath(creatorID, workID uint64) string {
	return filepath.Join(m.root, fmt.Sprintf("%d", creatorID), fmt.Sprintf("%d_ugoira.zip", workID))
}

// Exists reports whether a completed file is already present at path.
func (m *Manager) Exists(path string) bool {
	m.mu.RLock()
	cached := m.known[path]
	m.mu.RUnlock()
	if cached {
		return true
	}

	if _, err := os.Stat(path); err != nil {
		return false
	}
	m.mu.Lock()
	m.known[path] = true
	m.mu.Unlock()
	return true
}

// Save writes the reader's content to path via a temporary file and an
// atomic rename, so readers never observe a half-written download.
func (m *Manager) Save(r io.Reader, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, copyErr := io.Copy(out, r)
	closeErr := out.Close()

	if copyErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write media data: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize file: %w", err)
	}

	m.mu.Lock()
	m.known[path] = true
	m.mu.Unlock()
	return nil
}

func extFromURL(sourceURL string) string {
	base := sourceURL
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".bin"
	}
	return ext
}
