// Package state persists reading progress and format hints on this device.
package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/metcalfc/folio/internal/progress"
	"github.com/metcalfc/folio/internal/reader"
)

const (
	stateFileName = "reading_progress.json"
	hashBytes     = 8192 // First 8KB for content hash
)

// FileStore keeps progress and format hints in a JSON file keyed
// "book_<id>" and "book_format_<id>".
type FileStore struct {
	path string
	data map[string]json.RawMessage
	mu   sync.RWMutex
}

// NewFileStore creates or loads state from dir, or from StateDir when dir
// is empty. An unreadable file is not fatal; the store starts empty.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = StateDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}

	store := &FileStore{
		path: filepath.Join(dir, stateFileName),
		data: make(map[string]json.RawMessage),
	}
	if err := store.load(); err != nil {
		store.data = make(map[string]json.RawMessage)
	}
	return store, nil
}

// StateDir returns XDG_STATE_HOME/folio or ~/.local/state/folio
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "folio")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "folio")
}

// ComputeHash generates content hash for file identity
func ComputeHash(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, hashBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}

	hash := sha256.Sum256(buf[:n])
	return hex.EncodeToString(hash[:16]), nil // First 16 bytes = 32 hex chars
}

// BookIDFromHash derives a positive book id from a content hash, for books
// opened from disk without a catalog id.
func BookIDFromHash(hash string) (int64, error) {
	if len(hash) < 15 {
		return 0, fmt.Errorf("state: hash %q too short", hash)
	}
	id, err := strconv.ParseInt(hash[:15], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("state: %w", err)
	}
	if id == 0 {
		id = 1
	}
	return id, nil
}

// BookIDForFile is ComputeHash followed by BookIDFromHash.
func BookIDForFile(filename string) (int64, error) {
	hash, err := ComputeHash(filename)
	if err != nil {
		return 0, err
	}
	return BookIDFromHash(hash)
}

func progressKey(bookID int64) string { return "book_" + strconv.FormatInt(bookID, 10) }
func formatKey(bookID int64) string   { return "book_format_" + strconv.FormatInt(bookID, 10) }

// LoadProgress returns the saved progress for bookID.
func (s *FileStore) LoadProgress(_ context.Context, bookID int64) (progress.Progress, bool, error) {
	s.mu.RLock()
	raw, ok := s.data[progressKey(bookID)]
	s.mu.RUnlock()
	if !ok {
		return progress.Progress{}, false, nil
	}
	var p progress.Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return progress.Progress{}, false, fmt.Errorf("state: decode %s: %w", progressKey(bookID), err)
	}
	return p, true, nil
}

// SaveProgress stores p, replacing any previous record for the book.
func (s *FileStore) SaveProgress(_ context.Context, p progress.Progress) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[progressKey(p.BookID)] = raw
	return s.save()
}

// BookFormat returns the persisted format hint, FormatUnknown when none.
func (s *FileStore) BookFormat(_ context.Context, bookID int64) (reader.Format, error) {
	s.mu.RLock()
	raw, ok := s.data[formatKey(bookID)]
	s.mu.RUnlock()
	if !ok {
		return reader.FormatUnknown, nil
	}
	var f reader.Format
	if err := json.Unmarshal(raw, &f); err != nil {
		return reader.FormatUnknown, fmt.Errorf("state: decode %s: %w", formatKey(bookID), err)
	}
	return f, nil
}

// SetBookFormat persists the format hint for bookID.
func (s *FileStore) SetBookFormat(_ context.Context, bookID int64, f reader.Format) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[formatKey(bookID)] = raw
	return s.save()
}

// Clear removes saved progress for the book. The format hint is kept.
func (s *FileStore) Clear(_ context.Context, bookID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, progressKey(bookID))
	return s.save()
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.data)
}

func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	return nil
}
