package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/aridosvaldez/aridos/internal/identity"
)

// TokenStore persists the signed-in session between agent restarts.
type TokenStore interface {
	// Load returns nil when nothing is stored.
	Load() (*identity.Session, error)
	Save(sess *identity.Session) error
	Clear() error
}

// FileStore keeps the session as JSON in a single file readable only by the owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the stored session.
func (s *FileStore) Load() (*identity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var sess identity.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return &sess, nil
}

// Save replaces the stored session atomically.
func (s *FileStore) Save(sess *identity.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.path, data, 0o600)
}

// Clear removes the stored session. A missing file is not an error.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the same directory, fsyncs it
// and renames it over path, so readers never observe a partial token.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}

// MemoryStore keeps the session in memory only.
type MemoryStore struct {
	mu   sync.Mutex
	sess *identity.Session
}

// Load returns a copy of the stored session.
func (s *MemoryStore) Load() (*identity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, nil
	}
	sess := *s.sess
	return &sess, nil
}

// Save stores a copy of sess.
func (s *MemoryStore) Save(sess *identity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *sess
	s.sess = &c
	return nil
}

// Clear drops the stored session.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = nil
	return nil
}
