// internal/sessionstore/sessionstore.go
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileStore keeps the authenticated session as a JSON document on disk. The
// file holds live session cookies and is written with owner-only permissions.
type FileStore struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

var _ schemas.SessionStore = (*FileStore)(nil)

// New returns a store backed by path. The file is not touched until the
// first Save or Load.
func New(path string, logger *zap.Logger) *FileStore {
	return &FileStore{path: path, logger: logger.Named("sessionstore")}
}

// Path is the backing file location.
func (s *FileStore) Path() string { return s.path }

// Save replaces the stored session. The write goes to a temporary file that
// is renamed into place so a crash never leaves a truncated document.
func (s *FileStore) Save(ctx context.Context, session schemas.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict session file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to move session into place: %w", err)
	}

	s.logger.Info("Session saved", zap.String("path", s.path), zap.Int("cookies", len(session.Cookies)))
	return nil
}

// Load returns the stored session, or nil when none exists. A corrupt file
// is reported as an error and left in place for inspection.
func (s *FileStore) Load(ctx context.Context) (*schemas.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session schemas.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session at %s: %w", s.path, err)
	}
	if len(session.Cookies) == 0 {
		return nil, nil
	}
	return &session, nil
}

// Clear removes the stored session. Clearing an absent session is not an error.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	s.logger.Debug("Session cleared", zap.String("path", s.path))
	return nil
}
