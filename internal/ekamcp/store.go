package ekamcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TokenStore persists a TokenRecord snapshot. Persistence is best-effort:
// the auth manager treats a failed Save as a warning and a failed Load as an
// absent record.
type TokenStore interface {
	Load(ctx context.Context) (*TokenRecord, error)
	Save(ctx context.Context, record *TokenRecord) error
	Clear(ctx context.Context) error
}

// FileTokenStore keeps the token record as a JSON file with 0600 permissions.
type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Load reads the persisted record. A missing file yields (nil, nil).
func (s *FileTokenStore) Load(_ context.Context) (*TokenRecord, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}

	// Security: enforce strict permissions
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("token file %s must have 0600 permissions", s.path)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var record TokenRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	if record.AccessToken == "" {
		return nil, errors.New("token file missing access_token")
	}

	return &record, nil
}

// Save writes the record atomically: the JSON is written to a temp file in
// the same directory and renamed over the destination, so a concurrent
// reader never observes a partially-written file.
func (s *FileTokenStore) Save(_ context.Context, record *TokenRecord) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(defaultFilePerm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp token file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp token file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

// Clear removes the persisted record. A missing file is not an error.
func (s *FileTokenStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
