package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/galleria/backend/internal/config"
	"github.com/galleria/backend/internal/models"
)

// StoredObject is the result of persisting one binary tier.
type StoredObject struct {
	Locator  string
	Size     int64
	Checksum string
}

// ArtifactStore durably persists photo tiers under owner-scoped keys and
// returns opaque locators. Deletes are idempotent: removing a missing object
// is not an error.
type ArtifactStore interface {
	Store(ctx context.Context, key string, data []byte) (*StoredObject, error)
	Read(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
	Exists(ctx context.Context, locator string) (bool, error)
}

// NewStoredName builds a collision-resistant base filename for an upload:
// UTC timestamp plus a random fragment. The user-supplied filename only ever
// contributes the extension, never a path segment.
func NewStoredName(ext string) string {
	return fmt.Sprintf("%s_%s%s", time.Now().UTC().Format("20060102150405"), uuid.New().String()[:8], ext)
}

// ObjectKey places a tier file in the owner's namespace.
func ObjectKey(ownerID uuid.UUID, storedName string, tier models.Tier) string {
	return path.Join("photos", ownerID.String(), models.TierFileName(storedName, tier))
}

// LocalStore keeps artifacts on the local filesystem under a configured root.
type LocalStore struct {
	root string
}

func NewLocalStore(cfg *config.Config) *LocalStore {
	// ensure root exists
	_ = os.MkdirAll(cfg.LocalAssetsPath, 0o755)
	return &LocalStore{root: cfg.LocalAssetsPath}
}

func (s *LocalStore) absPath(locator string) (string, error) {
	if strings.Contains(locator, "..") {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	return filepath.Join(s.root, filepath.FromSlash(locator)), nil
}

// Store writes to a temp file, syncs, then renames into place so a crashed
// write never leaves a half-written artifact behind.
func (s *LocalStore) Store(ctx context.Context, key string, data []byte) (*StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	absPath, err := s.absPath(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, err
	}

	tmp := absPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, hasher), bytes.NewReader(data))
	if err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}

	if err := f.Sync(); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}

	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}

	return &StoredObject{
		Locator:  key,
		Size:     n,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func (s *LocalStore) Read(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	absPath, err := s.absPath(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *LocalStore) Delete(ctx context.Context, locator string) error {
	absPath, err := s.absPath(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *LocalStore) Exists(ctx context.Context, locator string) (bool, error) {
	absPath, err := s.absPath(locator)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
