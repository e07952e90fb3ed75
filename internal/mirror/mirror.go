package mirror

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyberblades/historian/internal/config"
)

// Mirror uploads archive files to an ObjectStore, optionally sealing them.
type Mirror struct {
	store      ObjectStore
	archiveDir string
	sealKey    []byte
}

// New creates a Mirror over store. sealKey of nil disables sealing.
func New(store ObjectStore, archiveDir string, sealKey []byte) *Mirror {
	return &Mirror{store: store, archiveDir: archiveDir, sealKey: sealKey}
}

// FromConfig builds a Mirror from daemon config. Returns nil when no
// mirror store is configured.
func FromConfig(cfg config.MirrorConfig, archiveDir string) (*Mirror, error) {
	var backend ObjectStore
	switch cfg.Store {
	case "":
		return nil, nil
	case "folder":
		if cfg.Path == "" {
			return nil, fmt.Errorf("mirror store %q requires path", cfg.Store)
		}
		backend = NewFolderStore(cfg.Path)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("mirror store %q requires bucket", cfg.Store)
		}
		s3store, err := NewS3Store(context.Background(), S3Config{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 mirror: %w", err)
		}
		backend = NewRetryableStore(s3store, DefaultRetryConfig())
	default:
		return nil, fmt.Errorf("unknown mirror store %q", cfg.Store)
	}

	var key []byte
	if cfg.SealKeyHex != "" {
		k, err := hex.DecodeString(cfg.SealKeyHex)
		if err != nil {
			return nil, fmt.Errorf("decode seal key: %w", err)
		}
		if len(k) != KeySize {
			return nil, fmt.Errorf("seal key must be %d bytes, got %d", KeySize, len(k))
		}
		key = k
	}
	return New(backend, archiveDir, key), nil
}

// Upload copies one archive file into the store under archives/<rel>.
// Sealed uploads get a .sealed suffix so plain and sealed objects never
// collide under the same key.
func (m *Mirror) Upload(path string) error {
	rel, err := filepath.Rel(m.archiveDir, path)
	if err != nil {
		return fmt.Errorf("relativize archive path: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	key := ArchiveKey(filepath.ToSlash(rel))
	if m.sealKey != nil {
		sealed, err := Seal(m.sealKey, data)
		if err != nil {
			return fmt.Errorf("seal archive: %w", err)
		}
		data = sealed
		key += ".sealed"
	}
	if err := m.store.PutAtomic(key, data); err != nil {
		return fmt.Errorf("upload archive %s: %w", key, err)
	}
	return nil
}

// Fetch retrieves an archive object by key, unsealing when the mirror is
// configured with a seal key and the key carries the sealed suffix.
func (m *Mirror) Fetch(key string) ([]byte, error) {
	data, err := m.store.Get(key)
	if err != nil {
		return nil, err
	}
	if m.sealKey != nil && filepath.Ext(key) == ".sealed" {
		return Open(m.sealKey, data)
	}
	return data, nil
}

// List returns the keys of all mirrored archives.
func (m *Mirror) List() ([]string, error) {
	return m.store.List("archives")
}
