// Package mirror copies session archives to object storage so a machine
// loss cannot take the play history with it.
package mirror

import (
	"errors"
	"path"
)

// ObjectStore is the backend contract for the archive mirror.
type ObjectStore interface {
	List(prefix string) ([]string, error)
	Get(key string) ([]byte, error)
	PutAtomic(key string, data []byte) error
}

// ArchiveKey returns the store key for an archive file, keyed by the
// player/filename layout the archive directory uses.
func ArchiveKey(relPath string) string {
	return path.Join("archives", relPath)
}

var ErrNotFound = errors.New("object not found")
