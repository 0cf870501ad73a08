// Package boltstore opens the single bbolt file backing every persisted
// domain store (pairs, mappings, settings, error log) and owns the buckets
// that are too small to warrant their own package: settings and the error
// log. The pattern — bbolt.Open with a short timeout, bucket-per-concern,
// small JSON-encoded values — is lifted from the teacher's
// internal/infra/telegram/peersmgr.Service.
package boltstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const dbOpenTimeout = time.Second
const dbFileMode os.FileMode = 0o600

// Open creates the parent directory if needed and opens the bbolt database
// at path. Callers share the returned handle across PairRegistry,
// MappingStore, SettingsStore and ErrorLog — bbolt tolerates one writer at a
// time internally, so a single *bbolt.DB per process is the right grain.
func Open(path string) (*bbolt.DB, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("boltstore: ensure dir %q: %w", dir, err)
		}
	}
	db, err := bbolt.Open(path, dbFileMode, &bbolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open db: %w", err)
	}
	return db, nil
}
