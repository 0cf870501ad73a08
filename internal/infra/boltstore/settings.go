package boltstore

import (
	"fmt"

	"go.etcd.io/bbolt"
)

var settingsBucket = []byte("settings")

// SettingsKeyPaused is read by every worker-pool iteration before it admits
// a send; "true" suspends all sending without dropping queued work.
const SettingsKeyPaused = "system_paused"

// SettingsStore is a small string->string KV table over the shared bbolt
// file, grounded on the teacher's notifications/store.go persisted-state
// idiom but simplified: settings are few and written rarely, so each call is
// its own bbolt transaction rather than a debounced background flush.
type SettingsStore struct {
	db *bbolt.DB
}

func NewSettingsStore(db *bbolt.DB) (*SettingsStore, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("boltstore: create settings bucket: %w", err)
	}
	return &SettingsStore{db: db}, nil
}

// Get returns the stored value for key, or def if the key is unset.
func (s *SettingsStore) Get(key, def string) string {
	var value string
	_ = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(settingsBucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	if value == "" {
		return def
	}
	return value
}

// Set persists key=value.
func (s *SettingsStore) Set(key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(settingsBucket)
		if b == nil {
			return fmt.Errorf("boltstore: settings bucket missing")
		}
		return b.Put([]byte(key), []byte(value))
	})
}

// Paused reports whether system_paused is currently "true".
func (s *SettingsStore) Paused() bool {
	return s.Get(SettingsKeyPaused, "false") == "true"
}

// SetPaused sets or clears system_paused.
func (s *SettingsStore) SetPaused(paused bool) error {
	if paused {
		return s.Set(SettingsKeyPaused, "true")
	}
	return s.Set(SettingsKeyPaused, "false")
}
