// Package mapping tracks the correspondence between a source message and the
// copy a Pair produced in its destination chat, so later edits and deletes
// can be synced to the right place.
package mapping

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var mappingsBucket = []byte("message_mappings")

// Mapping is one source-message -> destination-message correspondence,
// keyed by (PairID, SourceMsgID).
type Mapping struct {
	PairID      int64     `json:"pair_id"`
	SourceMsgID int       `json:"source_msg_id"`
	DestMsgID   int       `json:"dest_msg_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is a bbolt-backed index of Mapping, grounded on the teacher's
// peersmgr.Service pattern: durable storage in one bucket, a rebuilt
// in-memory index for O(1) lookup, guarded by one RWMutex.
type Store struct {
	db *bbolt.DB

	mu    sync.RWMutex
	index map[string]Mapping // key -> Mapping
}

func NewStore(db *bbolt.DB) (*Store, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(mappingsBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("mapping: create bucket: %w", err)
	}
	s := &Store{db: db, index: map[string]Mapping{}}
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) rebuild() error {
	index := map[string]Mapping{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(mappingsBucket)
		return b.ForEach(func(k, v []byte) error {
			var m Mapping
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("mapping: decode %s: %w", k, err)
			}
			index[string(k)] = m
			return nil
		})
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
	return nil
}

// Save records that sourceMsgID in pairID was copied as destMsgID.
func (s *Store) Save(pairID int64, sourceMsgID, destMsgID int) error {
	m := Mapping{PairID: pairID, SourceMsgID: sourceMsgID, DestMsgID: destMsgID, CreatedAt: time.Now()}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("mapping: encode: %w", err)
	}
	key := mapKey(pairID, sourceMsgID)
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(mappingsBucket)
		return b.Put([]byte(key), data)
	}); err != nil {
		return fmt.Errorf("mapping: persist: %w", err)
	}
	s.mu.Lock()
	s.index[key] = m
	s.mu.Unlock()
	return nil
}

// Lookup returns the destination message id for a (pairID, sourceMsgID) pair.
func (s *Store) Lookup(pairID int64, sourceMsgID int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.index[mapKey(pairID, sourceMsgID)]
	if !ok {
		return 0, false
	}
	return m.DestMsgID, true
}

// Delete removes the mapping for (pairID, sourceMsgID), e.g. once the
// destination copy itself has been deleted.
func (s *Store) Delete(pairID int64, sourceMsgID int) error {
	key := mapKey(pairID, sourceMsgID)
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(mappingsBucket)
		return b.Delete([]byte(key))
	}); err != nil {
		return fmt.Errorf("mapping: delete: %w", err)
	}
	s.mu.Lock()
	delete(s.index, key)
	s.mu.Unlock()
	return nil
}

// PurgeForPair removes every mapping belonging to pairID. Deleting a pair
// does not call it: mappings outlive their pair until purged explicitly.
func (s *Store) PurgeForPair(pairID int64) error {
	var toDelete []string
	s.mu.RLock()
	for key, m := range s.index {
		if m.PairID == pairID {
			toDelete = append(toDelete, key)
		}
	}
	s.mu.RUnlock()
	if len(toDelete) == 0 {
		return nil
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(mappingsBucket)
		for _, key := range toDelete {
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("mapping: purge pair %d: %w", pairID, err)
	}
	s.mu.Lock()
	for _, key := range toDelete {
		delete(s.index, key)
	}
	s.mu.Unlock()
	return nil
}

func mapKey(pairID int64, sourceMsgID int) string {
	return fmt.Sprintf("%020d:%020d", pairID, sourceMsgID)
}
