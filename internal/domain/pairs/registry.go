package pairs

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"
)

var pairsBucket = []byte("pairs")

// Registry is a read-mostly, in-memory cache of Pair loaded from bbolt at
// startup and on explicit Reload. Grounded on
// internal/infra/telegram/peersmgr.Service: a bucket-backed store plus an
// in-memory index rebuilt off-lock and swapped in atomically, here extended
// with a second index (bySource, the spec's source_to_pairs) for dispatch
// lookups.
type Registry struct {
	db *bbolt.DB

	mu       sync.RWMutex
	byID     map[int64]Pair
	bySource map[int64][]int64
}

func NewRegistry(db *bbolt.DB) (*Registry, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pairsBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("pairs: create bucket: %w", err)
	}
	r := &Registry{db: db, byID: map[int64]Pair{}, bySource: map[int64][]int64{}}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads every pair from bbolt, rebuilds both indexes off-lock, and
// swaps them in under a single write-lock so readers never observe a
// half-built index.
func (r *Registry) Reload() error {
	byID := map[int64]Pair{}
	bySource := map[int64][]int64{}

	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pairsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var p Pair
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("pairs: decode pair %s: %w", k, err)
			}
			if p.Filter.Rule != nil {
				if err := p.Filter.Rule.ValidateAndCompile(); err != nil {
					return fmt.Errorf("pairs: pair %d has invalid filter rule: %w", p.ID, err)
				}
			}
			byID[p.ID] = p
			bySource[p.SourceChatID] = append(bySource[p.SourceChatID], p.ID)
			return nil
		})
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.byID = byID
	r.bySource = bySource
	r.mu.Unlock()
	return nil
}

// PairsForSource returns a copy of the pairs routed from sourceChatID.
func (r *Registry) PairsForSource(sourceChatID int64) []Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.bySource[sourceChatID]
	if len(ids) == 0 {
		return nil
	}
	out := make([]Pair, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Get returns a copy of the pair by id.
func (r *Registry) Get(id int64) (Pair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// All returns a copy of every pair, for listing.
func (r *Registry) All() []Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Pair, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	return out
}

// Put creates or replaces a pair and persists it, then reloads the indexes.
func (r *Registry) Put(p Pair) error {
	if p.Filter.Rule != nil {
		if err := p.Filter.Rule.ValidateAndCompile(); err != nil {
			return fmt.Errorf("pairs: invalid filter rule: %w", err)
		}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("pairs: encode pair: %w", err)
	}
	if err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pairsBucket)
		return b.Put(pairKey(p.ID), data)
	}); err != nil {
		return fmt.Errorf("pairs: persist pair %d: %w", p.ID, err)
	}
	return r.Reload()
}

// Delete removes a pair from the registry. Message mappings are retained
// (see DESIGN.md Open Questions) so in-flight edits/deletes can still resolve.
func (r *Registry) Delete(id int64) error {
	if err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pairsBucket)
		return b.Delete(pairKey(id))
	}); err != nil {
		return fmt.Errorf("pairs: delete pair %d: %w", id, err)
	}
	return r.Reload()
}

// UpdateCounters persists the latest counters for a pair without going
// through Put's full validate/reload path, since counters change far more
// often than configuration.
func (r *Registry) UpdateCounters(id int64, mutate func(*Counters)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("pairs: pair %d not found", id)
	}
	mutate(&p.Counters)

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("pairs: encode pair: %w", err)
	}
	if err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pairsBucket)
		return b.Put(pairKey(p.ID), data)
	}); err != nil {
		return fmt.Errorf("pairs: persist pair %d: %w", id, err)
	}

	r.byID[p.ID] = p
	return nil
}

func pairKey(id int64) []byte {
	return []byte(fmt.Sprintf("%020d", id))
}
