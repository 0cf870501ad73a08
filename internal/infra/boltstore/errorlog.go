package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var errorLogBucket = []byte("error_log")

// ErrorRecord is one terminal failure surfaced by the worker pool,
// grounded on the teacher's notifications.FailedRecord shape.
type ErrorRecord struct {
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	PairID   int64     `json:"pair_id,omitempty"`
	BotIndex int       `json:"bot_index,omitempty"`
	At       time.Time `json:"at"`
}

// ErrorLog is an append-only diagnostic trail, one bbolt bucket keyed by a
// monotonic sequence number so iteration naturally yields insertion order.
type ErrorLog struct {
	db *bbolt.DB
}

func NewErrorLog(db *bbolt.DB) (*ErrorLog, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(errorLogBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("boltstore: create error_log bucket: %w", err)
	}
	return &ErrorLog{db: db}, nil
}

// Append records rec under the next sequence key.
func (l *ErrorLog) Append(rec ErrorRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("boltstore: encode error record: %w", err)
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(errorLogBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// Recent returns up to limit most recently appended records, newest first.
func (l *ErrorLog) Recent(limit int) ([]ErrorRecord, error) {
	var out []ErrorRecord
	err := l.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(errorLogBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var rec ErrorRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func seqKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}
