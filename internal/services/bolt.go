package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/MegaGrindStone/legal-web-ui/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the Journal interface using a BoltDB backend. It keeps the most recent completion
// records, never message content, so operators can inspect failures after the fact.
type BoltDB struct {
	db    *bolt.DB
	limit int
}

var recordsBucket = []byte("completions")

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with the required bucket and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist. When limit is positive, older
// records are pruned so that at most limit records are kept.
func NewBoltDB(path string, limit int) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create bucket: %w", err)
	}

	return BoltDB{db: db, limit: limit}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func sequenceKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Record stores a completion record under the next sequence number and prunes the oldest records
// beyond the configured limit.
func (b BoltDB) Record(_ context.Context, record models.CompletionRecord) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(recordsBucket)

		seq, err := bk.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		v, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if err := bk.Put(sequenceKey(seq), v); err != nil {
			return fmt.Errorf("failed to put record: %w", err)
		}

		if b.limit <= 0 {
			return nil
		}
		c := bk.Cursor()
		count := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		var stale [][]byte
		for k, _ := c.First(); k != nil && len(stale) < count-b.limit; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := bk.Delete(k); err != nil {
				return fmt.Errorf("failed to prune record: %w", err)
			}
		}
		return nil
	})
}

// Records returns up to limit stored records, newest first. A non-positive limit returns all of them.
func (b BoltDB) Records(_ context.Context, limit int) ([]models.CompletionRecord, error) {
	var records []models.CompletionRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var record models.CompletionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
