package sink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/serp-harvest/pkg/normalize"
	bolt "go.etcd.io/bbolt"
)

// BoltStore keeps records in a bbolt file, one bucket per query, keyed by
// record identity. Writing a record again replaces it.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Put stores records under bucket query.
func (s *BoltStore) Put(query string, records []normalize.ResultRecord) error {
	if query == "" {
		return fmt.Errorf("bucket name must not be empty")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(query))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		for _, r := range records {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal record %s: %w", r.Key, err)
			}
			if err := b.Put([]byte(r.Key), data); err != nil {
				return fmt.Errorf("put record %s: %w", r.Key, err)
			}
		}
		return nil
	})
}

// Get returns the records stored for query, ordered by key.
func (s *BoltStore) Get(query string) ([]normalize.ResultRecord, error) {
	var out []normalize.ResultRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(query))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var r normalize.ResultRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

// Queries returns the stored bucket names.
func (s *BoltStore) Queries() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			out = append(out, string(name))
			return nil
		})
	})
	return out, err
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
