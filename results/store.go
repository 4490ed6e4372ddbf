// Package results persists evaluation metrics in a local bbolt file, one
// record per (model, dataset) pair.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

var bucketMetrics = []byte("metrics")

// ErrNotFound is returned by Get for an unknown (model, dataset) pair
var ErrNotFound = errors.New("result not found")

// Record is one stored evaluation
type Record struct {
	Model     string             `json:"model"`
	Dataset   string             `json:"dataset"`
	Metrics   map[string]float64 `json:"metrics"`
	CreatedAt time.Time          `json:"created_at"`
}

// Store wraps the metrics database
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens or creates the database at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open results db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMetrics); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketMetrics, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func key(model, dataset string) []byte {
	return []byte(model + "\x00" + dataset)
}

// Put stores metrics for (model, dataset), replacing any earlier record
func (s *Store) Put(model, dataset string, metrics map[string]float64) (Record, error) {
	if model == "" || dataset == "" || strings.ContainsRune(model+dataset, 0) {
		return Record{}, fmt.Errorf("invalid result key %q/%q", model, dataset)
	}
	rec := Record{
		Model:     model,
		Dataset:   dataset,
		Metrics:   metrics,
		CreatedAt: s.now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetrics).Put(key(model, dataset), data)
	})
	return rec, err
}

// Get returns the record for (model, dataset)
func (s *Store) Get(model, dataset string) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMetrics).Get(key(model, dataset))
		if data == nil {
			return fmt.Errorf("%w: %s on %s", ErrNotFound, model, dataset)
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

// List returns every record ordered by model then dataset. An empty model
// returns all models.
func (s *Store) List(model string) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketMetrics).Cursor()
		var prefix []byte
		if model != "" {
			prefix = []byte(model + "\x00")
		}
		k, v := c.First()
		if prefix != nil {
			k, v = c.Seek(prefix)
		}
		for ; k != nil; k, v = c.Next() {
			if prefix != nil && !strings.HasPrefix(string(k), string(prefix)) {
				break
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode %q: %w", k, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Delete removes the record for (model, dataset); deleting a missing record is not an error
func (s *Store) Delete(model, dataset string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetrics).Delete(key(model, dataset))
	})
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
