package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/opscart/k8s-ai-diagnostics/pkg/log"
	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

var bucketPatterns = []byte("patterns")

// BoltStore implements Store using BoltDB. Every Record call is one bolt
// transaction, so a process restart loses at most the in-flight attempt.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the pattern database under dataDir. A
// corrupt database file is moved aside and replaced with an empty one
// rather than failing startup; the learned state is lost but the agent
// keeps running and relearns.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "memory.db")

	db, err := openPatternDB(dbPath)
	if err != nil {
		logger := log.WithComponent("memory")
		logger.Warn().
			Err(err).Str("path", dbPath).Msg("pattern store unreadable, starting with empty memory")
		corrupt := dbPath + ".corrupt"
		if renameErr := os.Rename(dbPath, corrupt); renameErr != nil {
			return nil, fmt.Errorf("failed to move corrupt database aside: %w", renameErr)
		}
		db, err = openPatternDB(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to recreate database: %w", err)
		}
	}

	return &BoltStore{db: db}, nil
}

func openPatternDB(dbPath string) (*bolt.DB, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPatterns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return db, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Lookup returns the pattern for a fingerprint, if one has been recorded.
func (s *BoltStore) Lookup(fingerprint string) (types.Pattern, bool, error) {
	var pattern types.Pattern
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPatterns).Get([]byte(fingerprint))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &pattern); err != nil {
			return err
		}
		found = true
		return nil
	})
	return pattern, found, err
}

// Record folds an attempt's outcome into the fingerprint's pattern and
// persists it in one transaction.
func (s *BoltStore) Record(fingerprint string, attempt types.Attempt) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPatterns)

		var pattern types.Pattern
		if data := b.Get([]byte(fingerprint)); data != nil {
			if err := json.Unmarshal(data, &pattern); err != nil {
				// Unreadable entry: start the pattern over rather than
				// failing the record.
				pattern = types.Pattern{}
			}
		}

		pattern = apply(pattern, fingerprint, attempt)

		data, err := json.Marshal(&pattern)
		if err != nil {
			return err
		}
		return b.Put([]byte(fingerprint), data)
	})
}

// List returns all stored patterns.
func (s *BoltStore) List() ([]types.Pattern, error) {
	var patterns []types.Pattern
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPatterns).ForEach(func(k, v []byte) error {
			var pattern types.Pattern
			if err := json.Unmarshal(v, &pattern); err != nil {
				return err
			}
			patterns = append(patterns, pattern)
			return nil
		})
	})
	return patterns, err
}

// Reset clears all patterns, forcing a full relearn.
func (s *BoltStore) Reset() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketPatterns); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketPatterns)
		return err
	})
}
