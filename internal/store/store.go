package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/phishdash/internal/results"
)

var (
	bucketSelections = []byte("selections")
	bucketSnapshots  = []byte("snapshots")
)

// BoltStore keeps selections and the last results snapshot per workspace
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSelections, bucketSnapshots} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// LoadSelection returns the saved selection of a workspace, or nil
func (s *BoltStore) LoadSelection(workspaceID string) (*results.Selection, error) {
	var sel *results.Selection
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSelections).Get([]byte(workspaceID))
		if data == nil {
			return nil
		}
		sel = results.NewSelection()
		if err := json.Unmarshal(data, sel); err != nil {
			return fmt.Errorf("failed to unmarshal selection: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sel, nil
}

// SaveSelection stores the selection of a workspace
func (s *BoltStore) SaveSelection(workspaceID string, sel *results.Selection) error {
	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("failed to marshal selection: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSelections).Put([]byte(workspaceID), data)
	})
}

// LoadSnapshot returns the last stored fetch of a workspace, or nil
func (s *BoltStore) LoadSnapshot(workspaceID string) (*results.Snapshot, error) {
	var snap *results.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(workspaceID))
		if data == nil {
			return nil
		}
		snap = &results.Snapshot{}
		if err := json.Unmarshal(data, snap); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// SaveSnapshot stores the last fetch of a workspace, replacing the previous one
func (s *BoltStore) SaveSnapshot(workspaceID string, snap *results.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(workspaceID), data)
	})
}

// Forget removes everything stored for a workspace
func (s *BoltStore) Forget(workspaceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSelections, bucketSnapshots} {
			if err := tx.Bucket(bucket).Delete([]byte(workspaceID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Workspaces lists workspaces that have a stored selection or snapshot
func (s *BoltStore) Workspaces() ([]string, error) {
	seen := make(map[string]struct{})
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSelections, bucketSnapshots} {
			err := tx.Bucket(bucket).ForEach(func(k, _ []byte) error {
				seen[string(k)] = struct{}{}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// DB returns the underlying database for components sharing the file
func (s *BoltStore) DB() *bolt.DB {
	return s.db
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
