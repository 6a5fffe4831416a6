// Package store persists TideWatch's entities in a single-file
// embedded BoltDB database, one bucket per entity plus a handful of
// infrastructure buckets (secondary index, settings, tag cache).
package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/homelabforge/tidewatch/internal/model"
)

var (
	bucketContainers = []byte("containers")
	bucketUpdates = []byte("updates")
	bucketUpdateIndex = []byte("update_index") // "containerID|from|to" -> update ID, active only
	bucketHistory = []byte("update_history")
	bucketRestartState = []byte("restart_state")
	bucketScanJobs = []byte("pending_scan_jobs")
	bucketSettings = []byte("settings")
	bucketTagCache = []byte("tag_cache")
	bucketRateLimits = []byte("rate_limits")
)

var allBuckets = [][]byte{
	bucketContainers, bucketUpdates, bucketUpdateIndex, bucketHistory,
	bucketRestartState, bucketScanJobs, bucketSettings, bucketTagCache,
	bucketRateLimits,
}

// Store wraps a BoltDB database for TideWatch persistence.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a BoltDB database at path and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func itob(id int64) []byte {
	return []byte(fmt.Sprintf("%020d", id))
}

// SaveContainer inserts (ID==0) or updates a Container, returning its ID.
func (s *Store) SaveContainer(c *model.Container) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContainers)
		if c.ID == 0 {
			id, _ := b.NextSequence()
			c.ID = int64(id)
		}
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return b.Put(itob(c.ID), data)
	})
}

// GetContainer returns a container by ID, or nil if not found.
func (s *Store) GetContainer(id int64) (*model.Container, error) {
	var c *model.Container
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketContainers).Get(itob(id))
		if v == nil {
			return nil
		}
		c = &model.Container{}
		return json.Unmarshal(v, c)
	})
	return c, err
}

// GetContainerByName returns a container by its unique name, or nil if not found.
func (s *Store) GetContainerByName(name string) (*model.Container, error) {
	all, err := s.ListContainers()
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, nil
}

// ListContainers returns all containers.
func (s *Store) ListContainers() ([]*model.Container, error) {
	var out []*model.Container
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).ForEach(func(_, v []byte) error {
			c := &model.Container{}
			if err := json.Unmarshal(v, c); err != nil {
				return nil // skip malformed rows rather than fail the whole listing
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}

// DeleteContainer removes a container and cascades to its owned rows
// (Update, UpdateHistory, RestartState) per ownership rules.
func (s *Store) DeleteContainer(id int64) error {
	updates, err := s.ListUpdatesByContainer(id)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketContainers).Delete(itob(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketRestartState).Delete(itob(id)); err != nil {
			return err
		}
		ub := tx.Bucket(bucketUpdates)
		hb := tx.Bucket(bucketHistory)
		ib := tx.Bucket(bucketUpdateIndex)
		for _, u := range updates {
			if err := ub.Delete(itob(u.ID)); err != nil {
				return err
			}
			ib.Delete(indexKey(u.ContainerID, u.FromTag, u.ToTag))
		}
		c := hb.Cursor()
		prefix := []byte(fmt.Sprintf("%020d|", id))
		for k, _ := c.Seek(prefix); k != nil; k, _ = c.Next() {
			if len(k) < len(prefix) || string(k[:len(prefix)]) != string(prefix) {
				break
			}
			if err := hb.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
