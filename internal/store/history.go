package store

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/homelabforge/tidewatch/internal/model"
)

// historyKey orders rows first by container (for cascade/prefix scans) then
// chronologically within the container, using a fixed-width composite key
// so lexical byte ordering matches numeric ordering.
func historyKey(containerID, id int64) []byte {
	return []byte(fmt.Sprintf("%020d|%020d", containerID, id))
}

// SaveHistory inserts (ID==0) or updates an UpdateHistory row.
func (s *Store) SaveHistory(h *model.UpdateHistory) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		if h.ID == 0 {
			id, _ := b.NextSequence()
			h.ID = int64(id)
		}
		data, err := json.Marshal(h)
		if err != nil {
			return err
		}
		return b.Put(historyKey(h.ContainerID, h.ID), data)
	})
}

// GetHistory returns a single history row; containerID must be known since
// rows are keyed by container for cheap prefix scans.
func (s *Store) GetHistory(containerID, id int64) (*model.UpdateHistory, error) {
	var h *model.UpdateHistory
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHistory).Get(historyKey(containerID, id))
		if v == nil {
			return nil
		}
		h = &model.UpdateHistory{}
		return json.Unmarshal(v, h)
	})
	return h, err
}

// ListHistoryByContainer returns all history rows for a container, oldest
// first (key order).
func (s *Store) ListHistoryByContainer(containerID int64) ([]*model.UpdateHistory, error) {
	var out []*model.UpdateHistory
	prefix := []byte(fmt.Sprintf("%020d|", containerID))
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			h := &model.UpdateHistory{}
			if err := json.Unmarshal(v, h); err != nil {
				continue
			}
			out = append(out, h)
		}
		return nil
	})
	return out, err
}

// ListHistory returns every history row across all containers.
func (s *Store) ListHistory() ([]*model.UpdateHistory, error) {
	var out []*model.UpdateHistory
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHistory).ForEach(func(_, v []byte) error {
			h := &model.UpdateHistory{}
			if err := json.Unmarshal(v, h); err != nil {
				return nil
			}
			out = append(out, h)
			return nil
		})
	})
	return out, err
}

// InProgressHistoryFor returns the in_progress UpdateHistory row for a
// container if one exists, implementing the "at most one in-flight apply
// per container" concurrency guard.
func (s *Store) InProgressHistoryFor(containerID int64) (*model.UpdateHistory, error) {
	rows, err := s.ListHistoryByContainer(containerID)
	if err != nil {
		return nil, err
	}
	for _, h := range rows {
		if h.Status == model.HistoryInProgress {
			return h, nil
		}
	}
	return nil, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
