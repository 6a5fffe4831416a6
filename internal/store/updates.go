package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	bolt "go.etcd.io/bbolt"

	"github.com/homelabforge/tidewatch/internal/model"
)

func indexKey(containerID int64, from, to string) []byte {
	return []byte(fmt.Sprintf("%020d|%s|%s", containerID, from, to))
}

// SaveUpdate inserts (ID==0) or updates an Update row.
//
// Insertion of a new active update (status in Pending/Approved/PendingRetry)
// is guarded by bucketUpdateIndex inside the same bolt transaction: bolt
// serializes writers, so a read-then-write on the index key is race-free
// and enforces "at most one active update per container+from+to" without a
// real unique index.
func (s *Store) SaveUpdate(u *model.Update) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ub := tx.Bucket(bucketUpdates)
		ib := tx.Bucket(bucketUpdateIndex)

		if u.ID == 0 {
			key := indexKey(u.ContainerID, u.FromTag, u.ToTag)
			if u.Status.IsActive() {
				if existing := ib.Get(key); existing != nil {
					return fmt.Errorf("active update already exists for container %d %s->%s", u.ContainerID, u.FromTag, u.ToTag)
				}
			}
			id, _ := ub.NextSequence()
			u.ID = int64(id)
			if u.Status.IsActive() {
				if err := ib.Put(key, itob(u.ID)); err != nil {
					return err
				}
			}
		} else {
			key := indexKey(u.ContainerID, u.FromTag, u.ToTag)
			if u.Status.IsActive() {
				ib.Put(key, itob(u.ID))
			} else {
				ib.Delete(key)
			}
		}

		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return ub.Put(itob(u.ID), data)
	})
}

// GetUpdate returns an update by ID, or nil if not found.
func (s *Store) GetUpdate(id int64) (*model.Update, error) {
	var u *model.Update
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUpdates).Get(itob(id))
		if v == nil {
			return nil
		}
		u = &model.Update{}
		return json.Unmarshal(v, u)
	})
	return u, err
}

// ListUpdates returns all updates.
func (s *Store) ListUpdates() ([]*model.Update, error) {
	var out []*model.Update
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUpdates).ForEach(func(_, v []byte) error {
			u := &model.Update{}
			if err := json.Unmarshal(v, u); err != nil {
				return nil
			}
			out = append(out, u)
			return nil
		})
	})
	return out, err
}

// ListUpdatesByContainer returns all updates belonging to a container.
func (s *Store) ListUpdatesByContainer(containerID int64) ([]*model.Update, error) {
	all, err := s.ListUpdates()
	if err != nil {
		return nil, err
	}
	var out []*model.Update
	for _, u := range all {
		if u.ContainerID == containerID {
			out = append(out, u)
		}
	}
	return out, nil
}

// ListUpdatesByStatus returns all updates with the given status.
func (s *Store) ListUpdatesByStatus(status model.UpdateStatus) ([]*model.Update, error) {
	all, err := s.ListUpdates()
	if err != nil {
		return nil, err
	}
	var out []*model.Update
	for _, u := range all {
		if u.Status == status {
			out = append(out, u)
		}
	}
	return out, nil
}

// ActiveUpdateFor returns the active (pending/approved/pending_retry) update
// for a container+from+to combination, or nil if none exists.
func (s *Store) ActiveUpdateFor(containerID int64, from, to string) (*model.Update, error) {
	var id int64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUpdateIndex).Get(indexKey(containerID, from, to))
		if v == nil {
			return nil
		}
		id, _ = strconv.ParseInt(string(v), 10, 64)
		return nil
	})
	if err != nil || id == 0 {
		return nil, err
	}
	return s.GetUpdate(id)
}

// DeleteUpdate removes an update row and its index entry.
func (s *Store) DeleteUpdate(id int64) error {
	u, err := s.GetUpdate(id)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if u != nil {
			tx.Bucket(bucketUpdateIndex).Delete(indexKey(u.ContainerID, u.FromTag, u.ToTag))
		}
		return tx.Bucket(bucketUpdates).Delete(itob(id))
	})
}
