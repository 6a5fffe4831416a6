package store

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/homelabforge/tidewatch/internal/model"
)

// SaveScanJob inserts (ID==0) or updates a PendingScanJob row.
func (s *Store) SaveScanJob(j *model.PendingScanJob) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketScanJobs)
		if j.ID == 0 {
			id, _ := b.NextSequence()
			j.ID = int64(id)
		}
		data, err := json.Marshal(j)
		if err != nil {
			return err
		}
		return b.Put(itob(j.ID), data)
	})
}

// GetScanJob returns a scan job by ID, or nil.
func (s *Store) GetScanJob(id int64) (*model.PendingScanJob, error) {
	var j *model.PendingScanJob
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketScanJobs).Get(itob(id))
		if v == nil {
			return nil
		}
		j = &model.PendingScanJob{}
		return json.Unmarshal(v, j)
	})
	return j, err
}

// ListScanJobs returns every scan job.
func (s *Store) ListScanJobs() ([]*model.PendingScanJob, error) {
	var out []*model.PendingScanJob
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScanJobs).ForEach(func(_, v []byte) error {
			j := &model.PendingScanJob{}
			if err := json.Unmarshal(v, j); err != nil {
				return nil
			}
			out = append(out, j)
			return nil
		})
	})
	return out, err
}

// ListActiveScanJobs returns non-terminal scan jobs, used both for the
// metrics gauge and for crash-recovery resumption on startup.
func (s *Store) ListActiveScanJobs() ([]*model.PendingScanJob, error) {
	all, err := s.ListScanJobs()
	if err != nil {
		return nil, err
	}
	var out []*model.PendingScanJob
	for _, j := range all {
		if j.Status.IsActive() {
			out = append(out, j)
		}
	}
	return out, nil
}

// DeleteScanJob removes a scan job row.
func (s *Store) DeleteScanJob(id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScanJobs).Delete(itob(id))
	})
}
