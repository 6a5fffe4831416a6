package store

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/homelabforge/tidewatch/internal/model"
)

// GetOrCreateRestartState returns the restart-supervisor state for a
// container, creating a fresh (disabled) row if none exists yet.
func (s *Store) GetOrCreateRestartState(containerID int64) (*model.RestartState, error) {
	st, err := s.GetRestartState(containerID)
	if err != nil {
		return nil, err
	}
	if st != nil {
		return st, nil
	}
	st = &model.RestartState{ContainerID: containerID, MaxAttempts: 5}
	if err := s.SaveRestartState(st); err != nil {
		return nil, err
	}
	return st, nil
}

// GetRestartState returns the restart state for a container, or nil.
func (s *Store) GetRestartState(containerID int64) (*model.RestartState, error) {
	var st *model.RestartState
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRestartState).Get(itob(containerID))
		if v == nil {
			return nil
		}
		st = &model.RestartState{}
		return json.Unmarshal(v, st)
	})
	return st, err
}

// SaveRestartState upserts a container's restart state.
func (s *Store) SaveRestartState(st *model.RestartState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRestartState).Put(itob(st.ContainerID), data)
	})
}

// ListRestartStates returns every tracked restart state, used by the
// supervisor's hourly Cleanup to find containers whose backoff can be reset.
func (s *Store) ListRestartStates() ([]*model.RestartState, error) {
	var out []*model.RestartState
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRestartState).ForEach(func(_, v []byte) error {
			st := &model.RestartState{}
			if err := json.Unmarshal(v, st); err != nil {
				return nil
			}
			out = append(out, st)
			return nil
		})
	})
	return out, err
}
