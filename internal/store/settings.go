package store

import (
	bolt "go.etcd.io/bbolt"
)

// GetSetting returns a raw setting value by key, or "" if unset. Settings
// are stored as plain strings; callers parse into the type they expect
// (bool, duration, cron expression) the way the runtime config loader does.
func (s *Store) GetSetting(key string) (string, error) {
	var val string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSettings).Get([]byte(key))
		if v != nil {
			val = string(v)
		}
		return nil
	})
	return val, err
}

// SetSetting persists a raw setting value.
func (s *Store) SetSetting(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(key), []byte(value))
	})
}

// DeleteSetting resets a setting back to its compiled-in default by
// removing its override row.
func (s *Store) DeleteSetting(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Delete([]byte(key))
	})
}

// AllSettings returns every persisted setting override.
func (s *Store) AllSettings() (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}
