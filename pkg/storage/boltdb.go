package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/fleetconf/shepherd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketComponents     = []byte("components")
	bucketConfigurations = []byte("configurations")
	bucketConfigHistory  = []byte("configurations_history")
	bucketSources        = []byte("sources")
	bucketSourceHistory  = []byte("sources_history")
	bucketSessions       = []byte("sessions")
	bucketOptions        = []byte("options")
	bucketSecrets        = []byte("secrets")
)

// optionsKey is the fixed key for the single options record.
var optionsKey = []byte("options")

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "shepherd.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketComponents,
			bucketConfigurations,
			bucketConfigHistory,
			bucketSources,
			bucketSourceHistory,
			bucketSessions,
			bucketOptions,
			bucketSecrets,
		}

		for _, bucket := range buckets {
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

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// getRecord reads and unmarshals a single record.
func getRecord[T any](s *BoltStore, bucket []byte, kind, key string) (*T, error) {
	var out T
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
		}
		return json.Unmarshal(data, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// putRecord marshals and writes a single record (upsert).
func putRecord(s *BoltStore, bucket []byte, key string, v any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

// deleteRecord removes a record, failing if it does not exist.
func deleteRecord(s *BoltStore, bucket []byte, kind, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
		}
		return b.Delete([]byte(key))
	})
}

// updateRecord runs a read-modify-write cycle inside one write transaction.
func updateRecord[T any](s *BoltStore, bucket []byte, kind, key string, fn func(*T) error) (*T, error) {
	var out T
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
		if err := fn(&out); err != nil {
			return err
		}
		updated, err := json.Marshal(&out)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), updated)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// scanRecords walks keys strictly greater than after, in key order,
// returning up to limit records and whether more remain. A limit <= 0
// means no bound.
func scanRecords[T any](s *BoltStore, bucket []byte, after string, limit int) ([]*T, bool, error) {
	var out []*T
	more := false
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		k, v := c.First()
		if after != "" {
			k, v = c.Seek([]byte(after))
			// Seek lands on after itself when present; scan is exclusive.
			if k != nil && string(k) == after {
				k, v = c.Next()
			}
		}
		for ; k != nil; k, v = c.Next() {
			if limit > 0 && len(out) == limit {
				more = true
				return nil
			}
			var rec T
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, more, nil
}

// Component operations

func (s *BoltStore) GetComponent(id string) (*types.Component, error) {
	return getRecord[types.Component](s, bucketComponents, "component", id)
}

func (s *BoltStore) PutComponent(c *types.Component) error {
	return putRecord(s, bucketComponents, c.ID, c)
}

func (s *BoltStore) UpdateComponent(id string, fn func(*types.Component) error) (*types.Component, error) {
	return updateRecord(s, bucketComponents, "component", id, fn)
}

func (s *BoltStore) DeleteComponent(id string) error {
	return deleteRecord(s, bucketComponents, "component", id)
}

func (s *BoltStore) ScanComponents(after string, limit int) ([]*types.Component, bool, error) {
	return scanRecords[types.Component](s, bucketComponents, after, limit)
}

// Configuration operations

func (s *BoltStore) GetConfiguration(name string) (*types.Configuration, error) {
	return getRecord[types.Configuration](s, bucketConfigurations, "configuration", name)
}

func (s *BoltStore) PutConfiguration(cfg *types.Configuration) error {
	return putRecord(s, bucketConfigurations, cfg.Name, cfg)
}

func (s *BoltStore) DeleteConfiguration(name string) error {
	return deleteRecord(s, bucketConfigurations, "configuration", name)
}

func (s *BoltStore) ScanConfigurations(after string, limit int) ([]*types.Configuration, bool, error) {
	return scanRecords[types.Configuration](s, bucketConfigurations, after, limit)
}

func (s *BoltStore) GetConfigurationHistory(name string) (*types.Configuration, error) {
	return getRecord[types.Configuration](s, bucketConfigHistory, "configuration history", name)
}

func (s *BoltStore) PutConfigurationHistory(cfg *types.Configuration) error {
	return putRecord(s, bucketConfigHistory, cfg.Name, cfg)
}

func (s *BoltStore) DeleteConfigurationHistory(name string) error {
	return deleteRecord(s, bucketConfigHistory, "configuration history", name)
}

// Source operations

func (s *BoltStore) GetSource(name string) (*types.Source, error) {
	return getRecord[types.Source](s, bucketSources, "source", name)
}

func (s *BoltStore) PutSource(src *types.Source) error {
	return putRecord(s, bucketSources, src.Name, src)
}

func (s *BoltStore) DeleteSource(name string) error {
	return deleteRecord(s, bucketSources, "source", name)
}

func (s *BoltStore) ScanSources(after string, limit int) ([]*types.Source, bool, error) {
	return scanRecords[types.Source](s, bucketSources, after, limit)
}

func (s *BoltStore) GetSourceHistory(name string) (*types.Source, error) {
	return getRecord[types.Source](s, bucketSourceHistory, "source history", name)
}

func (s *BoltStore) PutSourceHistory(src *types.Source) error {
	return putRecord(s, bucketSourceHistory, src.Name, src)
}

func (s *BoltStore) DeleteSourceHistory(name string) error {
	return deleteRecord(s, bucketSourceHistory, "source history", name)
}

// Session operations

func (s *BoltStore) GetSession(name string) (*types.Session, error) {
	return getRecord[types.Session](s, bucketSessions, "session", name)
}

func (s *BoltStore) PutSession(sess *types.Session) error {
	return putRecord(s, bucketSessions, sess.Name, sess)
}

// PutSessionIfAbsent writes the session only when the name is free.
func (s *BoltStore) PutSessionIfAbsent(sess *types.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b.Get([]byte(sess.Name)) != nil {
			return fmt.Errorf("session %s: %w", sess.Name, ErrExists)
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		return b.Put([]byte(sess.Name), data)
	})
}

func (s *BoltStore) UpdateSession(name string, fn func(*types.Session) error) (*types.Session, error) {
	return updateRecord(s, bucketSessions, "session", name, fn)
}

func (s *BoltStore) DeleteSession(name string) error {
	return deleteRecord(s, bucketSessions, "session", name)
}

// GetDeleteSession removes the session and returns its last value in one
// transaction.
func (s *BoltStore) GetDeleteSession(name string) (*types.Session, error) {
	var sess types.Session
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("session %s: %w", name, ErrNotFound)
		}
		if err := json.Unmarshal(data, &sess); err != nil {
			return err
		}
		return b.Delete([]byte(name))
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *BoltStore) ScanSessions(after string, limit int) ([]*types.Session, bool, error) {
	return scanRecords[types.Session](s, bucketSessions, after, limit)
}

// Options operations

func (s *BoltStore) GetOptions() (*types.Options, error) {
	var opts types.Options
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketOptions).Get(optionsKey)
		if data == nil {
			return fmt.Errorf("options: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &opts)
	})
	if err != nil {
		return nil, err
	}
	return &opts, nil
}

func (s *BoltStore) PutOptions(opts *types.Options) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(opts)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketOptions).Put(optionsKey, data)
	})
}

// Secret operations

func (s *BoltStore) GetSecret(name string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSecrets).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("secret %s: %w", name, ErrNotFound)
		}
		// Copy: bolt values are only valid inside the transaction
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BoltStore) PutSecret(name string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).Put([]byte(name), data)
	})
}

func (s *BoltStore) DeleteSecret(name string) error {
	return deleteRecord(s, bucketSecrets, "secret", name)
}
