// Package store persists deploy results to disk so history survives
// process restarts. The cache stays the hot path; this is the durable one.
package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/domain/errors"
)

const deploymentsBucket = "deployments"

// Store is a bbolt-backed deploy history, keyed "{service}/{deploy_id}".
// Identifiers sort chronologically, so a prefix cursor scan returns
// history in order.
type Store struct {
	db *bbolt.DB
}

// Open creates the parent directory if needed and opens the database. A
// short open timeout turns a locked file into an error instead of a hang.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.New(errors.CodeIoError, "store", "creating data directory", err)
	}
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.New(errors.CodeIoError, "store", "opening deploy history database", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(deploymentsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.New(errors.CodeIoError, "store", "creating deployments bucket", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put records one deploy result.
func (s *Store) Put(result deployment.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return errors.New(errors.CodeInternalError, "store", "encoding deploy result", err)
	}
	key := []byte(result.Service + "/" + result.DeployID)
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(deploymentsBucket)).Put(key, data)
	})
	if err != nil {
		return errors.New(errors.CodeIoError, "store", "writing deploy result", err)
	}
	return nil
}

// List returns the recorded results for a service, oldest first.
func (s *Store) List(service string) ([]deployment.Result, error) {
	prefix := []byte(service + "/")
	var out []deployment.Result
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(deploymentsBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var r deployment.Result
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, errors.New(errors.CodeIoError, "store", "reading deploy history", err)
	}
	return out, nil
}
