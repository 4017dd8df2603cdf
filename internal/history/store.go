// Package history persists one record per run so past results stay
// queryable from the CLI.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"smbtempest/internal/config"
	"smbtempest/internal/orchestrator"
)

const bucketRuns = "runs"

// Record is one stored run. The config is persisted with the password
// redacted.
type Record struct {
	ID        string                  `json:"id"`
	Timestamp time.Time               `json:"timestamp"`
	Config    config.RunConfig        `json:"config"`
	Outcome   orchestrator.RunOutcome `json:"outcome"`
}

type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the history database at
// <dir>/history.db. An empty dir means ~/.smbtempest.
func Open(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".smbtempest")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(filepath.Join(dir, "history.db"), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the run keyed by a time-prefixed ID so the cursor walks runs
// in chronological order.
func (s *Store) Save(cfg config.RunConfig, out orchestrator.RunOutcome) (string, error) {
	rec := Record{
		ID:        fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102T150405.000000000"), uuid.New().String()[:8]),
		Timestamp: time.Now().UTC(),
		Config:    cfg.Redacted(),
		Outcome:   out,
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ID), data)
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]Record, error) {
	var recs []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(recs) >= limit {
				break
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

// Get returns one record by ID.
func (s *Store) Get(id string) (*Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketRuns)).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("run %s not found", id)
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
