// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store persists build plans in a bolt database so that sessions
// can be listed and inspected after the build that created them exited.
package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/contiv/mptestbed/plugins/testbed"
)

const (
	plansBucket = "plans"

	// DefaultPath is the location of the store relative to the working directory.
	DefaultPath = "mptestbed.db"

	openTimeout = 5 * time.Second
)

var (
	// ErrNotFound is returned when no plan matches the session ID.
	ErrNotFound = errors.New("plan not found")
	// ErrAmbiguous is returned when a session ID prefix matches more than one plan.
	ErrAmbiguous = errors.New("session ID prefix matches more than one plan")
)

// Summary is the short description of a stored plan.
type Summary struct {
	Session  string    `json:"session"`
	Topology string    `json:"topology"`
	Engine   string    `json:"engine"`
	Created  time.Time `json:"created"`
	Subnets  int       `json:"subnets"`
	Hosts    int       `json:"hosts"`
}

// PlanStore keeps plans keyed by session ID.
type PlanStore struct {
	Log logging.Logger

	db *bolt.DB
}

// Open opens or creates the store.
func Open(path string, log logging.Logger) (*PlanStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create store directory")
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open plan store %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(plansBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create bucket")
	}
	log.Debugf("Plan store opened: %s", path)
	return &PlanStore{Log: log, db: db}, nil
}

// Save stores the plan, replacing a plan of the same session.
func (s *PlanStore) Save(plan *testbed.Plan) error {
	if plan.Session == "" {
		return errors.New("plan without session ID")
	}
	data, err := json.Marshal(plan)
	if err != nil {
		return errors.Wrap(err, "failed to marshal plan")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(plansBucket)).Put([]byte(plan.Session), data)
	})
}

// Get returns the plan of the session. A unique prefix of the session ID
// is enough.
func (s *PlanStore) Get(session string) (*testbed.Plan, error) {
	plan := &testbed.Plan{}
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(plansBucket)).Cursor()
		prefix := []byte(session)

		key, value := cursor.Seek(prefix)
		if key == nil || !bytes.HasPrefix(key, prefix) {
			return ErrNotFound
		}
		if !bytes.Equal(key, prefix) {
			if next, _ := cursor.Next(); next != nil && bytes.HasPrefix(next, prefix) {
				return ErrAmbiguous
			}
		}
		return json.Unmarshal(value, plan)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "session %s", session)
	}
	return plan, nil
}

// List returns summaries of all plans, oldest first.
func (s *PlanStore) List() ([]*Summary, error) {
	var summaries []*Summary
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(plansBucket)).ForEach(func(key, value []byte) error {
			plan := &testbed.Plan{}
			if err := json.Unmarshal(value, plan); err != nil {
				s.Log.Warnf("Skipping corrupted plan %s: %v", key, err)
				return nil
			}
			summaries = append(summaries, &Summary{
				Session:  plan.Session,
				Topology: plan.Topology,
				Engine:   plan.Engine,
				Created:  plan.Created,
				Subnets:  len(plan.Subnets),
				Hosts:    len(plan.Hosts),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Created.Before(summaries[j].Created)
	})
	return summaries, nil
}

// Delete removes the plan of the session.
func (s *PlanStore) Delete(session string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(plansBucket))
		if bucket.Get([]byte(session)) == nil {
			return errors.Wrapf(ErrNotFound, "session %s", session)
		}
		return bucket.Delete([]byte(session))
	})
}

// Close closes the database.
func (s *PlanStore) Close() error {
	return s.db.Close()
}
