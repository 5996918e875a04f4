// Package dtr defines the data transfer request: a record of one transfer
// moving through processing stages
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dtr

import (
	"sort"

	"github.com/IATkachenko/arc-sub001/cmn/kvdb"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
)

const collDTR = "dtr"

// Store keeps the history of finished DTRs, keyed by job
type Store struct {
	db kvdb.Driver
}

func NewStore(db kvdb.Driver) *Store { return &Store{db: db} }

func storeKey(jobID, id string) string { return jobID + "/" + id }

func (s *Store) Save(d *DTR) error {
	c := d.Clone()
	return s.db.Set(collDTR, storeKey(c.JobID, c.ID), c)
}

func (s *Store) Get(jobID, id string) (*DTR, error) {
	d := &DTR{}
	if err := s.db.Get(collDTR, storeKey(jobID, id), d); err != nil {
		return nil, err
	}
	return d, nil
}

// List returns the job's DTRs, oldest first
func (s *Store) List(jobID string) ([]*DTR, error) {
	all, err := s.db.GetAll(collDTR, jobID+"/")
	if err != nil {
		return nil, err
	}
	dtrs := make([]*DTR, 0, len(all))
	for k, v := range all {
		d := &DTR{}
		if err := kvdb.Unmarshal(v, d); err != nil {
			nlog.Warningln("skipping corrupted DTR record", k+":", err)
			continue
		}
		dtrs = append(dtrs, d)
	}
	sort.Slice(dtrs, func(i, j int) bool { return dtrs[i].Created.Before(dtrs[j].Created) })
	return dtrs, nil
}

func (s *Store) DeleteJob(jobID string) error {
	keys, err := s.db.List(collDTR, jobID+"/")
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.db.Delete(collDTR, k); err != nil && !kvdb.IsErrNotFound(err) {
			return err
		}
	}
	return nil
}
