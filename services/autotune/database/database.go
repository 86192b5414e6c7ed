// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package database persists tuning records: for each measured candidate
// it stores the serialized schedule trace together with its measured
// time, keyed by the task it belongs to. A later tuning run over the
// same task replays the best stored trace instead of searching from
// scratch.
package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/tensortune/services/autotune/storage/badger"
	"github.com/AleutianAI/tensortune/services/autotune/trace"
)

// ErrNoRecords is returned by Best when a task has no stored records.
var ErrNoRecords = errors.New("no tuning records for task")

// Record is one stored measurement: the serialized trace that produced
// the candidate and the time it achieved.
type Record struct {
	ID            uuid.UUID              `json:"id"`
	TaskKey       string                 `json:"task_key"`
	Trace         *trace.SerializedTrace `json:"trace"`
	ExecutionTime time.Duration          `json:"execution_time"`
	RecordedAt    time.Time              `json:"recorded_at"`
}

// Database is a tuning-record store over an embedded BadgerDB.
//
// Thread Safety: safe for concurrent use.
type Database struct {
	db *badger.DB
}

// New wraps an opened store.
func New(db *badger.DB) (*Database, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	return &Database{db: db}, nil
}

// taskPrefix maps a task key (schedule source text, arbitrarily long) to
// a fixed-size key prefix.
func taskPrefix(taskKey string) []byte {
	sum := sha256.Sum256([]byte(taskKey))
	return []byte("record/" + hex.EncodeToString(sum[:]) + "/")
}

// Save stores a record. The record's ID and RecordedAt are assigned here
// when unset.
func (d *Database) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.TaskKey == "" || rec.Trace == nil {
		return errors.New("record needs a task key and a trace")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	key := append(taskPrefix(rec.TaskKey), []byte(rec.ID.String())...)

	return d.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Set(key, value)
	})
}

// List returns every record stored for the task, in key order.
func (d *Database) List(ctx context.Context, taskKey string) ([]*Record, error) {
	prefix := taskPrefix(taskKey)
	var out []*Record
	err := d.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("decoding record %s: %w", it.Item().Key(), err)
				}
				out = append(out, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Best returns the stored record with the lowest execution time for the
// task, or ErrNoRecords.
func (d *Database) Best(ctx context.Context, taskKey string) (*Record, error) {
	recs, err := d.List(ctx, taskKey)
	if err != nil {
		return nil, err
	}
	var best *Record
	for _, rec := range recs {
		if rec.ExecutionTime <= 0 {
			continue
		}
		if best == nil || rec.ExecutionTime < best.ExecutionTime {
			best = rec
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoRecords, shortKey(taskKey))
	}
	return best, nil
}

// Count returns the number of records stored for the task.
func (d *Database) Count(ctx context.Context, taskKey string) (int, error) {
	recs, err := d.List(ctx, taskKey)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// shortKey truncates a task key for error messages; full keys are whole
// schedule source listings.
func shortKey(taskKey string) string {
	const limit = 40
	if len(taskKey) <= limit {
		return taskKey
	}
	return taskKey[:limit] + "..."
}
