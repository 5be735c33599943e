// Package history keeps a badger index of permanent records so past runs can
// be listed without rereading every manifest. The record files remain the
// source of truth; the index can be rebuilt from them at any time.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/catalogue/pkg/catalogue/logging"
	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
	"github.com/jamesainslie/catalogue/pkg/catalogue/table"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

var logger = logging.Get("history")

// ErrNotFound is returned when a record is not in the index.
var ErrNotFound = errors.New("history entry not found")

// Index wraps Badger for record lookups.
type Index struct {
	db *badger.DB
}

// Open opens or creates an index at path.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history index: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the index.
func (x *Index) Close() error {
	return x.db.Close()
}

// resultsKey normalises the results directory a record path lives in.
func resultsKey(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

// Put indexes m, stored at recordPath. The results directory is the
// directory containing recordPath.
func (x *Index) Put(m *manifest.Manifest, recordPath string) error {
	id := m.RecordID()
	if id == "" {
		return fmt.Errorf("%w: record has no timestamp", types.ErrInvalidArgument)
	}
	value, err := NewEntry(m, recordPath).Encode()
	if err != nil {
		return err
	}
	key := MakeKey(resultsKey(filepath.Dir(recordPath)), id)
	return x.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Get returns the entry for record id under a results directory.
func (x *Index) Get(results, id string) (*Entry, error) {
	key := MakeKey(resultsKey(results), id)
	var entry Entry

	err := x.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(entry.Decode)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns the entries of a results directory, newest first. If limit is
// 0 or negative, all entries are returned.
func (x *Index) List(results string, limit int) ([]Entry, error) {
	prefix := MakeKeyPrefix(resultsKey(results))
	var entries []Entry

	err := x.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(e.Decode); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Keys sort by timestamp ascending.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// DeletePrefix removes every entry of a results directory.
func (x *Index) DeletePrefix(results string) error {
	prefix := MakeKeyPrefix(resultsKey(results))

	return x.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reindex replaces the entries of a results directory with the records
// found in it: every manifest file and, when csvName is set, every row of
// that table. It returns the number of records indexed.
func (x *Index) Reindex(results, csvName string) (int, error) {
	var recs []*Entry

	store, err := manifest.NewStore(results)
	if err != nil {
		return 0, err
	}
	files, err := store.List(0)
	if err != nil {
		return 0, err
	}
	for _, r := range files {
		recs = append(recs, NewEntry(r.Manifest, r.Path))
	}

	if csvName != "" {
		path := filepath.Join(results, csvName)
		ids, err := table.IDs(path)
		if err != nil && !errors.Is(err, types.ErrFileNotFound) {
			return 0, err
		}
		for _, id := range ids {
			m, err := table.ReadRow(path, id)
			if err != nil {
				logger.Warn("skipping unreadable row", "table", path, "id", id, "error", err)
				continue
			}
			recs = append(recs, NewEntry(m, path))
		}
	}

	if err := x.DeletePrefix(results); err != nil {
		return 0, err
	}

	root := resultsKey(results)
	wb := x.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range recs {
		value, err := e.Encode()
		if err != nil {
			return 0, err
		}
		if err := wb.Set(MakeKey(root, e.ID), value); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}

	logger.Info("reindexed history", "results", results, "records", len(recs))
	return len(recs), nil
}
