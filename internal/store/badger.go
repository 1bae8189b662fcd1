// Package store persists action items in an embedded badger database.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/rbright/jotter/internal/tasks"
)

var itemPrefix = []byte("item/")

type Badger struct {
	db *badger.DB
}

// Open opens (or creates) the database directory at path.
func Open(path string, logger *slog.Logger) (*Badger, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return open(badger.DefaultOptions(path), logger)
}

// OpenInMemory opens a database that lives only as long as the process.
func OpenInMemory() (*Badger, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), nil)
}

func open(opts badger.Options, logger *slog.Logger) (*Badger, error) {
	if logger == nil {
		opts = opts.WithLogger(nil)
	} else {
		opts = opts.WithLogger(badgerLogger{logger: logger.With("component", "badger")})
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) Add(_ context.Context, items ...tasks.ActionItem) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, item := range items {
			if err := setItem(txn, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) Put(_ context.Context, item tasks.ActionItem) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(itemKey(item.ID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", tasks.ErrNotFound, item.ID)
			}
			return err
		}
		return setItem(txn, item)
	})
}

func (b *Badger) Get(_ context.Context, id string) (tasks.ActionItem, error) {
	var item tasks.ActionItem
	err := b.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get(itemKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", tasks.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
	})
	return item, err
}

func (b *Badger) List(_ context.Context) ([]tasks.ActionItem, error) {
	var items []tasks.ActionItem
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = itemPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(itemPrefix); it.ValidForPrefix(itemPrefix); it.Next() {
			var item tasks.ActionItem
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

// Delete removes ids. Unknown ids are ignored.
func (b *Badger) Delete(_ context.Context, ids ...string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete(itemKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

func setItem(txn *badger.Txn, item tasks.ActionItem) error {
	if item.ID == "" {
		return errors.New("action item id is required")
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s: %w", item.ID, err)
	}
	return txn.Set(itemKey(item.ID), data)
}

func itemKey(id string) []byte {
	return append(append([]byte(nil), itemPrefix...), id...)
}

// badgerLogger routes badger's printf-style logs to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
