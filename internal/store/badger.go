package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var currentKey = []byte("prices/current")

// BadgerBackend keeps the price set under a single key.
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger database in dir. An empty dir opens
// an in-memory database.
func OpenBadger(dir string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.SyncWrites = true
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func (b *BadgerBackend) Read(_ context.Context) (*StoredPriceSet, error) {
	var set StoredPriceSet
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(currentKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &set)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading price set: %w", err)
	}
	return &set, nil
}

func (b *BadgerBackend) Write(_ context.Context, set *StoredPriceSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encoding price set: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(currentKey, data)
	})
}

func (b *BadgerBackend) Close() error { return b.db.Close() }
