package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v3"

	"github.com/cloudsync/todocal/internal/logging"
)

// BadgerBackend stores keys in an embedded badger database. Writes run in
// a single transaction.
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend opens (or creates) a badger database in dir. An empty
// dir opens an in-memory database.
func NewBadgerBackend(dir string, logger *slog.Logger) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir).WithLogger(logging.NewPrintfAdapter(logger))
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

// Name implements Backend.
func (b *BadgerBackend) Name() string { return BackendBadger }

// Get implements Backend.
func (b *BadgerBackend) Get(_ context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, k := range keys {
			item, err := txn.Get([]byte(k))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[k] = string(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger read: %w", err)
	}
	return out, nil
}

// Write implements Backend.
func (b *BadgerBackend) Write(_ context.Context, set map[string]string, del []string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for k, v := range set {
			if err := txn.Set([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		for _, k := range del {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger write: %w", err)
	}
	return nil
}

// Close implements Backend.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
