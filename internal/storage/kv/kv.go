// Package kv provides the durable small-object persistence capability used by
// the tracker for pending queues and offer snapshots.
package kv

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// Store is a durable key-value capability. Writes are all-or-nothing: a crash
// mid-write never yields a truncated record.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// BadgerStore implements Store on a local badger database.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (or creates) a badger-backed store at the given path.
func Open(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open kv store at %s", path)
	}
	return &BadgerStore{db: db}, nil
}

// Get returns the value for key and whether it exists.
func (s *BadgerStore) Get(key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s", key)
	}
	return out, true, nil
}

// Set writes the value for key atomically.
func (s *BadgerStore) Set(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return errors.Wrapf(err, "set %s", key)
}

// Delete removes the key. Deleting an absent key is not an error.
func (s *BadgerStore) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return errors.Wrapf(err, "delete %s", key)
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// AccountKey builds a keyspace-safe key scoped to one account. The account id
// is hashed so display names never leak into the store.
func AccountKey(accountID, suffix string) string {
	sum := sha256.Sum256([]byte(accountID))
	return fmt.Sprintf("%s_%s", hex.EncodeToString(sum[:8]), suffix)
}
