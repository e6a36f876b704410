// Package keyValStore owns the embedded BadgerDB instance: lifecycle,
// transaction access, and maintenance. Record semantics live one layer up in
// the storage engine; this package never interprets values.
package keyValStore

import (
	"fmt"
	"io"
	"runtime"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

type StoreConfig struct {
	// Path is the database directory. Created, with parents, if absent.
	Path string
	// MinimumFreeGB is the free-space floor below which the store logs a
	// warning at open time.
	MinimumFreeGB int
	Logger        *logrus.Logger
}

type KeyValStore struct {
	config       StoreConfig
	badgerDB     *badger.DB
	log          *logrus.Logger
	readCounter  uint64
	writeCounter uint64
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log := config.Logger

	if err := config.checkConfig(); err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger at %s: %w", config.Path, err)
	}

	k := &KeyValStore{
		config:   config,
		badgerDB: db,
		log:      log,
	}

	k.displayDiskUsage()

	return k, nil
}

// Update runs fn inside a read-write transaction. Badger discards every
// buffered write when fn returns an error, which is what gives the engine
// its all-or-nothing multi-table mutations. Conflicting writers over the
// same keys abort with ErrConflict; the loser is retried a few times before
// the error escapes.
func (k *KeyValStore) Update(fn func(txn *badger.Txn) error) error {
	atomic.AddUint64(&k.writeCounter, 1)

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = k.badgerDB.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
	return err
}

// View runs fn inside a read-only transaction over a consistent snapshot.
func (k *KeyValStore) View(fn func(txn *badger.Txn) error) error {
	atomic.AddUint64(&k.readCounter, 1)
	return k.badgerDB.View(fn)
}

// Counters returns the read and write transaction counts since open.
func (k *KeyValStore) Counters() (reads, writes uint64) {
	return atomic.LoadUint64(&k.readCounter), atomic.LoadUint64(&k.writeCounter)
}

// CountWithPrefix counts live keys under the given prefix without touching
// values.
func (k *KeyValStore) CountWithPrefix(prefix []byte) (uint64, error) {
	var count uint64
	err := k.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Backup streams a full snapshot of the store to w and returns the version
// the snapshot covers.
func (k *KeyValStore) Backup(w io.Writer) (uint64, error) {
	return k.badgerDB.Backup(w, 0)
}

// Load restores a snapshot previously produced by Backup into the store.
func (k *KeyValStore) Load(r io.Reader) error {
	return k.badgerDB.Load(r, 16)
}

func (k *KeyValStore) Close() error {
	if err := k.Clean(); err != nil {
		k.log.Warnf("cleanup before close failed: %v", err)
	}
	return k.badgerDB.Close()
}

// Clean syncs, flattens and garbage-collects the value log. Safe to call
// periodically; ErrNoRewrite just means there was nothing to reclaim.
func (k *KeyValStore) Clean() error {
	if err := k.badgerDB.Sync(); err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	if err := k.badgerDB.Flatten(runtime.NumCPU()); err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}

	if err := k.badgerDB.RunValueLogGC(0.1); err != nil && err != badger.ErrNoRewrite {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}
