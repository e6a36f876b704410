// Package backupserver wires the embedded store, the storage engine and the
// snapshot manager into one handle and keeps the value log maintained in the
// background.
package backupserver

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/gavlu/dailyreps-backup-server/internal/config"
	"github.com/gavlu/dailyreps-backup-server/internal/keyValStore"
	"github.com/gavlu/dailyreps-backup-server/internal/snapshot"
	"github.com/gavlu/dailyreps-backup-server/internal/storage"
)

type BackupDB struct {
	kv        *keyValStore.KeyValStore
	Store     *storage.Storage
	Snapshots *snapshot.Manager
	config    config.Config
	log       *logrus.Logger
	stopGC    chan struct{}
}

func New(conf config.Config, log *logrus.Logger) (*BackupDB, error) {
	if log == nil {
		log = logrus.New()
	}

	kvStore, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Path:          conf.DatabasePath,
		MinimumFreeGB: conf.MinimumFreeGB,
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating KeyValStore: %w", err)
	}

	ss := storage.CreateStorage(kvStore, storage.RateLimitPolicy{
		HourlyCap: conf.MaxBackupsPerHour,
		DailyCap:  conf.MaxBackupsPerDay,
	}, log)

	db := &BackupDB{
		kv:        kvStore,
		Store:     ss,
		Snapshots: snapshot.NewManager(kvStore),
		config:    conf,
		log:       log,
		stopGC:    make(chan struct{}),
	}

	go db.runGarbageCollection()

	return db, nil
}

func (db *BackupDB) Close() error {
	close(db.stopGC)
	return db.Store.Close()
}

// Ping verifies the store is still reachable. Used by the health endpoint.
func (db *BackupDB) Ping() error {
	return db.kv.View(func(txn *badger.Txn) error { return nil })
}

// SizeOnDisk reports the database directory size for the admin reporter.
func (db *BackupDB) SizeOnDisk() (int64, error) {
	return db.kv.SizeOnDisk()
}

func (db *BackupDB) runGarbageCollection() {
	ticker := time.NewTicker(time.Duration(db.config.GarbageCollectionMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := db.kv.Clean(); err != nil {
				db.log.Errorf("error during garbage collection: %v", err)
			}
		case <-db.stopGC:
			return
		}
	}
}
