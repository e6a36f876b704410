// Package storage is the transactional engine over the key-value store. It
// owns the four persistent relations (users, backups, rate limits, and the
// per-user backup index) and is the only code that mutates them. Every
// operation is one Badger transaction: an error from any step discards all
// buffered writes.
package storage

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/gavlu/dailyreps-backup-server/internal/keyValStore"
	"github.com/gavlu/dailyreps-backup-server/internal/models"
)

// Relation prefixes. All keys are the prefix followed by a 64-char hex
// identifier: the user id for users/rate_limits/user_backups, the storage
// key for backups.
const (
	prefixUsers       = "users:"
	prefixBackups     = "backups:"
	prefixRateLimits  = "rate_limits:"
	prefixUserBackups = "user_backups:"
)

// RateLimitPolicy carries the per-user write caps into the engine. Injected
// per instance so tests can tighten or loosen them.
type RateLimitPolicy struct {
	HourlyCap uint32
	DailyCap  uint32
}

type Storage struct {
	kv     *keyValStore.KeyValStore
	limits RateLimitPolicy
	log    *logrus.Logger
}

func CreateStorage(kv *keyValStore.KeyValStore, limits RateLimitPolicy, log *logrus.Logger) *Storage {
	if log == nil {
		log = logrus.New()
	}
	return &Storage{
		kv:     kv,
		limits: limits,
		log:    log,
	}
}

func (ss *Storage) Close() error {
	return ss.kv.Close()
}

func userKey(id string) []byte        { return []byte(prefixUsers + id) }
func backupKey(key string) []byte     { return []byte(prefixBackups + key) }
func rateLimitKey(id string) []byte   { return []byte(prefixRateLimits + id) }
func userBackupsKey(id string) []byte { return []byte(prefixUserBackups + id) }

// getValue fetches key inside txn. The bool reports existence; the error is
// reserved for real storage faults.
func getValue(txn *badger.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// RegisterUser creates the user record, or returns ErrUserAlreadyExists
// without touching the existing record.
func (ss *Storage) RegisterUser(userID string, now int64) error {
	err := ss.kv.Update(func(txn *badger.Txn) error {
		_, exists, err := getValue(txn, userKey(userID))
		if err != nil {
			return err
		}
		if exists {
			return ErrUserAlreadyExists
		}

		value, err := userToBytes(models.UserRecord{CreatedAt: now})
		if err != nil {
			return err
		}
		return txn.Set(userKey(userID), value)
	})
	if err != nil {
		return err
	}

	ss.log.Info("new user registered")
	return nil
}

// StoreBackup runs the whole store sequence in one transaction: user
// existence, rate-limit check, backup upsert, index append. The returned
// value is the new updatedAt. A rate-limit rejection aborts before any
// backup or index write is buffered.
func (ss *Storage) StoreBackup(userID, storageKey, data string, now int64) (int64, error) {
	err := ss.kv.Update(func(txn *badger.Txn) error {
		// Existence first: an unregistered identifier must not leave rate
		// state or storage side effects behind.
		_, exists, err := getValue(txn, userKey(userID))
		if err != nil {
			return err
		}
		if !exists {
			ss.log.Warn("backup attempt for non-existent user")
			return ErrUserNotFound
		}

		rateValue, found, err := getValue(txn, rateLimitKey(userID))
		if err != nil {
			return err
		}
		rateRecord := models.NewRateLimitRecord(now)
		if found {
			rateRecord, err = bytesToRateLimit(rateValue)
			if err != nil {
				return err
			}
		}

		if err := rateRecord.CheckAndIncrement(now, ss.limits.HourlyCap, ss.limits.DailyCap); err != nil {
			ss.log.WithFields(logrus.Fields{
				"hour": rateRecord.BackupsThisHour,
				"day":  rateRecord.BackupsToday,
			}).Warn("backup rate limit exceeded")
			return err
		}

		rateBytes, err := rateLimitToBytes(rateRecord)
		if err != nil {
			return err
		}
		if err := txn.Set(rateLimitKey(userID), rateBytes); err != nil {
			return err
		}

		// Upsert: a re-submission under the same key keeps the original
		// creation time.
		createdAt := now
		prevValue, found, err := getValue(txn, backupKey(storageKey))
		if err != nil {
			return err
		}
		if found {
			prev, err := bytesToBackup(prevValue)
			if err != nil {
				return err
			}
			createdAt = prev.CreatedAt
		}

		backupBytes, err := backupToBytes(models.BackupRecord{
			UserID:        userID,
			EncryptedData: data,
			CreatedAt:     createdAt,
			UpdatedAt:     now,
		})
		if err != nil {
			return err
		}
		if err := txn.Set(backupKey(storageKey), backupBytes); err != nil {
			return err
		}

		// Keep the index exactly in sync with the backups relation; the
		// cascade delete trusts it completely.
		indexValue, found, err := getValue(txn, userBackupsKey(userID))
		if err != nil {
			return err
		}
		var index indexRecord
		if found {
			index, err = bytesToIndex(indexValue)
			if err != nil {
				return err
			}
		}

		if !containsKey(index.Keys, storageKey) {
			index.Keys = append(index.Keys, storageKey)
			indexBytes, err := indexToBytes(index)
			if err != nil {
				return err
			}
			if err := txn.Set(userBackupsKey(userID), indexBytes); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	ss.log.WithField("bytes", len(data)).Info("backup stored")
	return now, nil
}

// RetrieveBackup is read-only. A missing key and a key owned by a different
// user produce the same ErrBackupNotFound so the response never confirms a
// key's existence to an unauthorized caller.
func (ss *Storage) RetrieveBackup(userID, storageKey string) (models.BackupRecord, error) {
	var record models.BackupRecord

	err := ss.kv.View(func(txn *badger.Txn) error {
		value, found, err := getValue(txn, backupKey(storageKey))
		if err != nil {
			return err
		}
		if !found {
			return ErrBackupNotFound
		}

		record, err = bytesToBackup(value)
		if err != nil {
			return err
		}

		if record.UserID != userID {
			record = models.BackupRecord{}
			return ErrBackupNotFound
		}

		return nil
	})
	if err != nil {
		return models.BackupRecord{}, err
	}

	return record, nil
}

// DeleteUser removes the user and everything referencing it in one
// transaction: every indexed backup, the rate-limit row, the index row and
// the user row. The supplied storage key must resolve to a backup owned by
// this user, which re-proves password possession at delete time.
func (ss *Storage) DeleteUser(userID, storageKey string) error {
	err := ss.kv.Update(func(txn *badger.Txn) error {
		_, exists, err := getValue(txn, userKey(userID))
		if err != nil {
			return err
		}
		if !exists {
			ss.log.Warn("delete attempt for non-existent user")
			return ErrUserNotFound
		}

		backupValue, found, err := getValue(txn, backupKey(storageKey))
		if err != nil {
			return err
		}
		if !found {
			ss.log.Warn("delete attempt with unknown storage key")
			return ErrCredentialMismatch
		}
		backup, err := bytesToBackup(backupValue)
		if err != nil {
			return err
		}
		if backup.UserID != userID {
			ss.log.Warn("delete attempt with mismatched storage key")
			return ErrCredentialMismatch
		}

		indexValue, found, err := getValue(txn, userBackupsKey(userID))
		if err != nil {
			return err
		}
		var index indexRecord
		if found {
			index, err = bytesToIndex(indexValue)
			if err != nil {
				return err
			}
		}

		for _, key := range index.Keys {
			if err := txn.Delete(backupKey(key)); err != nil {
				return err
			}
		}

		if err := txn.Delete(rateLimitKey(userID)); err != nil {
			return err
		}
		if err := txn.Delete(userBackupsKey(userID)); err != nil {
			return err
		}
		return txn.Delete(userKey(userID))
	})
	if err != nil {
		return err
	}

	ss.log.Info("user and all associated data deleted")
	return nil
}

// Stats counts live users and backups for the admin reporter.
func (ss *Storage) Stats() (userCount, backupCount uint64, err error) {
	userCount, err = ss.kv.CountWithPrefix([]byte(prefixUsers))
	if err != nil {
		return 0, 0, fmt.Errorf("counting users: %w", err)
	}
	backupCount, err = ss.kv.CountWithPrefix([]byte(prefixBackups))
	if err != nil {
		return 0, 0, fmt.Errorf("counting backups: %w", err)
	}
	return userCount, backupCount, nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
