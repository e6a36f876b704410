package storage

import (
	"fmt"

	"github.com/juju/mgo/v3/bson"

	"github.com/gavlu/dailyreps-backup-server/internal/models"
)

// Records are persisted as bson documents: compact, schemaless on disk, and
// tolerant of fields added in later versions.

// indexRecord is the value of the user_backups relation: the set of storage
// keys currently owned by one user.
type indexRecord struct {
	Keys []string `bson:"keys"`
}

func userToBytes(rec models.UserRecord) ([]byte, error) {
	return bson.Marshal(rec)
}

func backupToBytes(rec models.BackupRecord) ([]byte, error) {
	return bson.Marshal(rec)
}

func bytesToBackup(data []byte) (models.BackupRecord, error) {
	var rec models.BackupRecord
	if err := bson.Unmarshal(data, &rec); err != nil {
		return models.BackupRecord{}, fmt.Errorf("decoding backup record: %w", err)
	}
	return rec, nil
}

func rateLimitToBytes(rec models.RateLimitRecord) ([]byte, error) {
	return bson.Marshal(rec)
}

func bytesToRateLimit(data []byte) (models.RateLimitRecord, error) {
	var rec models.RateLimitRecord
	if err := bson.Unmarshal(data, &rec); err != nil {
		return models.RateLimitRecord{}, fmt.Errorf("decoding rate limit record: %w", err)
	}
	return rec, nil
}

func indexToBytes(rec indexRecord) ([]byte, error) {
	return bson.Marshal(rec)
}

func bytesToIndex(data []byte) (indexRecord, error) {
	var rec indexRecord
	if err := bson.Unmarshal(data, &rec); err != nil {
		return indexRecord{}, fmt.Errorf("decoding backup index record: %w", err)
	}
	return rec, nil
}
