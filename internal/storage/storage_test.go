package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavlu/dailyreps-backup-server/internal/keyValStore"
	"github.com/gavlu/dailyreps-backup-server/internal/models"
	"github.com/gavlu/dailyreps-backup-server/internal/testutil"
)

func newTestStorage(t testing.TB, limits RateLimitPolicy) *Storage {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Path:   t.TempDir(),
		Logger: log,
	})
	require.NoError(t, err)

	ss := CreateStorage(kv, limits, log)
	t.Cleanup(func() { ss.Close() })
	return ss
}

func defaultLimits() RateLimitPolicy {
	return RateLimitPolicy{HourlyCap: 5, DailyCap: 20}
}

func testUserID(name string) string {
	sum := sha256.Sum256([]byte("user-" + name))
	return hex.EncodeToString(sum[:])
}

func storageKeyFor(userID, password string) string {
	sum := sha256.Sum256([]byte(userID + password))
	return hex.EncodeToString(sum[:])
}

func TestRegisterUser(t *testing.T) {
	ss := newTestStorage(t, defaultLimits())

	require.NoError(t, ss.RegisterUser(testUserID("alice"), 1000))
}

func TestRegisterUserDuplicate(t *testing.T) {
	ss := newTestStorage(t, defaultLimits())
	userID := testUserID("alice")

	require.NoError(t, ss.RegisterUser(userID, 1000))

	err := ss.RegisterUser(userID, 2000)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestStoreBackupUserNotFound(t *testing.T) {
	ss := newTestStorage(t, defaultLimits())

	_, err := ss.StoreBackup(testUserID("ghost"), storageKeyFor("ghost", "pw"), "data", 1000)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStoreAndRetrieveBackup(t *testing.T) {
	ss := newTestStorage(t, defaultLimits())
	userID := testUserID("alice")
	key := storageKeyFor(userID, "pw")

	require.NoError(t, ss.RegisterUser(userID, 1000))

	updatedAt, err := ss.StoreBackup(userID, key, "payload-1", 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), updatedAt)

	record, err := ss.RetrieveBackup(userID, key)
	require.NoError(t, err)
	assert.Equal(t, "payload-1", record.EncryptedData)
	assert.Equal(t, int64(2000), record.CreatedAt)
	assert.Equal(t, int64(2000), record.UpdatedAt)
}

func TestStoreBackupUpsertPreservesCreatedAt(t *testing.T) {
	ss := newTestStorage(t, defaultLimits())
	userID := testUserID("alice")
	key := storageKeyFor(userID, "pw")

	require.NoError(t, ss.RegisterUser(userID, 1000))

	_, err := ss.StoreBackup(userID, key, "payload-1", 2000)
	require.NoError(t, err)

	_, err = ss.StoreBackup(userID, key, "payload-2", 3000)
	require.NoError(t, err)

	record, err := ss.RetrieveBackup(userID, key)
	require.NoError(t, err)
	assert.Equal(t, "payload-2", record.EncryptedData)
	assert.Equal(t, int64(2000), record.CreatedAt, "created_at survives re-submission")
	assert.Equal(t, int64(3000), record.UpdatedAt)
}

func TestRetrieveBackupNonEnumeration(t *testing.T) {
	ss := newTestStorage(t, defaultLimits())
	alice := testUserID("alice")
	bob := testUserID("bob")
	key := storageKeyFor(alice, "pw")

	require.NoError(t, ss.RegisterUser(alice, 1000))
	require.NoError(t, ss.RegisterUser(bob, 1000))
	_, err := ss.StoreBackup(alice, key, "secret", 2000)
	require.NoError(t, err)

	_, errMissing := ss.RetrieveBackup(bob, storageKeyFor(bob, "nope"))
	_, errForeign := ss.RetrieveBackup(bob, key)

	assert.ErrorIs(t, errMissing, ErrBackupNotFound)
	assert.ErrorIs(t, errForeign, ErrBackupNotFound)
	assert.Equal(t, errMissing, errForeign, "missing key and foreign key are indistinguishable")
}

func TestStoreBackupRateLimited(t *testing.T) {
	ss := newTestStorage(t, RateLimitPolicy{HourlyCap: 2, DailyCap: 20})
	userID := testUserID("alice")

	require.NoError(t, ss.RegisterUser(userID, 1000))

	for i := 0; i < 2; i++ {
		key := storageKeyFor(userID, fmt.Sprintf("pw-%d", i))
		_, err := ss.StoreBackup(userID, key, "data", 2000)
		require.NoError(t, err)
	}

	rejectedKey := storageKeyFor(userID, "rejected")
	_, err := ss.StoreBackup(userID, rejectedKey, "data", 2000)
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)

	// The rejection aborted the transaction: no backup row appeared.
	_, err = ss.RetrieveBackup(userID, rejectedKey)
	assert.ErrorIs(t, err, ErrBackupNotFound)

	// Past the hour boundary writes flow again.
	_, err = ss.StoreBackup(userID, rejectedKey, "data", 2000+3601)
	assert.NoError(t, err)
}

func TestDeleteUserCascade(t *testing.T) {
	ss := newTestStorage(t, defaultLimits())
	userID := testUserID("alice")

	require.NoError(t, ss.RegisterUser(userID, 1000))

	keys := make([]string, 3)
	for i := range keys {
		keys[i] = storageKeyFor(userID, fmt.Sprintf("pw-%d", i))
		_, err := ss.StoreBackup(userID, keys[i], fmt.Sprintf("data-%d", i), int64(2000+i))
		require.NoError(t, err)
	}

	require.NoError(t, ss.DeleteUser(userID, keys[0]))

	// Every indexed backup is gone.
	for _, key := range keys {
		_, err := ss.RetrieveBackup(userID, key)
		assert.ErrorIs(t, err, ErrBackupNotFound)
	}

	// The user slot is free again, with clean rate state.
	require.NoError(t, ss.RegisterUser(userID, 5000))
	_, err := ss.StoreBackup(userID, keys[0], "fresh", 6000)
	assert.NoError(t, err)

	userCount, backupCount, err := ss.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), userCount)
	assert.Equal(t, uint64(1), backupCount)
}

func TestDeleteUserNotFound(t *testing.T) {
	ss := newTestStorage(t, defaultLimits())

	err := ss.DeleteUser(testUserID("ghost"), storageKeyFor("ghost", "pw"))
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeleteUserCredentialMismatch(t *testing.T) {
	ss := newTestStorage(t, defaultLimits())
	alice := testUserID("alice")
	mallory := testUserID("mallory")
	aliceKey := storageKeyFor(alice, "pw")

	require.NoError(t, ss.RegisterUser(alice, 1000))
	require.NoError(t, ss.RegisterUser(mallory, 1000))
	_, err := ss.StoreBackup(alice, aliceKey, "data", 2000)
	require.NoError(t, err)

	// Unknown key and someone else's key fail identically.
	errUnknown := ss.DeleteUser(mallory, storageKeyFor(mallory, "wrong"))
	errForeign := ss.DeleteUser(mallory, aliceKey)

	assert.ErrorIs(t, errUnknown, ErrCredentialMismatch)
	assert.ErrorIs(t, errForeign, ErrCredentialMismatch)

	// Alice's data is untouched.
	record, err := ss.RetrieveBackup(alice, aliceKey)
	require.NoError(t, err)
	assert.Equal(t, "data", record.EncryptedData)
}

func TestStats(t *testing.T) {
	ss := newTestStorage(t, defaultLimits())

	userCount, backupCount, err := ss.Stats()
	require.NoError(t, err)
	assert.Zero(t, userCount)
	assert.Zero(t, backupCount)

	for i := 0; i < 3; i++ {
		userID := testUserID(fmt.Sprintf("user-%d", i))
		require.NoError(t, ss.RegisterUser(userID, 1000))
		_, err := ss.StoreBackup(userID, storageKeyFor(userID, "pw"), "data", 2000)
		require.NoError(t, err)
	}

	userCount, backupCount, err = ss.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), userCount)
	assert.Equal(t, uint64(3), backupCount)
}

func TestStorageSoak(t *testing.T) {
	testutil.RequireLong(t)

	ss := newTestStorage(t, RateLimitPolicy{HourlyCap: 10, DailyCap: 50})

	const users = 200
	for i := 0; i < users; i++ {
		userID := testUserID(fmt.Sprintf("soak-%d", i))
		require.NoError(t, ss.RegisterUser(userID, 1000))

		for j := 0; j < 3; j++ {
			key := storageKeyFor(userID, fmt.Sprintf("pw-%d", j))
			payload := strings.Repeat("x", 4096)
			_, err := ss.StoreBackup(userID, key, payload, int64(2000+j))
			require.NoError(t, err)
		}
	}

	userCount, backupCount, err := ss.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(users), userCount)
	assert.Equal(t, uint64(users*3), backupCount)
}
