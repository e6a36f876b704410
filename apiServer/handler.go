package apiServer

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/gavlu/dailyreps-backup-server/internal/models"
	"github.com/gavlu/dailyreps-backup-server/internal/security"
)

const (
	errInvalidUserID      = "Invalid user ID format"
	errInvalidStorageKey  = "Invalid storage key format"
	errUserIDMustBeSHA256 = "User ID must be a valid SHA-256 hash (64 hex characters)"
	errInvalidRequestBody = "Invalid request body"
	errPayloadTooLarge    = "Backup size exceeds maximum allowed"
	errAdminUnauthorized  = "Unauthorized"
	deletedUserMessage    = "User and all associated data permanently deleted"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	status := "healthy"
	if err := s.db.Ping(); err != nil {
		s.log.Errorf("database health check failed: %v", err)
		dbStatus = "disconnected"
		status = "unhealthy"
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:   status,
		Database: dbStatus,
		Version:  serverVersion,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if !models.ValidateUserID(req.UserID) {
		s.log.Warn("invalid user ID format on register")
		s.writeErrorMessage(w, http.StatusBadRequest, errUserIDMustBeSHA256)
		return
	}

	userID := security.PepperUserID(req.UserID, s.conf.Pepper)

	if err := s.db.Store.RegisterUser(userID, s.now()); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, registerResponse{Success: true})
}

func (s *Server) handleStoreBackup(w http.ResponseWriter, r *http.Request) {
	var req storeBackupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	now := s.now()

	// The ciphertext itself is what the client signs for stores.
	if err := security.ValidateSignedRequest(req.Data, req.Signature, req.Timestamp, s.conf.MaxTimestampAgeSecs, now, s.conf.AppSecretKey, s.log); err != nil {
		s.writeError(w, err)
		return
	}

	payloadSize := len(req.Data)
	if payloadSize > s.conf.MaxBackupSizeBytes {
		s.log.WithFields(logrus.Fields{
			"bytes": payloadSize,
			"max":   s.conf.MaxBackupSizeBytes,
		}).Warn("payload too large")
		s.writeErrorMessage(w, http.StatusRequestEntityTooLarge, errPayloadTooLarge)
		return
	}
	if payloadSize > s.conf.WarnBackupSizeBytes {
		s.log.WithField("bytes", payloadSize).Info("large backup")
	}

	if !models.ValidateUserID(req.UserID) {
		s.writeErrorMessage(w, http.StatusBadRequest, errInvalidUserID)
		return
	}
	if !models.ValidateStorageKey(req.StorageKey) {
		s.writeErrorMessage(w, http.StatusBadRequest, errInvalidStorageKey)
		return
	}

	if s.conf.EntropyCheckEnabled {
		result, err := s.detector.Analyze(req.Data)
		if err != nil {
			if result.Warning != "" {
				s.log.WithFields(logrus.Fields{
					"ratio": result.EntropyRatio,
					"bytes": result.PayloadSize,
				}).Warn(result.Warning)
			} else {
				s.log.Warnf("payload envelope rejected: %v", err)
			}
			s.writeError(w, err)
			return
		}
	} else if !models.ValidateEncryptedData(req.Data) {
		s.writeErrorMessage(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	userID := security.PepperUserID(req.UserID, s.conf.Pepper)

	updatedAt, err := s.db.Store.StoreBackup(userID, req.StorageKey, req.Data, now)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, storeBackupResponse{
		Success:   true,
		UpdatedAt: timestampToRFC3339(updatedAt),
	})
}

func (s *Server) handleRetrieveBackup(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	reqUserID := query.Get("userId")
	storageKey := query.Get("storageKey")

	if !models.ValidateUserID(reqUserID) {
		s.writeErrorMessage(w, http.StatusBadRequest, errInvalidUserID)
		return
	}
	if !models.ValidateStorageKey(storageKey) {
		s.writeErrorMessage(w, http.StatusBadRequest, errInvalidStorageKey)
		return
	}

	userID := security.PepperUserID(reqUserID, s.conf.Pepper)

	record, err := s.db.Store.RetrieveBackup(userID, storageKey)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.WithField("bytes", len(record.EncryptedData)).Info("backup retrieved")

	s.writeJSON(w, http.StatusOK, retrieveBackupResponse{
		Data:      record.EncryptedData,
		UpdatedAt: timestampToRFC3339(record.UpdatedAt),
	})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req deleteUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if !models.ValidateUserID(req.UserID) {
		s.writeErrorMessage(w, http.StatusBadRequest, errInvalidUserID)
		return
	}
	if !models.ValidateStorageKey(req.StorageKey) {
		s.writeErrorMessage(w, http.StatusBadRequest, errInvalidStorageKey)
		return
	}

	// Deletion signs the storage key: proof of possession without
	// re-sending ciphertext.
	if err := security.ValidateSignedRequest(req.StorageKey, req.Signature, req.Timestamp, s.conf.MaxTimestampAgeSecs, s.now(), s.conf.AppSecretKey, s.log); err != nil {
		s.writeError(w, err)
		return
	}

	userID := security.PepperUserID(req.UserID, s.conf.Pepper)

	if err := s.db.Store.DeleteUser(userID, req.StorageKey); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, deleteUserResponse{
		Success: true,
		Message: deletedUserMessage,
	})
}

// checkAdminKey authorizes /admin requests. Disabled entirely when no admin
// secret is configured; the response does not distinguish the two cases.
func (s *Server) checkAdminKey(r *http.Request) bool {
	if s.conf.AdminSecretKey == "" {
		return false
	}
	provided := r.URL.Query().Get("key")
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.conf.AdminSecretKey)) == 1
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if !s.checkAdminKey(r) {
		s.log.Warn("invalid admin key attempt")
		s.writeErrorMessage(w, http.StatusUnauthorized, errAdminUnauthorized)
		return
	}

	userCount, backupCount, err := s.db.Store.Stats()
	if err != nil {
		s.writeError(w, err)
		return
	}

	sizeBytes, err := s.db.SizeOnDisk()
	if err != nil {
		s.log.Warnf("could not determine database size: %v", err)
		sizeBytes = 0
	}

	s.log.WithFields(logrus.Fields{
		"users":   userCount,
		"backups": backupCount,
		"size":    formatBytes(sizeBytes),
	}).Info("admin stats requested")

	s.writeJSON(w, http.StatusOK, adminStatsResponse{
		UserCount:         userCount,
		BackupCount:       backupCount,
		DatabaseSizeBytes: sizeBytes,
		DatabaseSizeHuman: formatBytes(sizeBytes),
	})
}

func (s *Server) handleAdminSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.checkAdminKey(r) {
		s.log.Warn("invalid admin key attempt")
		s.writeErrorMessage(w, http.StatusUnauthorized, errAdminUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/x-xz")
	w.Header().Set("Content-Disposition", `attachment; filename="dailyreps-snapshot.xz"`)

	if err := s.db.Snapshots.Export(r.Context(), w); err != nil {
		// Headers are gone at this point; all we can do is log and cut the
		// stream short.
		s.log.Errorf("snapshot export failed: %v", err)
	}
}
