package apiServer

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gavlu/dailyreps-backup-server/internal/entropy"
	"github.com/gavlu/dailyreps-backup-server/internal/models"
	"github.com/gavlu/dailyreps-backup-server/internal/security"
	"github.com/gavlu/dailyreps-backup-server/internal/storage"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Errorf("failed to encode response: %v", err)
	}
}

func (s *Server) writeErrorMessage(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// writeError maps engine and validation outcomes onto response classes.
// Domain rejections carry their generic client message; anything
// unrecognized is an internal fault, logged in full and answered opaquely.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrUserAlreadyExists):
		s.writeErrorMessage(w, http.StatusConflict, "User already exists")
	case errors.Is(err, storage.ErrUserNotFound):
		s.writeErrorMessage(w, http.StatusUnauthorized, "User not found")
	case errors.Is(err, storage.ErrBackupNotFound):
		s.writeErrorMessage(w, http.StatusNotFound, "Backup not found")
	case errors.Is(err, storage.ErrCredentialMismatch):
		s.writeErrorMessage(w, http.StatusBadRequest, "Invalid credentials - storage key does not match user")
	case errors.Is(err, models.ErrRateLimitExceeded):
		s.writeErrorMessage(w, http.StatusTooManyRequests, "Rate limit exceeded - too many requests")
	case errors.Is(err, security.ErrInvalidSignature):
		s.writeErrorMessage(w, http.StatusUnauthorized, "Invalid signature - data must come from official app")
	case errors.Is(err, security.ErrInvalidTimestamp):
		s.writeErrorMessage(w, http.StatusBadRequest, "Timestamp too old or in the future")
	case errors.Is(err, entropy.ErrEnvelopeInvalid):
		s.writeErrorMessage(w, http.StatusBadRequest, "Invalid payload envelope")
	case errors.Is(err, entropy.ErrSuspiciousPayload):
		s.writeErrorMessage(w, http.StatusUnprocessableEntity, "Payload failed content analysis")
	default:
		s.log.Errorf("internal error: %v", err)
		s.writeErrorMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func timestampToRFC3339(timestamp int64) string {
	return time.Unix(timestamp, 0).UTC().Format(time.RFC3339)
}

func formatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
