package apiServer

// Wire shapes. Field names are camelCase to match the client app.

type registerRequest struct {
	UserID string `json:"userId"`
}

type registerResponse struct {
	Success bool `json:"success"`
}

type storeBackupRequest struct {
	UserID     string `json:"userId"`
	StorageKey string `json:"storageKey"`
	Data       string `json:"data"`
	Signature  string `json:"signature"`
	Timestamp  int64  `json:"timestamp"`
}

type storeBackupResponse struct {
	Success   bool   `json:"success"`
	UpdatedAt string `json:"updatedAt"`
}

type retrieveBackupResponse struct {
	Data      string `json:"data"`
	UpdatedAt string `json:"updatedAt"`
}

type deleteUserRequest struct {
	UserID     string `json:"userId"`
	StorageKey string `json:"storageKey"`
	Signature  string `json:"signature"`
	Timestamp  int64  `json:"timestamp"`
}

type deleteUserResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version"`
}

type adminStatsResponse struct {
	UserCount         uint64 `json:"user_count"`
	BackupCount       uint64 `json:"backup_count"`
	DatabaseSizeBytes int64  `json:"database_size_bytes"`
	DatabaseSizeHuman string `json:"database_size_human"`
}

type errorResponse struct {
	Error string `json:"error"`
}
