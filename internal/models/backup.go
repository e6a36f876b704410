package models

// BackupRecord is the persisted value of the backups relation, keyed by the
// storage key. The ciphertext is opaque to the server and stored verbatim.
type BackupRecord struct {
	UserID        string `bson:"userId"`
	EncryptedData string `bson:"encryptedData"`
	CreatedAt     int64  `bson:"createdAt"`
	UpdatedAt     int64  `bson:"updatedAt"`
}

// ValidateStorageKey reports whether key is a SHA-256 hash in hex. The key is
// derived client-side from (user id, password) and proves password knowledge
// without transmitting the password.
func ValidateStorageKey(key string) bool {
	return validHex64(key)
}

// ValidateEncryptedData is a cheap shape check: non-empty and only characters
// that can appear in base64 output of either alphabet. The entropy detector
// does the real decoding.
func ValidateEncryptedData(data string) bool {
	if data == "" {
		return false
	}
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '+' || c == '/' || c == '=' || c == '-' || c == '_':
		case c == '{' || c == '}' || c == '"' || c == ':' || c == ',' || c == '.' || c == ' ':
			// envelope JSON wrapper characters
		default:
			return false
		}
	}
	return true
}
