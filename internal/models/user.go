package models

// UserRecord is the persisted value of the users relation. The key is the
// (optionally peppered) user identifier, so the record itself only carries
// the creation time.
type UserRecord struct {
	CreatedAt int64 `bson:"createdAt"`
}

// ValidateUserID reports whether id looks like a SHA-256 hash: exactly 64
// lowercase or uppercase hex characters.
func ValidateUserID(id string) bool {
	return validHex64(id)
}

func validHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
