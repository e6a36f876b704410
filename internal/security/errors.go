package security

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidTimestamp = errors.New("timestamp too old or in the future")
)
