package models

import "errors"

// ErrRateLimitExceeded is returned by CheckAndIncrement when either window
// cap is already reached. The record is left untouched in that case.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimitRecord tracks backup frequency for one user across a sliding
// hour and day window. Windows roll over lazily at read time; there is no
// background sweep. The check/increment pair is only race-free because it
// runs inside the storage engine's write transaction.
type RateLimitRecord struct {
	BackupsThisHour uint32 `bson:"backupsThisHour"`
	BackupsToday    uint32 `bson:"backupsToday"`
	LastBackupAt    int64  `bson:"lastBackupAt"` // 0 means never
	HourResetAt     int64  `bson:"hourResetAt"`
	DayResetAt      int64  `bson:"dayResetAt"`
}

const (
	hourWindowSecs = 3600
	dayWindowSecs  = 86400
)

// NewRateLimitRecord returns a fresh record with both windows anchored at
// now. Created lazily on a user's first backup write.
func NewRateLimitRecord(now int64) RateLimitRecord {
	return RateLimitRecord{
		HourResetAt: now + hourWindowSecs,
		DayResetAt:  now + dayWindowSecs,
	}
}

// CheckAndIncrement rolls over any expired window, then either rejects
// without mutation (a counter is at its cap) or increments both counters
// and records the accept time.
func (r *RateLimitRecord) CheckAndIncrement(now int64, hourlyCap, dailyCap uint32) error {
	if now >= r.HourResetAt {
		r.BackupsThisHour = 0
		r.HourResetAt = now + hourWindowSecs
	}

	if now >= r.DayResetAt {
		r.BackupsToday = 0
		r.DayResetAt = now + dayWindowSecs
	}

	if r.BackupsThisHour >= hourlyCap {
		return ErrRateLimitExceeded
	}

	if r.BackupsToday >= dailyCap {
		return ErrRateLimitExceeded
	}

	r.BackupsThisHour++
	r.BackupsToday++
	r.LastBackupAt = now

	return nil
}
