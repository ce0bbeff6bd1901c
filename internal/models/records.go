package models

import "time"

// Millis converts t to the Unix-millisecond timestamps stored in every record.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// PresenceRecord is written only by its own role and read by the partner.
type PresenceRecord struct {
	Online        bool  `json:"online"`
	LastHeartbeat int64 `json:"lastHeartbeat"`
}

// LivenessOK treats a record whose heartbeat is older than threshold as offline,
// even if Online is still true (a missed last-will write).
func (p PresenceRecord) LivenessOK(now time.Time, threshold time.Duration) bool {
	if !p.Online {
		return false
	}
	return Millis(now)-p.LastHeartbeat < threshold.Milliseconds()
}

// MoodRecord holds the value and its timestamp as one composite value so the
// partner never observes one without the other.
type MoodRecord struct {
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// StatusRecord is the free-text counterpart of MoodRecord.
type StatusRecord struct {
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// TypingFlag is short-lived and overwritten frequently.
type TypingFlag struct {
	Value bool `json:"value"`
}

// AnniversaryAnchor is the start date every anniversary countdown derives from.
type AnniversaryAnchor struct {
	StartDate int64 `json:"startDate"`
	SetBy     Role  `json:"setBy"`
}

// CycleAnchor is the first day of the current tracked cycle.
type CycleAnchor struct {
	StartDate int64 `json:"startDate"`
	SetBy     Role  `json:"setBy"`
}
