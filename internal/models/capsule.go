package models

import "time"

// TimeCapsule is a write-once record whose message stays hidden until UnlockAt.
// Opened flips false -> true exactly once.
type TimeCapsule struct {
	ID        string `json:"-"`
	Message   string `json:"message"`
	From      Role   `json:"from"`
	CreatedAt int64  `json:"createdAt"`
	UnlockAt  int64  `json:"unlockAt"`
	Opened    bool   `json:"opened"`
}

// Unlocked reports whether the wall clock has reached the unlock time.
func (c TimeCapsule) Unlocked(now time.Time) bool {
	return Millis(now) >= c.UnlockAt
}

// Visible reports whether the payload may be shown.
func (c TimeCapsule) Visible(now time.Time) bool {
	return c.Opened || c.Unlocked(now)
}
