package chathub

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Moods is the fixed set a participant can pick from.
var Moods = []string{"happy", "normal", "tired", "sad", "angry", "lonely"}

var (
	ErrUnknownMood    = errors.New("unknown mood")
	ErrUnknownPolicy  = errors.New("unknown mood policy")
	ErrStatusTooLong  = errors.New("status too long")
	ErrAnchorInFuture = errors.New("anchor date is in the future")
)

const maxStatusLength = 100

var defaultNegatives = []string{"sad"}

// ParseMood normalises and validates a mood value.
func ParseMood(s string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if !slices.Contains(Moods, v) {
		return "", fmt.Errorf("%w: %q", ErrUnknownMood, s)
	}
	return v, nil
}

// MoodPolicy decides whether a partner mood change is worth a notification.
type MoodPolicy func(prev, next string) bool

// AllMoods notifies on every change.
func AllMoods(_, _ string) bool { return true }

// NegativeMoods notifies only when the new mood is one of negatives.
func NegativeMoods(negatives ...string) MoodPolicy {
	if len(negatives) == 0 {
		negatives = defaultNegatives
	}
	set := make(map[string]struct{}, len(negatives))
	for _, m := range negatives {
		set[strings.ToLower(m)] = struct{}{}
	}
	return func(_, next string) bool {
		_, ok := set[next]
		return ok
	}
}

// ParseMoodPolicy maps the configured policy name to a predicate.
func ParseMoodPolicy(name string, negatives []string) (MoodPolicy, error) {
	switch strings.ToLower(name) {
	case "", "negative":
		for _, m := range negatives {
			if _, err := ParseMood(m); err != nil {
				return nil, err
			}
		}
		return NegativeMoods(negatives...), nil
	case "all":
		return AllMoods, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}
