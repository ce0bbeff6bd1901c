// Package storage is the replicated key-value store every client talks to.
// Paths are slash-separated ("rooms/<room>/messages/<id>"). A path either holds
// one record or is a collection of child records; subscribers always receive the
// entire current value at their path, never diffs.
package storage

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

var (
	// ErrInvalidPath is returned for empty paths, empty segments or paths too
	// short to address a record.
	ErrInvalidPath = errors.New("storage: invalid path")
	// ErrNotFound is returned by Patch when the target record does not exist.
	ErrNotFound = errors.New("storage: record not found")
	// ErrNoValue is returned by Snapshot.Decode when nothing is stored at the path.
	ErrNoValue = errors.New("storage: no value at path")
)

// Storage is the store collaborator contract.
type Storage interface {
	// Write replaces the value at path.
	Write(ctx context.Context, path string, value any) error
	// Patch merges fields into the record at path without touching siblings.
	// A key of the form "a/b" addresses a nested field; a nil value removes it.
	Patch(ctx context.Context, path string, fields map[string]any) error
	// Append stores value under a fresh store-generated key below path and
	// returns that key.
	Append(ctx context.Context, path string, value any) (string, error)
	// Delete removes the subtree at path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error
	// Subscribe delivers the current value at path immediately and again on
	// every change, until ctx is done.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) error
	// OnDisconnectWrite registers value to be written at path by the store itself
	// if this client disappears without releasing the returned lease. There is at
	// most one lease per path; registering again replaces the previous one.
	OnDisconnectWrite(ctx context.Context, path string, value any) (Lease, error)
}

// Lease is a claim held by a live client. When it expires without Release the
// store publishes the fallback value.
type Lease interface {
	// Renew extends the lease and replaces the fallback value.
	Renew(ctx context.Context, value any) error
	// Release drops the lease without firing the fallback.
	Release(ctx context.Context) error
}

// Reaper applies the fallback writes of expired leases and reports how many fired.
type Reaper interface {
	Reap(ctx context.Context) (int, error)
}

// Snapshot is the full value stored at Path at delivery time.
type Snapshot struct {
	Path string
	// Value is set when Path holds a single record.
	Value json.RawMessage
	// Children is set when Path is a collection, keyed by child key.
	Children map[string]json.RawMessage
}

// Exists reports whether anything is stored at the path.
func (s Snapshot) Exists() bool {
	return len(s.Value) > 0 || len(s.Children) > 0
}

// Decode unmarshals a single-record snapshot into v.
func (s Snapshot) Decode(v any) error {
	if len(s.Value) == 0 {
		return ErrNoValue
	}
	if err := json.Unmarshal(s.Value, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", s.Path, err)
	}
	return nil
}

// DecodeChildren decodes every child of a collection snapshot. Children that
// fail to decode are skipped and counted; a partner may have written a record
// this client does not understand yet.
func DecodeChildren[T any](s Snapshot) (map[string]T, int) {
	out := make(map[string]T, len(s.Children))
	skipped := 0
	for key, raw := range s.Children {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			skipped++
			continue
		}
		out[key] = v
	}
	return out, skipped
}
