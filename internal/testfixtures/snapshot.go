package testfixtures

import (
	"context"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"couplesync/backend/internal/storage"
)

// RecordSnapshot builds a single-record snapshot holding v.
func RecordSnapshot(t testing.TB, path string, v any) storage.Snapshot {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return storage.Snapshot{Path: path, Value: data}
}

// CollectionSnapshot builds a collection snapshot from children. A string
// child is used verbatim, which lets tests inject malformed JSON.
func CollectionSnapshot(t testing.TB, path string, children map[string]any) storage.Snapshot {
	t.Helper()
	snap := storage.Snapshot{Path: path}
	if len(children) == 0 {
		return snap
	}
	snap.Children = make(map[string]json.RawMessage, len(children))
	for k, v := range children {
		if raw, ok := v.(string); ok {
			snap.Children[k] = json.RawMessage(raw)
			continue
		}
		data, err := json.Marshal(v)
		require.NoError(t, err)
		snap.Children[k] = data
	}
	return snap
}

// Read returns the current snapshot at path by subscribing with an already
// cancelled context.
func Read(t testing.TB, store storage.Storage, path string) storage.Snapshot {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var snap storage.Snapshot
	require.NoError(t, store.Subscribe(ctx, path, func(s storage.Snapshot) { snap = s }))
	return snap
}
