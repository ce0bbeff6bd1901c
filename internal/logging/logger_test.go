package logging_test

import (
	"bytes"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"couplesync/backend/internal/logging"
)

func TestComponentLoggerTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(logging.Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { logging.Init(logging.Config{}) })

	l := logging.Component("presence")
	l.Info().Str("role", "A").Msg("heartbeat")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "presence", entry["component"])
	assert.Equal(t, "A", entry["role"])
	assert.Equal(t, "heartbeat", entry["message"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(logging.Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { logging.Init(logging.Config{}) })

	logging.Debug().Msg("hidden")
	logging.Info().Msg("hidden too")
	assert.Empty(t, buf.String())

	logging.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
