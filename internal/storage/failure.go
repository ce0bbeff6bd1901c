package storage

import (
	"github.com/rs/zerolog"

	"couplesync/backend/internal/metrics"
)

// LogFailure records a store error the caller has decided to swallow. Writes
// are never retried; the next user action or heartbeat supersedes them.
func LogFailure(log zerolog.Logger, op, path string, err error) {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	log.Warn().Err(err).Str("op", op).Str("path", path).Msg("store write failed")
}
