package chat

import (
	"context"
	"errors"
	"time"

	"couplesync/backend/internal/metrics"
	"couplesync/backend/internal/models"
	"couplesync/backend/internal/storage"
)

// SweepStore deletes expired messages straight from the store, without a
// running channel. Used by the admin tooling.
func SweepStore(ctx context.Context, store storage.Storage, paths models.Paths, window time.Duration, now time.Time) (int, error) {
	snap, err := storage.ReadOnce(ctx, store, paths.Messages())
	if err != nil {
		return 0, err
	}
	msgs, _ := storage.DecodeChildren[models.Message](snap)
	cutoff := models.Millis(now) - window.Milliseconds()

	var errs []error
	deleted := 0
	for id, m := range msgs {
		if m.Timestamp >= cutoff {
			continue
		}
		if err := store.Delete(ctx, paths.Message(id)); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	metrics.RetentionDeleted.Add(float64(deleted))
	return deleted, errors.Join(errs...)
}
