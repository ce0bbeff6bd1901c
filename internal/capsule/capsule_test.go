package capsule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"couplesync/backend/internal/capsule"
	"couplesync/backend/internal/models"
	"couplesync/backend/internal/notify"
	"couplesync/backend/internal/storage"
	"couplesync/backend/internal/testfixtures"
)

var paths = models.NewPaths("room")

func newStore(t *testing.T, store storage.Storage) (*capsule.Store, *testfixtures.Clock, *notify.Recorder) {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	emit, rec := testfixtures.Emitter(clock)
	return capsule.NewStore(capsule.Config{Self: models.RoleB, Paths: paths}, store, clock.Now, emit, testfixtures.Texts()), clock, rec
}

func capsuleSnap(t *testing.T, caps map[string]any) storage.Snapshot {
	return testfixtures.CollectionSnapshot(t, paths.Capsules(), caps)
}

func TestCreate_Validation(t *testing.T) {
	store := new(testfixtures.MockStorage)
	caps, clock, _ := newStore(t, store)
	ctx := context.Background()

	assert.ErrorIs(t, caps.Create(ctx, "later", clock.Now()), capsule.ErrUnlockInPast)
	assert.ErrorIs(t, caps.Create(ctx, "later", clock.Now().Add(-time.Hour)), capsule.ErrUnlockInPast)
	assert.ErrorIs(t, caps.Create(ctx, " ", clock.Now().Add(time.Hour)), capsule.ErrEmptyMessage)
	store.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything)

	store.On("Append", mock.Anything, "rooms/room/capsules", models.TimeCapsule{
		Message:   "open me",
		From:      models.RoleB,
		CreatedAt: models.Millis(clock.Now()),
		UnlockAt:  models.Millis(clock.Now().Add(time.Hour)),
	}).Return("c1", nil).Once()
	require.NoError(t, caps.Create(ctx, "open me", clock.Now().Add(time.Hour)))
	store.AssertExpectations(t)
}

func TestOpen_RejectedWhileLockedThenOnce(t *testing.T) {
	// Arrange
	shared := storage.NewMemoryStorage(nil, time.Minute)
	counting := &patchCounter{Storage: shared}
	caps, clock, _ := newStore(t, counting)
	ctx := context.Background()
	unlockAt := clock.Now().Add(time.Hour)
	require.NoError(t, shared.Write(ctx, paths.Capsule("c1"), models.TimeCapsule{Message: "surprise", From: models.RoleA, UnlockAt: models.Millis(unlockAt)}))
	caps.HandleSnapshot(testfixtures.Read(t, shared, paths.Capsules()))

	// Act + Assert: locked.
	assert.ErrorIs(t, caps.Open(ctx, "c1"), capsule.ErrStillLocked)
	assert.Zero(t, counting.n)
	var stored models.TimeCapsule
	require.NoError(t, testfixtures.Read(t, shared, paths.Capsule("c1")).Decode(&stored))
	assert.False(t, stored.Opened)

	// Unlocked: exactly one patch, then no-ops.
	clock.Set(unlockAt)
	require.NoError(t, caps.Open(ctx, "c1"))
	require.NoError(t, caps.Open(ctx, "c1"))
	caps.HandleSnapshot(testfixtures.Read(t, shared, paths.Capsules()))
	require.NoError(t, caps.Open(ctx, "c1"))

	assert.Equal(t, 1, counting.n)
	require.NoError(t, testfixtures.Read(t, shared, paths.Capsule("c1")).Decode(&stored))
	assert.True(t, stored.Opened)
	assert.Equal(t, "surprise", stored.Message)
}

func TestOpenAndDelete_Unknown(t *testing.T) {
	caps, _, _ := newStore(t, new(testfixtures.MockStorage))
	assert.ErrorIs(t, caps.Open(context.Background(), "nope"), capsule.ErrNotFound)
	assert.ErrorIs(t, caps.Delete(context.Background(), "nope"), capsule.ErrNotFound)
}

func TestViews_HideLockedPayloadAndSort(t *testing.T) {
	caps, clock, _ := newStore(t, new(testfixtures.MockStorage))
	now := clock.Now()

	caps.HandleSnapshot(capsuleSnap(t, map[string]any{
		"late":   models.TimeCapsule{Message: "late secret", From: models.RoleA, UnlockAt: models.Millis(now.Add(48 * time.Hour))},
		"opened": models.TimeCapsule{Message: "was opened", From: models.RoleB, UnlockAt: models.Millis(now.Add(-time.Hour)), Opened: true},
		"ready":  models.TimeCapsule{Message: "ready now", From: models.RoleA, UnlockAt: models.Millis(now.Add(-time.Minute))},
		"soon":   models.TimeCapsule{Message: "soon secret", From: models.RoleA, UnlockAt: models.Millis(now.Add(90 * time.Minute))},
		"broken": `not json`,
	}))

	views := caps.Views()
	require.Len(t, views, 4)
	assert.Equal(t, []string{"opened", "ready", "soon", "late"}, []string{views[0].ID, views[1].ID, views[2].ID, views[3].ID})

	assert.Equal(t, "was opened", views[0].Message)
	assert.Equal(t, "ready now", views[1].Message, "unlocked capsules are visible without opening")
	assert.True(t, views[1].Unlocked)

	assert.Empty(t, views[2].Message)
	assert.Equal(t, models.RoleA, views[2].From)
	assert.Equal(t, "Locked. Opens in 1h 30m", views[2].Label)
	assert.Empty(t, views[3].Message)
	assert.Equal(t, 2, views[3].Remaining.Days)
}

func TestTick_NotifiesOnceWhenCapsuleUnlocks(t *testing.T) {
	// Arrange
	caps, clock, rec := newStore(t, new(testfixtures.MockStorage))
	now := clock.Now()
	caps.HandleSnapshot(capsuleSnap(t, map[string]any{
		"c1":  models.TimeCapsule{Message: "m", From: models.RoleA, UnlockAt: models.Millis(now.Add(time.Hour))},
		"old": models.TimeCapsule{Message: "m", From: models.RoleA, UnlockAt: models.Millis(now.Add(-time.Hour))},
	}))

	// Act
	caps.Tick()
	clock.Advance(time.Hour)
	caps.Tick()
	caps.Tick()

	// Assert
	got := rec.OfKind(notify.KindCapsule)
	require.Len(t, got, 1)
	assert.Equal(t, "A capsule from Partner A can be opened now.", got[0].Body)
}

func TestDelete_RemovesRemotely(t *testing.T) {
	store := new(testfixtures.MockStorage)
	store.On("Delete", mock.Anything, "rooms/room/capsules/c1").Return(nil).Once()
	caps, clock, _ := newStore(t, store)
	caps.HandleSnapshot(capsuleSnap(t, map[string]any{
		"c1": models.TimeCapsule{Message: "m", From: models.RoleA, UnlockAt: models.Millis(clock.Now().Add(time.Hour))},
	}))

	require.NoError(t, caps.Delete(context.Background(), "c1"))
	assert.Empty(t, caps.Views())
	store.AssertExpectations(t)
}

type patchCounter struct {
	storage.Storage
	n int
}

func (p *patchCounter) Patch(ctx context.Context, path string, fields map[string]any) error {
	p.n++
	return p.Storage.Patch(ctx, path, fields)
}
