package presence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"couplesync/backend/internal/models"
	"couplesync/backend/internal/notify"
	"couplesync/backend/internal/presence"
	"couplesync/backend/internal/storage"
	"couplesync/backend/internal/testfixtures"
)

const threshold = 60 * time.Second

func newTracker(t *testing.T, store storage.Storage) (*presence.Tracker, *testfixtures.Clock, *notify.Recorder) {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	emit, rec := testfixtures.Emitter(clock)
	cfg := presence.Config{Self: models.RoleA, Paths: models.NewPaths("room"), LivenessThreshold: threshold}
	return presence.NewTracker(cfg, store, clock.Now, emit, testfixtures.Texts()), clock, rec
}

func partnerSnap(t *testing.T, online bool, heartbeat time.Time) storage.Snapshot {
	return testfixtures.RecordSnapshot(t, "rooms/room/presence/B", models.PresenceRecord{Online: online, LastHeartbeat: models.Millis(heartbeat)})
}

func TestTracker_StartPublishesOnlineAndFallback(t *testing.T) {
	// Arrange
	clock := testfixtures.NewClock(time.Time{})
	store := storage.NewMemoryStorage(clock.Now, 75*time.Second)
	tracker, _, _ := newTracker(t, store)
	ctx := context.Background()

	// Act
	tracker.Start(ctx)

	// Assert
	var rec models.PresenceRecord
	require.NoError(t, testfixtures.Read(t, store, "rooms/room/presence/A").Decode(&rec))
	assert.True(t, rec.Online)

	fired, err := store.Disconnect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	require.NoError(t, testfixtures.Read(t, store, "rooms/room/presence/A").Decode(&rec))
	assert.False(t, rec.Online)
}

func TestTracker_StopReleasesLease(t *testing.T) {
	store := storage.NewMemoryStorage(nil, time.Minute)
	tracker, _, _ := newTracker(t, store)
	ctx := context.Background()

	tracker.Start(ctx)
	tracker.Stop(ctx)

	fired, err := store.Disconnect(ctx)
	require.NoError(t, err)
	assert.Zero(t, fired)

	var rec models.PresenceRecord
	require.NoError(t, testfixtures.Read(t, store, "rooms/room/presence/A").Decode(&rec))
	assert.False(t, rec.Online)
}

func TestTracker_LivenessThreshold(t *testing.T) {
	store := storage.NewMemoryStorage(nil, time.Minute)
	tracker, clock, _ := newTracker(t, store)

	online, known := tracker.PartnerOnline()
	assert.False(t, online)
	assert.False(t, known, "no record yet means unknown, not offline")

	tracker.HandleSnapshot(partnerSnap(t, true, clock.Now().Add(-59*time.Second)))
	online, known = tracker.PartnerOnline()
	assert.True(t, online)
	assert.True(t, known)

	// Stale heartbeat flips the partner offline without any new snapshot.
	clock.Advance(2 * time.Second)
	tracker.Refresh()
	online, _ = tracker.PartnerOnline()
	assert.False(t, online)
}

func TestTracker_OnlineNotificationAfterFullCycle(t *testing.T) {
	// Arrange
	store := storage.NewMemoryStorage(nil, time.Minute)
	tracker, clock, rec := newTracker(t, store)
	ctx := context.Background()

	// Partner is already online when we arrive: no notification on initial load.
	tracker.HandleSnapshot(partnerSnap(t, true, clock.Now()))
	tracker.Start(ctx)
	assert.True(t, tracker.CycleComplete())
	assert.Empty(t, rec.All())

	// Act: partner goes offline, then comes back twice in a row.
	tracker.HandleSnapshot(partnerSnap(t, false, clock.Now()))
	clock.Advance(time.Second)
	tracker.HandleSnapshot(partnerSnap(t, true, clock.Now()))
	tracker.HandleSnapshot(partnerSnap(t, true, clock.Now()))

	// Assert
	got := rec.OfKind(notify.KindPresence)
	require.Len(t, got, 1)
	assert.Equal(t, "Partner B just came online.", got[0].Body)
}

func TestTracker_NoNotificationBeforeFirstHeartbeat(t *testing.T) {
	store := storage.NewMemoryStorage(nil, time.Minute)
	tracker, clock, rec := newTracker(t, store)

	tracker.HandleSnapshot(partnerSnap(t, false, clock.Now()))
	tracker.HandleSnapshot(partnerSnap(t, true, clock.Now()))

	assert.False(t, tracker.CycleComplete())
	assert.Empty(t, rec.All())
}

func TestTracker_MalformedRecordIsUnknown(t *testing.T) {
	store := storage.NewMemoryStorage(nil, time.Minute)
	tracker, _, _ := newTracker(t, store)

	tracker.HandleSnapshot(storage.Snapshot{Path: "rooms/room/presence/B", Value: []byte(`"garbage"`)})

	_, known := tracker.PartnerOnline()
	assert.False(t, known)
	assert.Nil(t, tracker.Partner())
}

func TestTracker_WriteFailuresAreSwallowed(t *testing.T) {
	// Arrange
	store := new(testfixtures.MockStorage)
	store.On("Write", mock.Anything, "rooms/room/presence/A", mock.Anything).Return(errors.New("offline"))
	store.On("OnDisconnectWrite", mock.Anything, "rooms/room/presence/A", mock.Anything).Return(nil, errors.New("offline"))
	tracker, _, _ := newTracker(t, store)
	ctx := context.Background()

	// Act
	tracker.Start(ctx)
	tracker.Heartbeat(ctx)
	tracker.Stop(ctx)

	// Assert
	assert.False(t, tracker.CycleComplete())
	store.AssertNumberOfCalls(t, "Write", 3)
}

func TestTracker_HeartbeatRenewsLease(t *testing.T) {
	store := new(testfixtures.MockStorage)
	lease := new(testfixtures.MockLease)
	store.On("Write", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store.On("OnDisconnectWrite", mock.Anything, "rooms/room/presence/A", models.PresenceRecord{Online: false, LastHeartbeat: models.Millis(testfixtures.ReferenceTime())}).Return(lease, nil)
	lease.On("Renew", mock.Anything, mock.MatchedBy(func(v any) bool {
		rec, ok := v.(models.PresenceRecord)
		return ok && !rec.Online
	})).Return(nil)
	lease.On("Release", mock.Anything).Return(nil)
	tracker, _, _ := newTracker(t, store)
	ctx := context.Background()

	tracker.Start(ctx)
	tracker.Heartbeat(ctx)
	tracker.Stop(ctx)

	lease.AssertNumberOfCalls(t, "Renew", 1)
	lease.AssertCalled(t, "Release", mock.Anything)
}

func TestTracker_HeartbeatRegistersLeaseAfterFailedStart(t *testing.T) {
	// Arrange: the first registration fails, the next one succeeds.
	store := new(testfixtures.MockStorage)
	lease := new(testfixtures.MockLease)
	store.On("Write", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store.On("OnDisconnectWrite", mock.Anything, "rooms/room/presence/A", mock.Anything).Return(nil, errors.New("offline")).Once()
	store.On("OnDisconnectWrite", mock.Anything, "rooms/room/presence/A", mock.Anything).Return(lease, nil).Once()
	lease.On("Release", mock.Anything).Return(nil)
	tracker, _, _ := newTracker(t, store)
	ctx := context.Background()

	// Act
	tracker.Start(ctx)
	tracker.Heartbeat(ctx)
	tracker.Stop(ctx)

	// Assert: the heartbeat registered the lease instead of renewing nothing.
	store.AssertNumberOfCalls(t, "OnDisconnectWrite", 2)
	lease.AssertNotCalled(t, "Renew", mock.Anything, mock.Anything)
	lease.AssertCalled(t, "Release", mock.Anything)
}

func TestTracker_HeartbeatReplacesFiredLease(t *testing.T) {
	store := storage.NewMemoryStorage(nil, time.Minute)
	tracker, _, _ := newTracker(t, store)
	ctx := context.Background()

	tracker.Start(ctx)
	fired, err := store.Disconnect(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	// The fired lease can no longer be renewed; the heartbeat registers a new one.
	tracker.Heartbeat(ctx)
	fired, err = store.Disconnect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}

func TestTracker_RemovedPartnerRecordIsAdoptedAgainSilently(t *testing.T) {
	// Arrange
	store := storage.NewMemoryStorage(nil, time.Minute)
	tracker, clock, rec := newTracker(t, store)
	ctx := context.Background()
	tracker.HandleSnapshot(partnerSnap(t, false, clock.Now()))
	tracker.Start(ctx)

	// Act: the record disappears and comes back online.
	tracker.HandleSnapshot(storage.Snapshot{Path: "rooms/room/presence/B"})
	_, known := tracker.PartnerOnline()
	assert.False(t, known)
	tracker.HandleSnapshot(partnerSnap(t, true, clock.Now()))

	// Assert: unknown -> online is not an arrival; a later offline -> online is.
	assert.Empty(t, rec.OfKind(notify.KindPresence))
	tracker.HandleSnapshot(partnerSnap(t, false, clock.Now()))
	tracker.HandleSnapshot(partnerSnap(t, true, clock.Now()))
	assert.Len(t, rec.OfKind(notify.KindPresence), 1)
}
