// Package presence publishes this client's liveness and derives the partner's.
//
// The local record is rewritten on every heartbeat and backed by a store lease
// whose fallback marks the client offline if it disappears without a clean
// Stop. The partner is considered online only while its record says so and
// its last heartbeat is younger than the liveness threshold; staleness is
// evaluated at read time, so Refresh must be called periodically.
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"couplesync/backend/internal/localization"
	"couplesync/backend/internal/logging"
	"couplesync/backend/internal/metrics"
	"couplesync/backend/internal/models"
	"couplesync/backend/internal/notify"
	"couplesync/backend/internal/storage"
	"couplesync/backend/internal/transition"
)

type Config struct {
	Self              models.Role
	Paths             models.Paths
	LivenessThreshold time.Duration
}

// Tracker is owned by the session loop and is not safe for concurrent use.
type Tracker struct {
	cfg   Config
	store storage.Storage
	now   func() time.Time
	emit  notify.Emitter
	texts localization.Texts
	log   zerolog.Logger

	lease storage.Lease

	partner      *models.PresenceRecord
	online       bool
	snapshotSeen bool
	published    bool

	edge *transition.Notifier[bool]
}

func NewTracker(cfg Config, store storage.Storage, now func() time.Time, emit notify.Emitter, texts localization.Texts) *Tracker {
	t := &Tracker{
		cfg:   cfg,
		store: store,
		now:   now,
		emit:  emit,
		texts: texts,
		log:   logging.Component("presence").With().Str("role", cfg.Self.String()).Logger(),
	}
	t.edge = transition.New(t.cameOnline, t.notifyOnline)
	return t
}

// PartnerPath is the key the session subscribes to.
func (t *Tracker) PartnerPath() string {
	return t.cfg.Paths.Presence(t.cfg.Self.Other())
}

func (t *Tracker) selfPath() string {
	return t.cfg.Paths.Presence(t.cfg.Self)
}

// Start publishes the online record and registers the offline fallback.
func (t *Tracker) Start(ctx context.Context) {
	t.publish(ctx)
	t.register(ctx)
}

// Heartbeat republishes the online record and renews the lease. A lease that
// could not be registered earlier, or that has fired meanwhile, is registered
// again.
func (t *Tracker) Heartbeat(ctx context.Context) {
	t.publish(ctx)
	if t.lease == nil {
		t.register(ctx)
		return
	}
	err := t.lease.Renew(ctx, t.offlineRecord())
	if errors.Is(err, storage.ErrLeaseReleased) {
		t.log.Info().Msg("lease lost, registering again")
		t.lease = nil
		t.register(ctx)
		return
	}
	if err != nil {
		storage.LogFailure(t.log, "lease", t.selfPath(), err)
	}
}

func (t *Tracker) register(ctx context.Context) {
	path := t.selfPath()
	lease, err := t.store.OnDisconnectWrite(ctx, path, t.offlineRecord())
	if err != nil {
		storage.LogFailure(t.log, "lease", path, err)
		return
	}
	t.lease = lease
}

func (t *Tracker) offlineRecord() models.PresenceRecord {
	return models.PresenceRecord{Online: false, LastHeartbeat: models.Millis(t.now())}
}

func (t *Tracker) publish(ctx context.Context) {
	rec := models.PresenceRecord{Online: true, LastHeartbeat: models.Millis(t.now())}
	if err := t.store.Write(ctx, t.selfPath(), rec); err != nil {
		storage.LogFailure(t.log, "write", t.selfPath(), err)
		return
	}
	metrics.Heartbeats.Inc()
	t.published = true
}

// Stop marks this client offline and drops the lease so the fallback never fires.
func (t *Tracker) Stop(ctx context.Context) {
	if err := t.store.Write(ctx, t.selfPath(), t.offlineRecord()); err != nil {
		storage.LogFailure(t.log, "write", t.selfPath(), err)
	}
	if t.lease != nil {
		if err := t.lease.Release(ctx); err != nil {
			storage.LogFailure(t.log, "release", t.selfPath(), err)
		}
		t.lease = nil
	}
}

// HandleSnapshot takes the partner's latest presence record.
func (t *Tracker) HandleSnapshot(snap storage.Snapshot) {
	t.snapshotSeen = true

	var rec models.PresenceRecord
	if err := snap.Decode(&rec); err != nil {
		if snap.Exists() {
			t.log.Debug().Err(err).Msg("ignoring unreadable partner presence")
		}
		t.partner = nil
	} else {
		t.partner = &rec
	}
	t.Refresh()
}

// Refresh re-evaluates partner liveness against the current time.
func (t *Tracker) Refresh() {
	if t.partner == nil {
		t.online = false
		metrics.PartnerOnline.Set(0)
		// Unknown is not offline: a record that reappears is adopted like the first one.
		t.edge.Reset()
		return
	}
	t.online = t.partner.LivenessOK(t.now(), t.cfg.LivenessThreshold)
	if t.online {
		metrics.PartnerOnline.Set(1)
	} else {
		metrics.PartnerOnline.Set(0)
	}
	t.edge.Observe(t.online)
}

// PartnerOnline reports liveness and whether any partner record was seen at all.
// An unknown partner is reported as (false, false), not as offline.
func (t *Tracker) PartnerOnline() (online, known bool) {
	return t.online, t.partner != nil
}

// Partner returns the last decoded record, or nil when unknown.
func (t *Tracker) Partner() *models.PresenceRecord {
	if t.partner == nil {
		return nil
	}
	rec := *t.partner
	return &rec
}

// CycleComplete reports whether the first snapshot was observed and the first
// heartbeat published.
func (t *Tracker) CycleComplete() bool {
	return t.snapshotSeen && t.published
}

func (t *Tracker) cameOnline(prev, next bool) bool {
	return !prev && next && t.CycleComplete()
}

func (t *Tracker) notifyOnline(_, _ bool) {
	name := t.texts.Get("role_" + t.cfg.Self.Other().String())
	t.log.Info().Msg("partner came online")
	t.emit.Emit(notify.KindPresence, t.texts.Get("partner_online_title"), t.texts.Format("partner_online_body", name))
}
