package notify_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"couplesync/backend/internal/notify"
)

type permissionSink struct {
	notify.Recorder
	asked atomic.Int32
	err   error
}

func (p *permissionSink) RequestPermission(context.Context) error {
	p.asked.Add(1)
	return p.err
}

func TestFanout_DeliversToEverySink(t *testing.T) {
	a, b := &notify.Recorder{}, &notify.Recorder{}
	f := notify.Fanout{a, b}

	f.Notify(context.Background(), notify.Notification{Kind: notify.KindMood, Title: "t", Body: "b"})

	assert.Len(t, a.All(), 1)
	assert.Len(t, b.All(), 1)
	assert.Equal(t, "b", b.All()[0].Body)
}

func TestFanout_RequestPermissions(t *testing.T) {
	granted := &permissionSink{}
	denied := &permissionSink{err: errors.New("no")}
	f := notify.Fanout{&notify.Recorder{}, granted, denied}

	f.RequestPermissions(context.Background())

	assert.Eventually(t, func() bool {
		return granted.asked.Load() == 1 && denied.asked.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRecorder_OfKind(t *testing.T) {
	r := &notify.Recorder{}
	r.Notify(context.Background(), notify.Notification{Kind: notify.KindMessage})
	r.Notify(context.Background(), notify.Notification{Kind: notify.KindPresence})
	r.Notify(context.Background(), notify.Notification{Kind: notify.KindMessage})

	assert.Len(t, r.OfKind(notify.KindMessage), 2)
	assert.Empty(t, r.OfKind(notify.KindCapsule))
}
