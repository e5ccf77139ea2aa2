package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/local/supportbot/internal/heartbeat"
	"github.com/local/supportbot/internal/obslog"
	"github.com/local/supportbot/internal/tasks"
)

type fakePinger struct {
	mu   sync.Mutex
	fail bool
}

func (f *fakePinger) PingIdentity(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("identity probe failed")
	}
	return nil
}

func TestProbeMessengerResetsOnSuccess(t *testing.T) {
	p := &fakePinger{}
	m := New(nil, p, heartbeat.New(), obslog.NewLogger(nil, 0))
	m.messengerFailures = 4
	m.probeMessenger(context.Background())
	require.Equal(t, 0, m.messengerFailures)
}

func TestProbeMessengerIncrementsOnFailure(t *testing.T) {
	p := &fakePinger{fail: true}
	m := New(nil, p, heartbeat.New(), obslog.NewLogger(nil, 0))
	m.probeMessenger(context.Background())
	m.probeMessenger(context.Background())
	require.Equal(t, 2, m.messengerFailures)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeNotifier) SendAdminNotification(userID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func TestWatchdogOnStallCancelsTasksAndExits(t *testing.T) {
	hb := heartbeat.New()
	tr := tasks.New(context.Background(), obslog.NewLogger(nil, 0))
	started := make(chan struct{})
	stopped := make(chan struct{})
	tr.Track("stub", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(stopped)
	})
	<-started

	notifier := &fakeNotifier{}
	wd := NewWatchdog(hb, tr, notifier, "admin-1", obslog.NewLogger(nil, 0))

	var exitCode int32 = -1
	var wg sync.WaitGroup
	wg.Add(1)
	wd.exit = func(code int) {
		atomic.StoreInt32(&exitCode, int32(code))
		wg.Done()
	}

	wd.onStall(200 * time.Second)
	wg.Wait()

	select {
	case <-stopped:
	default:
		t.Fatal("expected the tracked task to be cancelled before exit")
	}

	require.Equal(t, int32(1), atomic.LoadInt32(&exitCode))
	require.Equal(t, 1, notifier.calls)
}

func TestWatchdogSkipsNotificationWithoutAdminID(t *testing.T) {
	hb := heartbeat.New()
	tr := tasks.New(context.Background(), obslog.NewLogger(nil, 0))
	notifier := &fakeNotifier{}
	wd := NewWatchdog(hb, tr, notifier, "", obslog.NewLogger(nil, 0))

	done := make(chan struct{})
	wd.exit = func(code int) { close(done) }

	wd.onStall(200 * time.Second)
	<-done

	require.Equal(t, 0, notifier.calls)
}
