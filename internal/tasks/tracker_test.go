package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/local/supportbot/internal/obslog"
)

func TestTrackRecordsCompletionOnCancel(t *testing.T) {
	tr := New(context.Background(), obslog.NewLogger(nil, 0))
	started := make(chan struct{})
	tr.Track("a", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	tr.Shutdown(time.Second)

	recs := tr.Records()
	require.Len(t, recs, 1)
	require.Equal(t, "a", recs[0].Name)
	require.Equal(t, Done, recs[0].State)
}

func TestTrackRecordsFailureOnEarlyReturn(t *testing.T) {
	tr := New(context.Background(), obslog.NewLogger(nil, 0))
	done := make(chan struct{})
	tr.Track("b", func(ctx context.Context) {
		close(done)
	})
	<-done
	time.Sleep(20 * time.Millisecond)

	recs := tr.Records()
	require.Len(t, recs, 1)
	require.Equal(t, Failed, recs[0].State)
}

func TestShutdownForcesReturnAfterGrace(t *testing.T) {
	tr := New(context.Background(), obslog.NewLogger(nil, 0))
	blocked := make(chan struct{})
	tr.Track("stuck", func(ctx context.Context) {
		<-blocked
	})

	start := time.Now()
	tr.Shutdown(50 * time.Millisecond)
	elapsed := time.Since(start)

	require.Less(t, elapsed, 500*time.Millisecond)
	close(blocked)
}
