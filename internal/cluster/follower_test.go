package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestFollower() *Follower {
	return NewFollower("secondary_1", "http://secondary1:8000", 5, 2)
}

func TestFollowerStartsHealthyAndOpen(t *testing.T) {
	f := newTestFollower()

	require.Equal(t, Healthy, f.Status())
	require.False(t, f.IsUnhealthy())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, f.WaitUntilOpen(ctx))
}

func TestHeartbeatFailedThresholds(t *testing.T) {
	f := newTestFollower()

	// First failure: still healthy, no change.
	require.False(t, f.HeartbeatFailed())
	require.Equal(t, Healthy, f.Status())

	// Second failure reaches suspected_limit.
	require.True(t, f.HeartbeatFailed())
	require.Equal(t, Suspected, f.Status())

	// Third and fourth: still suspected, no change reported.
	require.False(t, f.HeartbeatFailed())
	require.False(t, f.HeartbeatFailed())
	require.Equal(t, Suspected, f.Status())

	// Fifth reaches alive_limit.
	require.True(t, f.HeartbeatFailed())
	require.Equal(t, Unhealthy, f.Status())
	require.True(t, f.IsUnhealthy())

	// Further failures change nothing.
	require.False(t, f.HeartbeatFailed())
	require.Equal(t, Unhealthy, f.Status())
}

func TestMarkHealthyResetsCounter(t *testing.T) {
	f := newTestFollower()

	f.HeartbeatFailed()
	f.HeartbeatFailed()
	require.Equal(t, Suspected, f.Status())

	f.MarkHealthy()
	require.Equal(t, Healthy, f.Status())

	// Counter restarted: one failure does not re-suspect.
	require.False(t, f.HeartbeatFailed())
	require.Equal(t, Healthy, f.Status())
}

func TestUnhealthyClosesLatchAndRecoveryOpensIt(t *testing.T) {
	f := newTestFollower()
	f.MarkUnhealthy()

	// Latch closed: waiters time out.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.WaitUntilOpen(ctx), context.DeadlineExceeded)

	// A parked waiter is released when the follower recovers.
	released := make(chan error, 1)
	go func() {
		released <- f.WaitUntilOpen(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	f.MarkHealthy()

	select {
	case err := <-released:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by MarkHealthy")
	}
}

func TestSuspectedKeepsLatchOpen(t *testing.T) {
	f := newTestFollower()
	f.MarkSuspected()

	require.Equal(t, Suspected, f.Status())
	require.False(t, f.IsUnhealthy())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, f.WaitUntilOpen(ctx))
}

func TestStatusStrings(t *testing.T) {
	require.Equal(t, "Healthy", Healthy.String())
	require.Equal(t, "Suspected", Suspected.String())
	require.Equal(t, "Unhealthy", Unhealthy.String())
}
