package cluster

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fastBackoff keeps retry tests quick.
var fastBackoff = []time.Duration{5 * time.Millisecond, 10 * time.Millisecond}

// ackServer records replicated records and answers 204.
type ackServer struct {
	mu      sync.Mutex
	records []Record
	srv     *httptest.Server
}

func newAckServer(t *testing.T) *ackServer {
	t.Helper()
	a := &ackServer{}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec Record
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		a.mu.Lock()
		a.records = append(a.records, rec)
		a.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *ackServer) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func newTestReplicator(view *View, maxAttempts int) *Replicator {
	r := NewReplicator(view, maxAttempts, testLogger())
	r.SetBackoff(fastBackoff)
	return r
}

func TestReplicateWaitsForAllAcks(t *testing.T) {
	s1 := newAckServer(t)
	s2 := newAckServer(t)

	view := NewView(map[string]string{"s1": s1.srv.URL, "s2": s2.srv.URL}, 1, 5, 2)
	rep := newTestReplicator(view, 0)
	defer rep.Stop()

	err := rep.Replicate(context.Background(), Record{Key: 1, Value: "a"}, 3)
	require.NoError(t, err)
	require.Equal(t, 1, s1.count())
	require.Equal(t, 1, s2.count())
}

func TestReplicateReturnsAfterFastFollower(t *testing.T) {
	fast := newAckServer(t)

	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(func() { close(release); slow.Close() })

	view := NewView(map[string]string{"fast": fast.srv.URL, "slow": slow.URL}, 1, 5, 2)
	rep := newTestReplicator(view, 0)
	defer rep.Stop()

	start := time.Now()
	err := rep.Replicate(context.Background(), Record{Key: 1, Value: "x"}, 2)
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second,
		"write concern 2 must not wait for the slow follower")
	require.Equal(t, 1, fast.count())
}

func TestReplicateRetriesUntilFollowerAcks(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	view := NewView(map[string]string{"flaky": srv.URL}, 1, 5, 2)
	rep := newTestReplicator(view, 0)
	defer rep.Stop()

	err := rep.Replicate(context.Background(), Record{Key: 1, Value: "x"}, 2)
	require.NoError(t, err)
	require.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestReplicateWriteConcernOneNeedsNoFollowers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	view := NewView(map[string]string{"down": srv.URL}, 1, 5, 2)
	rep := newTestReplicator(view, 1)
	defer rep.Stop()

	// W=1: the master's own write is the only required ack.
	err := rep.Replicate(context.Background(), Record{Key: 1, Value: "x"}, 1)
	require.NoError(t, err)
}

func TestReplicateMaxAttemptsAbortsWithoutAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	view := NewView(map[string]string{"down": srv.URL}, 1, 5, 2)
	rep := newTestReplicator(view, 2)
	defer rep.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := rep.Replicate(ctx, Record{Key: 1, Value: "x"}, 2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReplicatePausesWhileFollowerUnhealthy(t *testing.T) {
	srv := newAckServer(t)

	view := NewView(map[string]string{"s1": srv.srv.URL}, 1, 5, 2)
	f, ok := view.Follower("s1")
	require.True(t, ok)
	f.MarkUnhealthy()

	rep := newTestReplicator(view, 0)
	defer rep.Stop()

	done := make(chan error, 1)
	go func() {
		done <- rep.Replicate(context.Background(), Record{Key: 1, Value: "x"}, 2)
	}()

	// Task is parked on the latch: nothing may be delivered.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, srv.count())

	// Heartbeat recovery reopens the latch; the task resumes and acks.
	f.MarkHealthy()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("replication did not resume after recovery")
	}
	require.Equal(t, 1, srv.count())
}

func TestReplicateStopCancelsDetachedTasks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	view := NewView(map[string]string{"down": srv.URL}, 1, 5, 2)
	rep := newTestReplicator(view, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, rep.Replicate(ctx, Record{Key: 1, Value: "x"}, 2))

	// The detached task keeps retrying until Stop.
	rep.Stop()
}
