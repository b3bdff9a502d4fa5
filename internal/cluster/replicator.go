package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"replicated-log/internal/metrics"
)

// Replicator is the master-side replication fan-out.
//
// Write path for a new entry with write concern W:
//
//  1. Master stores the entry locally (that is ack number one).
//  2. Replicate dispatches one task per follower, all in parallel.
//  3. A countdown barrier initialised to W−1 gates the client ack.
//  4. Once W−1 followers have acked, Replicate returns.
//  5. Remaining tasks keep retrying in the background until their follower
//     acks, so reachable followers eventually converge.
//
// Each task retries with the saturating backoff schedule below, using the
// current interval both as the request timeout and as the pause before the
// next attempt. Before every attempt the task parks on the follower's open
// latch, so an unhealthy follower costs nothing until a heartbeat revives it.
type Replicator struct {
	view   *View
	client *http.Client
	log    *logrus.Entry

	// backoff holds the retry intervals, saturating at the last one.
	backoff []time.Duration

	// maxAttempts bounds the per-follower retry loop; 0 retries forever.
	maxAttempts int

	// ctx governs the lifetime of detached tasks; cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc
}

// DefaultBackoff is the retry schedule, advancing one step per attempt and
// saturating at the final interval.
var DefaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	90 * time.Second,
	180 * time.Second,
	300 * time.Second,
}

// Record is the wire format of one replicated entry.
type Record struct {
	Key   uint64 `json:"key"`
	Value string `json:"value"`
}

// NewReplicator creates a replicator over the given cluster view.
// maxAttempts of zero means tasks retry until they succeed or the
// replicator stops.
func NewReplicator(view *View, maxAttempts int, log *logrus.Entry) *Replicator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Replicator{
		view:        view,
		client:      &http.Client{},
		log:         log,
		backoff:     DefaultBackoff,
		maxAttempts: maxAttempts,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetBackoff replaces the retry schedule. Must be called before Replicate.
func (r *Replicator) SetBackoff(schedule []time.Duration) {
	if len(schedule) > 0 {
		r.backoff = schedule
	}
}

// Replicate fans the record out to every follower and blocks until
// writeConcern−1 followers have acknowledged, or ctx is done. Tasks for
// followers that have not acked yet continue in the background; their late
// acknowledgements are absorbed by the barrier.
func (r *Replicator) Replicate(ctx context.Context, rec Record, writeConcern int) error {
	needed := writeConcern - 1 // the master itself counts as one ack
	barrier := NewBarrier(needed)

	for _, f := range r.view.Followers() {
		r.log.Debugf("send replication request to %s, data: key=%d value=%q",
			f.Name(), rec.Key, rec.Value)
		go r.runTask(f, rec, barrier)
	}

	if err := barrier.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for %d acks: %w", needed, err)
	}
	return nil
}

// runTask delivers rec to one follower, retrying until it acks. The task is
// detached from the client request: it stops only on success, on reaching
// maxAttempts, or when the replicator shuts down.
func (r *Replicator) runTask(f *Follower, rec Record, barrier *Barrier) {
	for attempt := 0; ; attempt++ {
		if r.maxAttempts > 0 && attempt >= r.maxAttempts {
			r.log.Warnf("giving up replication to %s after %d attempts (key=%d)",
				f.Name(), attempt, rec.Key)
			return
		}

		// Park here while the follower is unhealthy; the heartbeat
		// monitor reopens the latch on recovery.
		if err := f.WaitUntilOpen(r.ctx); err != nil {
			return
		}

		interval := r.backoffAt(attempt)
		metrics.ReplicationAttempts.WithLabelValues(f.Name()).Inc()

		if err := r.send(f, rec, interval); err != nil {
			r.log.Debugf("replication to %s failed (key=%d, attempt=%d): %v",
				f.Name(), rec.Key, attempt+1, err)

			select {
			case <-time.After(interval):
			case <-r.ctx.Done():
				return
			}
			continue
		}

		metrics.ReplicationAcks.WithLabelValues(f.Name()).Inc()
		barrier.Done()
		return
	}
}

// send performs a single PUT /message against the follower. Only a
// 204 No Content counts as an acknowledgement.
func (r *Replicator) send(f *Follower, rec Record, timeout time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(r.ctx, timeout)
	defer cancel()

	url := f.BaseURL() + "/message"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("follower returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// backoffAt returns the interval for the given attempt, saturating at the
// end of the schedule.
func (r *Replicator) backoffAt(attempt int) time.Duration {
	if attempt >= len(r.backoff) {
		return r.backoff[len(r.backoff)-1]
	}
	return r.backoff[attempt]
}

// Stop cancels all in-flight replication tasks. Entries whose barrier never
// released stay uncommitted and therefore invisible to readers.
func (r *Replicator) Stop() {
	r.cancel()
}
