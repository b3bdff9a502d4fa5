package cluster

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"replicated-log/internal/metrics"
)

// Monitor runs one heartbeat prober per follower and a single quorum
// consumer.
//
// Probers never touch the read-only flag themselves. When a probe changes a
// follower's status they push an event onto a serialized queue; the one
// consumer goroutine recomputes the alive count and flips the flag. Pushing
// everything through one consumer means two concurrent probes can never race
// on the quorum decision, and the log records transitions in the order they
// were applied.
type Monitor struct {
	view     *View
	interval time.Duration
	client   *http.Client
	log      *logrus.Entry

	events chan event
	quit   chan struct{}
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

type eventKind int

const (
	eventStatusChanged eventKind = iota
	eventStop
)

type event struct {
	kind     eventKind
	follower string
	status   Health
}

// NewMonitor creates a monitor probing each follower every interval.
func NewMonitor(view *View, interval time.Duration, log *logrus.Entry) *Monitor {
	return &Monitor{
		view:     view,
		interval: interval,
		client:   &http.Client{},
		log:      log,
		events:   make(chan event, 64),
		quit:     make(chan struct{}),
	}
}

// Start launches the probers and the quorum consumer.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.consume()

		for _, f := range m.view.Followers() {
			m.wg.Add(1)
			go m.probeLoop(f)
		}

		metrics.AliveNodes.Set(float64(m.view.AliveCount()))
	})
}

// Stop cancels the probe timers and enqueues the stop sentinel for the
// consumer, then waits for both to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
		m.events <- event{kind: eventStop}
		m.wg.Wait()
	})
}

// probeLoop fires a probe against one follower every interval.
func (m *Monitor) probeLoop(f *Follower) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probe(f)
		case <-m.quit:
			return
		}
	}
}

// probe performs a single liveness check with a timeout of half the
// heartbeat interval. Successes and failures feed the follower's state
// machine; only actual status changes produce events.
func (m *Monitor) probe(f *Follower) {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval/2)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL()+"/heartbeat", nil)
	if err != nil {
		m.failed(f)
		return
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.failed(f)
		return
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.failed(f)
		return
	}

	if f.Status() != Healthy {
		f.MarkHealthy()
		m.emit(f)
	}
}

func (m *Monitor) failed(f *Follower) {
	metrics.HeartbeatFailures.WithLabelValues(f.Name()).Inc()
	if f.HeartbeatFailed() {
		m.emit(f)
	}
}

func (m *Monitor) emit(f *Follower) {
	select {
	case m.events <- event{kind: eventStatusChanged, follower: f.Name(), status: f.Status()}:
	case <-m.quit:
	}
}

// consume is the single long-running quorum consumer. On every status
// change it recomputes the alive count and toggles read-only when the
// cluster falls below quorum.
func (m *Monitor) consume() {
	defer m.wg.Done()

	for ev := range m.events {
		if ev.kind == eventStop {
			return
		}

		m.log.Infof("node %s is now %s", ev.follower, ev.status)

		alive := m.view.AliveCount()
		readOnly := alive < m.view.Quorum()

		metrics.AliveNodes.Set(float64(alive))
		if readOnly {
			metrics.ReadOnly.Set(1)
		} else {
			metrics.ReadOnly.Set(0)
		}

		if was := m.view.SetReadOnly(readOnly); was != readOnly {
			if readOnly {
				m.log.Warnf("quorum lost (%d alive < %d required), master is read-only",
					alive, m.view.Quorum())
			} else {
				m.log.Infof("quorum restored (%d alive >= %d required), master accepts writes",
					alive, m.view.Quorum())
			}
		}
	}
}
