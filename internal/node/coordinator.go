// Package node contains the coordinator that gates client operations by the
// node's role and owns the lifecycle of the replication components.
//
// A node runs in exactly one mode, fixed at start:
//
//   - master: accepts new values, allocates keys, replicates to followers,
//     and runs the heartbeat monitor plus the quorum consumer
//   - secondary: accepts only replicated writes with master-assigned keys
//
// The coordinator holds no hidden state: every dependency is constructed in
// the process entry-point and injected here.
package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"replicated-log/internal/cluster"
	"replicated-log/internal/metrics"
	"replicated-log/internal/store"
)

// Mode is the role a node plays in the cluster.
type Mode string

const (
	ModeMaster    Mode = "master"
	ModeSecondary Mode = "secondary"
)

// ParseMode validates a mode string, typically from WORK_MODE.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMaster, ModeSecondary:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unsupported mode %q", s)
}

// Sentinel errors surfaced to the transport layer as 405 responses.
var (
	ErrMasterOnly    = errors.New("adding new values is allowed only in master mode")
	ErrSecondaryOnly = errors.New("setting values is allowed only in secondary mode")
	ErrReadOnly      = errors.New("master is read-only: not enough alive nodes for quorum")
)

// Coordinator routes client operations to the log store or the replicator
// according to the node's mode.
type Coordinator struct {
	mode    Mode
	storage *store.Log
	log     *logrus.Entry

	// Master-only components; nil on secondaries.
	view       *cluster.View
	replicator *cluster.Replicator
	monitor    *cluster.Monitor
}

// NewMaster builds a master coordinator with its replication components.
func NewMaster(storage *store.Log, view *cluster.View, replicator *cluster.Replicator,
	monitor *cluster.Monitor, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		mode:       ModeMaster,
		storage:    storage,
		view:       view,
		replicator: replicator,
		monitor:    monitor,
		log:        log,
	}
}

// NewSecondary builds a secondary coordinator. Secondaries run no heartbeat
// timers and no quorum consumer.
func NewSecondary(storage *store.Log, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		mode:    ModeSecondary,
		storage: storage,
		log:     log,
	}
}

// Mode returns the node's role.
func (c *Coordinator) Mode() Mode { return c.mode }

// IsMaster reports whether the node accepts new values.
func (c *Coordinator) IsMaster() bool { return c.mode == ModeMaster }

// ReadOnly reports whether a master has lost quorum. Always false on a
// secondary.
func (c *Coordinator) ReadOnly() bool {
	return c.view != nil && c.view.ReadOnly()
}

// View exposes the cluster view for operational endpoints; nil on a
// secondary.
func (c *Coordinator) View() *cluster.View { return c.view }

// Start launches the master's heartbeat probers and quorum consumer.
// A no-op on secondaries.
func (c *Coordinator) Start() {
	if c.monitor != nil {
		c.monitor.Start()
	}
}

// Stop shuts down the heartbeat monitor and cancels in-flight replication
// tasks. Entries that never reached their write concern stay uncommitted.
func (c *Coordinator) Stop() {
	if c.monitor != nil {
		c.monitor.Stop()
	}
	if c.replicator != nil {
		c.replicator.Stop()
	}
}

// GetValues returns the log's visible values under its current list mode.
func (c *Coordinator) GetValues() []string {
	values := c.storage.List()
	c.log.Infof("get values request, returned %d items", len(values))
	return values
}

// AddValue appends a value to the log and replicates it. Master only.
//
// writeConcern is the total number of acknowledgements, master included;
// nil defaults to the whole cluster (N+1). The entry is committed — and so
// becomes visible — only after writeConcern−1 followers have acknowledged.
func (c *Coordinator) AddValue(ctx context.Context, value string, writeConcern *int) error {
	c.log.Infof("adding value: %q", value)

	if c.mode != ModeMaster {
		c.log.Error(ErrMasterOnly)
		return ErrMasterOnly
	}
	if c.view.ReadOnly() {
		c.log.Error(ErrReadOnly)
		return ErrReadOnly
	}

	n := c.view.Count()
	w := n + 1
	if writeConcern != nil {
		w = *writeConcern
	}
	if w < 1 || w > n+1 {
		return fmt.Errorf("write concern %d out of range [1, %d]", w, n+1)
	}

	key := c.storage.Add(value)
	metrics.StoredEntries.Set(float64(c.storage.Count()))
	c.log.Infof("added value %q, key = %d", value, key)

	rec := cluster.Record{Key: key, Value: value}
	if err := c.replicator.Replicate(ctx, rec, w); err != nil {
		// Not replicated widely enough yet: leave the entry uncommitted
		// so readers never see it.
		return fmt.Errorf("replicate key %d: %w", key, err)
	}

	c.storage.Commit(key)
	c.log.Infof("committed value %q, key = %d", value, key)
	return nil
}

// SetValue stores a replicated value under the master-assigned key.
// Secondary only. Returns false when the key was already present, which is
// how duplicate deliveries stay idempotent.
func (c *Coordinator) SetValue(key uint64, value string) (bool, error) {
	c.log.Infof("storing value: %d = %q", key, value)

	if c.mode != ModeSecondary {
		c.log.Error(ErrSecondaryOnly)
		return false, ErrSecondaryOnly
	}

	stored := c.storage.Set(key, value, true, false)
	if stored {
		metrics.StoredEntries.Set(float64(c.storage.Count()))
		c.log.Infof("value (%d = %q) successfully stored", key, value)
	} else {
		c.log.Infof("key %d already exists", key)
	}
	return stored, nil
}
