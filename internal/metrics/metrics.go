// Package metrics registers the Prometheus collectors exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "replicated_log"

var (
	// ReplicationAttempts counts delivery attempts per follower, successful
	// or not.
	ReplicationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replication_attempts_total",
		Help:      "Replication delivery attempts per follower.",
	}, []string{"follower"})

	// ReplicationAcks counts acknowledged deliveries per follower.
	ReplicationAcks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replication_acks_total",
		Help:      "Acknowledged replication deliveries per follower.",
	}, []string{"follower"})

	// HeartbeatFailures counts failed heartbeat probes per follower.
	HeartbeatFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "heartbeat_failures_total",
		Help:      "Failed heartbeat probes per follower.",
	}, []string{"follower"})

	// AliveNodes is the current alive count, master included.
	AliveNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "alive_nodes",
		Help:      "Nodes currently considered alive, including the master.",
	})

	// ReadOnly is 1 while the master has lost quorum.
	ReadOnly = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "read_only",
		Help:      "1 while the master is read-only due to quorum loss.",
	})

	// StoredEntries is the number of entries in the local log, in any state.
	StoredEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stored_entries",
		Help:      "Entries in the local log, committed or not.",
	})
)
