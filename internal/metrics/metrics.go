package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BountiesCreated counts bounties accepted by the ledger
	BountiesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bounty_created_total",
			Help: "Total number of bounties created",
		},
	)

	// BountiesResolved counts bounties resolved by the ledger
	BountiesResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bounty_resolved_total",
			Help: "Total number of bounties resolved",
		},
	)

	// EscrowHeld tracks the total value currently held in escrow
	EscrowHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bounty_escrow_held",
			Help: "Total value currently held in escrow by the ledger",
		},
	)

	// EventsApplied counts feed events applied to the derived store
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_indexer_events_applied_total",
			Help: "Total number of feed events applied to the derived store",
		},
		[]string{"event_type"},
	)

	// EventAnomalies counts recoverable indexing anomalies, such as a
	// resolution for an id the store has never seen
	EventAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_indexer_anomalies_total",
			Help: "Total number of recoverable indexing anomalies",
		},
		[]string{"anomaly_type"},
	)

	// StoreRetries counts derived-store write retries
	StoreRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bounty_indexer_store_retries_total",
			Help: "Total number of derived-store write retries",
		},
	)

	// LastAppliedOffset tracks the feed offset of the last applied event
	LastAppliedOffset = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bounty_indexer_last_applied_offset",
			Help: "Feed offset of the last successfully applied event",
		},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
