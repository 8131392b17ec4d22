package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SubmissionsTotal counts processed submissions by result.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lmsr_amm_sequencer_submissions_total",
		Help: "Total number of processed submissions by result",
	}, []string{"result"})

	// InboxDepth tracks queued submissions.
	InboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lmsr_amm_sequencer_inbox_depth",
		Help: "Number of submissions waiting in the sequencer inbox",
	})

	// JournalAppendDuration tracks journal write latency.
	JournalAppendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lmsr_amm_sequencer_journal_append_seconds",
		Help:    "Latency of journal appends",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	})

	// RecoveredEntries is the number of journal entries replayed at start.
	RecoveredEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lmsr_amm_sequencer_recovered_entries",
		Help: "Number of journal entries replayed on startup",
	})
)
