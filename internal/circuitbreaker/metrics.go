package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// Enabled indicates whether the breaker lets calls through.
	Enabled = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lmsr_amm_circuit_breaker_enabled",
		Help: "Whether the circuit breaker is closed (1=closed, 0=open)",
	}, []string{"breaker"})

	// StateChanges counts open and close transitions.
	StateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lmsr_amm_circuit_breaker_state_changes_total",
		Help: "Total number of times the circuit breaker opened or closed",
	}, []string{"breaker"})

	// Failures counts recorded failures.
	Failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lmsr_amm_circuit_breaker_failures_total",
		Help: "Total number of failures recorded by the circuit breaker",
	}, []string{"breaker"})

	// Rejected counts calls refused while open.
	Rejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lmsr_amm_circuit_breaker_rejected_total",
		Help: "Total number of calls refused while the circuit breaker was open",
	}, []string{"breaker"})
)
